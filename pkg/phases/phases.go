// Package phases names the pipeline phases and pins each one to the
// single agent allowed to execute it.
//
// The registry guard is called immediately before every executor
// invocation, including the local rule-based compliance check, so a
// miswired executor fails its phase instead of producing content under
// the wrong role.
package phases

import (
	"fmt"
	"maps"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

// Phase is one step of the content pipeline.
type Phase string

const (
	Research   Phase = "research"
	Outline    Phase = "outline"
	Draft      Phase = "draft"
	Compliance Phase = "compliance"
)

var order = []Phase{Research, Outline, Draft, Compliance}

// All returns the phases in execution order.
func All() []Phase {
	out := make([]Phase, len(order))
	copy(out, order)
	return out
}

func (p Phase) String() string { return string(p) }

// Valid reports whether p is one of the four pipeline phases.
func (p Phase) Valid() bool {
	for _, q := range order {
		if p == q {
			return true
		}
	}
	return false
}

// Parse converts s to a Phase. Unknown names yield CodeUnknownPhase.
func Parse(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", unknownPhase(p)
	}
	return p, nil
}

// RuleBased is the agent designation of the local compliance evaluator.
const RuleBased = "rule-based"

// DefaultAssignments pins research, outline and draft to distinct
// generative agents and compliance to the rule-based evaluator.
func DefaultAssignments() map[Phase]string {
	return map[Phase]string{
		Research:   "research-agent",
		Outline:    "outline-agent",
		Draft:      "draft-agent",
		Compliance: RuleBased,
	}
}

// Registry maps phases to their designated agents. It is immutable
// after construction and safe for concurrent use.
type Registry struct {
	agents map[Phase]string
}

// NewRegistry builds a registry from assignments. Every key must be a
// known phase and every agent id non-empty.
func NewRegistry(assignments map[Phase]string) (*Registry, error) {
	agents := make(map[Phase]string, len(assignments))
	for p, agent := range assignments {
		if !p.Valid() {
			return nil, unknownPhase(p)
		}
		if agent == "" {
			return nil, sserr.Newf(sserr.CodeValidationRequired,
				"phases: agent for phase %q must not be empty", p)
		}
		agents[p] = agent
	}
	return &Registry{agents: agents}, nil
}

// MustNewRegistry is NewRegistry for static assignments.
func MustNewRegistry(assignments map[Phase]string) *Registry {
	r, err := NewRegistry(assignments)
	if err != nil {
		panic(err)
	}
	return r
}

// NewRegistryFromConfig layers string overrides, as loaded from
// configuration, on top of DefaultAssignments.
func NewRegistryFromConfig(overrides map[string]string) (*Registry, error) {
	assignments := DefaultAssignments()
	for name, agent := range overrides {
		p, err := Parse(name)
		if err != nil {
			return nil, err
		}
		assignments[p] = agent
	}
	return NewRegistry(assignments)
}

// ModelFor returns the agent designated for phase.
func (r *Registry) ModelFor(phase Phase) (string, error) {
	agent, ok := r.agents[phase]
	if !ok {
		return "", unknownPhase(phase)
	}
	return agent, nil
}

// AssertModel returns nil when agent is the one designated for phase,
// a *MismatchError when it is not, and an unknown phase error when
// phase has no designation.
func (r *Registry) AssertModel(phase Phase, agent string) error {
	expected, err := r.ModelFor(phase)
	if err != nil {
		return err
	}
	if agent != expected {
		return &MismatchError{Phase: phase, Expected: expected, Actual: agent}
	}
	return nil
}

// Assignments returns a copy of the phase to agent mapping.
func (r *Registry) Assignments() map[Phase]string {
	return maps.Clone(r.agents)
}

// MismatchError reports an executor wired to the wrong phase. It
// indicates a configuration defect, not a transient fault.
type MismatchError struct {
	Phase    Phase
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("phases: phase %q must run as %q, got %q", e.Phase, e.Expected, e.Actual)
}

// Unwrap exposes a CodePhaseModelMismatch error so sserr helpers work
// on the chain.
func (e *MismatchError) Unwrap() error {
	return sserr.New(sserr.CodePhaseModelMismatch, e.Error()).
		WithDetails(map[string]any{
			"phase":    string(e.Phase),
			"expected": e.Expected,
			"actual":   e.Actual,
		})
}

func unknownPhase(p Phase) error {
	return sserr.Newf(sserr.CodeUnknownPhase, "phases: unknown phase %q", p).
		WithDetail("phase", string(p))
}
