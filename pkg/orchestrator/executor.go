package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/StricklySoft/contentflow/pkg/phases"
)

// ErrorKind classifies a failed Outcome.
type ErrorKind string

const (
	// KindExecutor is any upstream failure: network, remote rejection,
	// upstream quota.
	KindExecutor ErrorKind = "executor"

	// KindInvalidOutput is a response that does not decode into the
	// phase's output shape.
	KindInvalidOutput ErrorKind = "invalid_output"

	// KindRoleMismatch is an executor wired to a phase its agent is not
	// assigned to.
	KindRoleMismatch ErrorKind = "role_mismatch"

	// KindMissingInput is a phase started without its predecessor's
	// output.
	KindMissingInput ErrorKind = "missing_input"
)

// Outcome is the tagged result of a phase execution. Exactly one of
// Output or Kind is set.
type Outcome struct {
	Output  json.RawMessage
	Kind    ErrorKind
	Message string
}

// Ok returns a successful Outcome carrying output.
func Ok(output json.RawMessage) Outcome {
	return Outcome{Output: output}
}

// Err returns a failed Outcome.
func Err(kind ErrorKind, message string) Outcome {
	return Outcome{Kind: kind, Message: message}
}

// IsOk reports whether the outcome succeeded.
func (o Outcome) IsOk() bool { return o.Kind == "" }

// Input is what a phase executor receives.
type Input struct {
	WorkflowID string       `json:"workflow_id"`
	Phase      phases.Phase `json:"phase"`
	Brief      Brief        `json:"brief"`

	// Previous is the output of the preceding phase. It is empty for
	// research.
	Previous json.RawMessage `json:"previous,omitempty"`
}

// Executor performs one phase. Implementations report failure through
// the Outcome and must not panic.
type Executor interface {
	// Agent is the identity the executor runs as. It is checked against
	// the phase registry before every call.
	Agent() string
	Execute(ctx context.Context, in Input) Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc struct {
	AgentID string
	Fn      func(ctx context.Context, in Input) Outcome
}

// Agent implements Executor.
func (f ExecutorFunc) Agent() string { return f.AgentID }

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, in Input) Outcome { return f.Fn(ctx, in) }

// Executors holds the remote executors. Compliance runs locally and is
// not part of the bundle.
type Executors struct {
	Research Executor
	Outline  Executor
	Draft    Executor
}

func (e Executors) forPhase(p phases.Phase) Executor {
	switch p {
	case phases.Research:
		return e.Research
	case phases.Outline:
		return e.Outline
	case phases.Draft:
		return e.Draft
	default:
		return nil
	}
}
