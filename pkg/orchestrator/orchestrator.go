// Package orchestrator drives a workflow through research, outline,
// draft and compliance.
//
// Phases run strictly in order on the calling goroutine. The first
// failure is recorded on the workflow (error entry, trace event and
// alert) and halts the run. There is no retry and no resume; a caller
// that wants another attempt submits again and gets a new workflow id.
//
// Quota is charged from per-phase estimates. Submit charges the whole
// pipeline once before the workflow exists; RunPhase charges the single
// phase it runs. Actual executor cost is never reconciled.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/contentflow/pkg/compliance"
	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/models"
	"github.com/StricklySoft/contentflow/pkg/monitor"
	"github.com/StricklySoft/contentflow/pkg/phases"
	"github.com/StricklySoft/contentflow/pkg/quota"
	"github.com/StricklySoft/contentflow/pkg/workflow"
)

const tracerName = "github.com/StricklySoft/contentflow/pkg/orchestrator"

// DefaultCosts are the per-phase quota estimates. Compliance runs
// locally and costs nothing.
func DefaultCosts() map[phases.Phase]int64 {
	return map[phases.Phase]int64{
		phases.Research:   6000,
		phases.Outline:    4000,
		phases.Draft:      12000,
		phases.Compliance: 0,
	}
}

// Archiver stores the final draft. Failures are logged, not returned
// to the caller.
type Archiver interface {
	Archive(ctx context.Context, workflowID string, at time.Time, markdown string) (string, error)
}

// Recorder receives run measurements.
type Recorder interface {
	ObservePhase(phase phases.Phase, result string, elapsed time.Duration)
	ObserveWorkflow(status models.Status)
	ObserveQuotaRejection()
}

type nopRecorder struct{}

func (nopRecorder) ObservePhase(phases.Phase, string, time.Duration) {}
func (nopRecorder) ObserveWorkflow(models.Status)                    {}
func (nopRecorder) ObserveQuotaRejection()                           {}

// Config wires an Orchestrator. Registry, Ledger, Workflows, Monitor and
// the three remote executors are required.
type Config struct {
	Registry  *phases.Registry
	Ledger    *quota.Ledger
	Workflows *workflow.Store
	Monitor   *monitor.Monitor
	Executors Executors

	// Compliance defaults to a ComplianceExecutor with the default
	// rule set.
	Compliance Executor

	// Deliverer receives alerts after they are stored. Nil skips
	// delivery.
	Deliverer monitor.Deliverer

	// Costs overrides DefaultCosts per phase.
	Costs map[phases.Phase]int64

	Archiver Archiver
	Recorder Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Orchestrator runs workflows.
type Orchestrator struct {
	registry   *phases.Registry
	ledger     *quota.Ledger
	workflows  *workflow.Store
	monitor    *monitor.Monitor
	executors  Executors
	compliance Executor
	deliverer  monitor.Deliverer
	costs      map[phases.Phase]int64
	archiver   Archiver
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time
	tracer     trace.Tracer
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Registry == nil:
		return nil, sserr.New(sserr.CodeInternalConfiguration, "orchestrator: registry is required")
	case cfg.Ledger == nil:
		return nil, sserr.New(sserr.CodeInternalConfiguration, "orchestrator: quota ledger is required")
	case cfg.Workflows == nil:
		return nil, sserr.New(sserr.CodeInternalConfiguration, "orchestrator: workflow store is required")
	case cfg.Monitor == nil:
		return nil, sserr.New(sserr.CodeInternalConfiguration, "orchestrator: monitor is required")
	}
	for _, p := range []phases.Phase{phases.Research, phases.Outline, phases.Draft} {
		if cfg.Executors.forPhase(p) == nil {
			return nil, sserr.Newf(sserr.CodeInternalConfiguration, "orchestrator: no executor for %s", p)
		}
	}

	o := &Orchestrator{
		registry:   cfg.Registry,
		ledger:     cfg.Ledger,
		workflows:  cfg.Workflows,
		monitor:    cfg.Monitor,
		executors:  cfg.Executors,
		compliance: cfg.Compliance,
		deliverer:  cfg.Deliverer,
		costs:      DefaultCosts(),
		archiver:   cfg.Archiver,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
		now:        cfg.Now,
		tracer:     otel.Tracer(tracerName),
	}
	for p, c := range cfg.Costs {
		if !p.Valid() {
			return nil, sserr.Newf(sserr.CodeUnknownPhase, "orchestrator: cost for unknown phase %q", p)
		}
		if c < 0 {
			return nil, sserr.Newf(sserr.CodeValidationRange, "orchestrator: cost for %s must not be negative", p)
		}
		o.costs[p] = c
	}
	if o.compliance == nil {
		eval, err := compliance.NewEvaluator(nil)
		if err != nil {
			return nil, err
		}
		o.compliance = NewComplianceExecutor(eval)
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// PipelineCost is the quota Submit charges up front.
func (o *Orchestrator) PipelineCost() int64 {
	var total int64
	for _, p := range phases.All() {
		total += o.costs[p]
	}
	return total
}

// Request is a pipeline submission. Every submission runs under a
// freshly generated workflow id.
type Request struct {
	Brief Brief `json:"brief"`
}

// Result is the state of a workflow after Submit or RunPhase returns.
type Result struct {
	WorkflowID  string                 `json:"workflow_id"`
	Status      models.Status          `json:"status"`
	Entry       *models.WorkflowEntry  `json:"entry"`
	Violations  []compliance.Violation `json:"violations"`
	FailedPhase phases.Phase           `json:"failed_phase,omitempty"`
	ArtifactKey string                 `json:"artifact_key,omitempty"`
}

// Submit runs every phase for req. A quota rejection returns
// *quota.ExceededError and creates no workflow. A phase failure returns
// both the failed Result and a *PhaseFailedError.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Result, error) {
	brief := req.Brief
	if err := brief.Normalize(); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.submit")
	defer span.End()

	if err := o.charge(ctx, o.PipelineCost(), "pipeline", brief.Topic); err != nil {
		finishSpan(span, err)
		return nil, err
	}

	id := workflow.NewID()
	span.SetAttributes(attribute.String("workflow.id", id))
	if _, err := o.workflows.Create(ctx, id, brief.Topic, phases.Research); err != nil {
		finishSpan(span, err)
		return nil, err
	}
	o.logger.InfoContext(ctx, "workflow submitted", "workflow_id", id, "topic", brief.Topic)

	var previous json.RawMessage
	for _, phase := range phases.All() {
		in, err := o.buildInput(id, phase, brief, previous)
		if err != nil {
			res, ferr := o.fail(ctx, id, phase, KindMissingInput, err.Error())
			finishSpan(span, ferr)
			return res, ferr
		}
		brief = in.Brief

		if err := o.started(ctx, id, phase); err != nil {
			finishSpan(span, err)
			return nil, err
		}
		out, res, err := o.runPhase(ctx, id, phase, in)
		if err != nil {
			finishSpan(span, err)
			return res, err
		}
		previous = out
	}

	res, err := o.finish(ctx, id, previous)
	finishSpan(span, err)
	return res, err
}

// RunPhase runs a single phase of a workflow, taking its input from the
// stored output of the previous phase. An empty id with phase research
// starts a new workflow under a generated id; any other id must name a
// running workflow. On an existing workflow phase_started is logged
// before quota for the phase is charged.
func (o *Orchestrator) RunPhase(ctx context.Context, id string, phase phases.Phase, brief Brief) (*Result, error) {
	if !phase.Valid() {
		return nil, sserr.Newf(sserr.CodeUnknownPhase, "orchestrator: unknown phase %q", phase)
	}
	var (
		entry *models.WorkflowEntry
		ok    bool
	)
	if id == "" {
		if phase != phases.Research {
			return nil, sserr.Newf(sserr.CodeValidationRequired,
				"orchestrator: %s needs a workflow id; only research starts a workflow", phase)
		}
	} else {
		var err error
		entry, ok, err = o.workflows.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		switch {
		case !ok:
			return nil, sserr.NotFoundf("orchestrator: workflow %s not found", id)
		case entry.IsTerminal():
			return nil, sserr.Newf(sserr.CodeInvalidTransition,
				"orchestrator: workflow %s is %s", id, entry.Status)
		}
		if brief.Topic == "" {
			brief.Topic = entry.Topic
		}
	}
	if err := brief.Normalize(); err != nil {
		return nil, err
	}

	var previous json.RawMessage
	if prev, hasPrev := previousPhase(phase); hasPrev {
		previous, _ = entry.Output(prev)
		if len(previous) == 0 {
			return nil, sserr.Newf(sserr.CodeValidation,
				"orchestrator: %s needs the %s output of workflow %s", phase, prev, id)
		}
		if phase == phases.Draft {
			// The outline input carried the research context; rebuild it
			// so the draft executor sees the same brief.
			if research, ok := entry.Output(phases.Research); ok {
				brief.Research = researchContext(research)
			}
		}
	}

	if ok {
		if err := o.started(ctx, id, phase); err != nil {
			return nil, err
		}
	}
	if err := o.charge(ctx, o.costs[phase], string(phase), brief.Topic); err != nil {
		return nil, err
	}
	if !ok {
		id = workflow.NewID()
		if _, err := o.workflows.Create(ctx, id, brief.Topic, phases.Research); err != nil {
			return nil, err
		}
		o.logger.InfoContext(ctx, "workflow started", "workflow_id", id, "topic", brief.Topic)
		if err := o.started(ctx, id, phase); err != nil {
			return nil, err
		}
	}

	in, err := o.buildInput(id, phase, brief, previous)
	if err != nil {
		return o.fail(ctx, id, phase, KindMissingInput, err.Error())
	}
	out, res, err := o.runPhase(ctx, id, phase, in)
	if err != nil {
		return res, err
	}
	if phase == phases.Compliance {
		return o.finish(ctx, id, out)
	}
	return o.result(ctx, id, nil)
}

// charge consumes amount from the ledger. A rejection raises a
// quota_exceeded alert before the error is returned.
func (o *Orchestrator) charge(ctx context.Context, amount int64, label, topic string) error {
	if amount == 0 {
		return nil
	}
	_, err := o.ledger.Consume(ctx, amount, label)
	if err == nil {
		return nil
	}
	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		o.recorder.ObserveQuotaRejection()
		o.alert(ctx, models.AlertQuotaExceeded, models.SeverityWarning,
			fmt.Sprintf("daily quota exceeded: %d of %d used, %d requested", exceeded.Used, exceeded.Limit, exceeded.Requested),
			map[string]any{
				"used":      exceeded.Used,
				"limit":     exceeded.Limit,
				"requested": exceeded.Requested,
				"label":     label,
				"topic":     topic,
			})
	}
	return err
}

// started logs the phase_started event for phase.
func (o *Orchestrator) started(ctx context.Context, id string, phase phases.Phase) error {
	return o.workflows.AddLog(ctx, id, phase, models.EventPhaseStarted,
		map[string]any{"agent": o.executorFor(phase).Agent()})
}

// runPhase executes one phase and records the outcome. The caller has
// already logged phase_started. On failure it returns the failed result
// and a *PhaseFailedError.
func (o *Orchestrator) runPhase(ctx context.Context, id string, phase phases.Phase, in Input) (json.RawMessage, *Result, error) {
	exec := o.executorFor(phase)

	if err := o.registry.AssertModel(phase, exec.Agent()); err != nil {
		o.logger.ErrorContext(ctx, "phase role mismatch",
			"workflow_id", id, "phase", phase, "agent", exec.Agent(), "error", err)
		res, ferr := o.fail(ctx, id, phase, KindRoleMismatch, err.Error())
		return nil, res, ferr
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.phase."+string(phase),
		trace.WithAttributes(
			attribute.String("workflow.id", id),
			attribute.String("workflow.phase", string(phase)),
			attribute.String("workflow.agent", exec.Agent()),
		),
	)
	start := time.Now()
	outcome := exec.Execute(ctx, in)
	if outcome.IsOk() {
		if err := validateOutput(phase, outcome.Output); err != nil {
			outcome = Err(KindInvalidOutput, err.Error())
		}
	}
	elapsed := time.Since(start)

	if !outcome.IsOk() {
		span.SetStatus(codes.Error, outcome.Message)
		span.End()
		o.recorder.ObservePhase(phase, string(outcome.Kind), elapsed)
		res, ferr := o.fail(ctx, id, phase, outcome.Kind, outcome.Message)
		return nil, res, ferr
	}
	span.SetStatus(codes.Ok, "")
	span.End()
	o.recorder.ObservePhase(phase, "ok", elapsed)

	if _, err := o.workflows.SetPhaseOutput(ctx, id, phase, outcome.Output); err != nil {
		return nil, nil, err
	}
	if err := o.workflows.AddLog(ctx, id, phase, models.EventPhaseCompleted, map[string]any{
		"agent":      exec.Agent(),
		"bytes":      len(outcome.Output),
		"elapsed_ms": elapsed.Milliseconds(),
	}); err != nil {
		return nil, nil, err
	}
	o.logger.InfoContext(ctx, "phase completed", "workflow_id", id, "phase", phase, "elapsed", elapsed)
	return outcome.Output, nil, nil
}

// fail records a phase failure in order (error, trace event, alert) and
// returns the resulting state with a *PhaseFailedError.
func (o *Orchestrator) fail(ctx context.Context, id string, phase phases.Phase, kind ErrorKind, message string) (*Result, error) {
	perr := &PhaseFailedError{WorkflowID: id, Phase: phase, Kind: kind, Message: message}

	if _, err := o.workflows.SetError(ctx, id, phase, message); err != nil {
		return nil, err
	}
	if err := o.workflows.AddLog(ctx, id, phase, models.EventPhaseFailed,
		map[string]any{"kind": string(kind), "message": message}); err != nil {
		return nil, err
	}

	severity := models.SeverityWarning
	if kind == KindRoleMismatch {
		severity = models.SeverityCritical
	}
	o.alert(ctx, models.AlertWorkflowFailed, severity,
		fmt.Sprintf("workflow %s failed in %s: %s", id, phase, message),
		map[string]any{"workflow_id": id, "phase": string(phase), "kind": string(kind)})

	o.logger.WarnContext(ctx, "workflow failed", "workflow_id", id, "phase", phase, "kind", kind, "error", message)
	o.recorder.ObserveWorkflow(models.StatusFailed)

	res, err := o.result(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	res.FailedPhase = phase
	return res, perr
}

// finish logs compliance violations, completes the workflow and archives
// the sanitized draft.
func (o *Orchestrator) finish(ctx context.Context, id string, reportJSON json.RawMessage) (*Result, error) {
	var report ComplianceReport
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "orchestrator: decode compliance report")
	}
	for _, v := range report.Violations {
		if err := o.workflows.AddLog(ctx, id, phases.Compliance, models.EventViolationFound, map[string]any{
			"rule":     string(v.Rule),
			"message":  v.Message,
			"severity": string(v.Severity),
		}); err != nil {
			return nil, err
		}
	}
	if _, err := o.workflows.Complete(ctx, id); err != nil {
		return nil, err
	}
	o.recorder.ObserveWorkflow(models.StatusCompleted)
	o.logger.InfoContext(ctx, "workflow completed", "workflow_id", id, "violations", len(report.Violations))

	res, err := o.result(ctx, id, report.Violations)
	if err != nil {
		return nil, err
	}
	if o.archiver != nil {
		key, err := o.archiver.Archive(ctx, id, o.now(), report.Draft)
		if err != nil {
			o.logger.WarnContext(ctx, "archive draft failed", "workflow_id", id, "error", err)
		} else {
			res.ArtifactKey = key
		}
	}
	return res, nil
}

func (o *Orchestrator) result(ctx context.Context, id string, violations []compliance.Violation) (*Result, error) {
	entry, ok, err := o.workflows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sserr.NotFoundf("orchestrator: workflow %s vanished", id)
	}
	if violations == nil {
		violations = []compliance.Violation{}
	}
	return &Result{WorkflowID: id, Status: entry.Status, Entry: entry, Violations: violations}, nil
}

// alert stores an alert and hands it to the deliverer. Failures are
// logged only.
func (o *Orchestrator) alert(ctx context.Context, typ models.AlertType, severity models.Severity, message string, details map[string]any) {
	a, err := o.monitor.CreateAlert(ctx, typ, severity, message, details)
	if err != nil {
		o.logger.WarnContext(ctx, "create alert failed", "type", typ, "error", err)
		return
	}
	monitor.Notify(ctx, o.monitor, o.deliverer, a)
}

func (o *Orchestrator) executorFor(phase phases.Phase) Executor {
	if phase == phases.Compliance {
		return o.compliance
	}
	return o.executors.forPhase(phase)
}

// buildInput assembles the executor input. Outline gets the research
// context folded into the brief.
func (o *Orchestrator) buildInput(id string, phase phases.Phase, brief Brief, previous json.RawMessage) (Input, error) {
	in := Input{WorkflowID: id, Phase: phase, Brief: brief, Previous: previous}
	if phase == phases.Research {
		return in, nil
	}
	if len(previous) == 0 {
		return in, fmt.Errorf("no input for %s", phase)
	}
	if phase == phases.Outline {
		in.Brief.Research = researchContext(previous)
	}
	return in, nil
}

func researchContext(raw json.RawMessage) *ResearchContext {
	var r ResearchOutput
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil
	}
	return &ResearchContext{Summary: r.Summary, KeyPoints: r.KeyPoints}
}

func previousPhase(p phases.Phase) (phases.Phase, bool) {
	all := phases.All()
	for i, q := range all {
		if q == p && i > 0 {
			return all[i-1], true
		}
	}
	return "", false
}

// validateOutput checks a remote output has the shape the next phase
// reads.
func validateOutput(phase phases.Phase, raw json.RawMessage) error {
	switch phase {
	case phases.Research:
		var r ResearchOutput
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("decode research output: %w", err)
		}
		if r.Summary == "" {
			return errors.New("research output has no summary")
		}
	case phases.Outline:
		var r OutlineOutput
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("decode outline output: %w", err)
		}
		if len(r.Sections) == 0 {
			return errors.New("outline output has no sections")
		}
	case phases.Draft:
		var r DraftOutput
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("decode draft output: %w", err)
		}
		if r.Markdown == "" {
			return errors.New("draft output is empty")
		}
	case phases.Compliance:
		var r ComplianceReport
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("decode compliance report: %w", err)
		}
	}
	return nil
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
