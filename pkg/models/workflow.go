// Package models defines the records the engine persists: workflow
// entries with their trace logs and phase errors, daily quota counters,
// per-client abuse records and alerts.
//
// A workflow moves through a small state machine:
//
//	running → completed
//	        → failed
//
// completed and failed are terminal. A failed entry may still collect
// further error entries, but its status never changes again.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/StricklySoft/contentflow/pkg/phases"
)

// Status is the lifecycle state of a workflow.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) String() string { return string(s) }

// Valid reports whether s is a recognized status.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is completed or failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// validTransitions lists the allowed status changes. failed → failed
// covers recording a second error on an already failed entry.
//
//	running   → running, completed, failed
//	failed    → failed
//	completed → (none)
var validTransitions = map[Status][]Status{
	StatusRunning: {StatusRunning, StatusCompleted, StatusFailed},
	StatusFailed:  {StatusFailed},
}

// ValidTransition reports whether a workflow may move from one status
// to another.
func ValidTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Event names a trace log entry.
type Event string

const (
	EventPhaseStarted   Event = "phase_started"
	EventPhaseCompleted Event = "phase_completed"
	EventPhaseFailed    Event = "phase_failed"
	EventViolationFound Event = "violation_found"
)

func (e Event) String() string { return string(e) }

// Valid reports whether e is a recognized event.
func (e Event) Valid() bool {
	switch e {
	case EventPhaseStarted, EventPhaseCompleted, EventPhaseFailed, EventViolationFound:
		return true
	default:
		return false
	}
}

// PhaseError records one phase failure.
type PhaseError struct {
	Phase     phases.Phase `json:"phase"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}

// TraceLog is one entry of a workflow's append-only event log.
type TraceLog struct {
	Timestamp time.Time      `json:"timestamp"`
	Phase     phases.Phase   `json:"phase"`
	Event     Event          `json:"event"`
	Details   map[string]any `json:"details,omitempty"`
}

// WorkflowEntry is one pipeline run.
type WorkflowEntry struct {
	ID           string                           `json:"id"`
	Topic        string                           `json:"topic,omitempty"`
	Status       Status                           `json:"status"`
	CurrentPhase phases.Phase                     `json:"current_phase"`
	PhaseOutputs map[phases.Phase]json.RawMessage `json:"phase_outputs"`
	Errors       []PhaseError                     `json:"errors"`
	TraceLogs    []TraceLog                       `json:"trace_logs"`
	CreatedAt    time.Time                        `json:"created_at"`
	UpdatedAt    time.Time                        `json:"updated_at"`
}

// NewWorkflowEntry returns a running entry at initialPhase with both
// timestamps set to now (UTC).
func NewWorkflowEntry(id, topic string, initialPhase phases.Phase, now time.Time) *WorkflowEntry {
	now = now.UTC()
	return &WorkflowEntry{
		ID:           id,
		Topic:        topic,
		Status:       StatusRunning,
		CurrentPhase: initialPhase,
		PhaseOutputs: make(map[phases.Phase]json.RawMessage),
		Errors:       []PhaseError{},
		TraceLogs:    []TraceLog{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsTerminal reports whether the entry is completed or failed.
func (w *WorkflowEntry) IsTerminal() bool {
	return w.Status.IsTerminal()
}

// Output returns the recorded output of phase, if any.
func (w *WorkflowEntry) Output(phase phases.Phase) (json.RawMessage, bool) {
	out, ok := w.PhaseOutputs[phase]
	return out, ok
}

// Events returns the event names of the trace log in order.
func (w *WorkflowEntry) Events() []Event {
	events := make([]Event, len(w.TraceLogs))
	for i, l := range w.TraceLogs {
		events[i] = l.Event
	}
	return events
}

// Validate checks the entry's structural invariants.
func (w *WorkflowEntry) Validate() error {
	if w.ID == "" {
		return errors.New("models: workflow ID is required")
	}
	if !w.Status.Valid() {
		return fmt.Errorf("models: invalid workflow status %q", w.Status)
	}
	if len(w.Errors) > 0 && w.Status != StatusFailed {
		return fmt.Errorf("models: workflow %s has %d errors but status %q", w.ID, len(w.Errors), w.Status)
	}
	if w.CreatedAt.IsZero() || w.UpdatedAt.IsZero() {
		return errors.New("models: workflow timestamps are required")
	}
	if w.UpdatedAt.Before(w.CreatedAt) {
		return errors.New("models: workflow updated_at precedes created_at")
	}
	return nil
}
