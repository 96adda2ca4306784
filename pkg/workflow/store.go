// Package workflow persists workflow entries in a kv.Store.
//
// Every mutation is a read-modify-write of the whole entry under
// workflow:<id>. A workflow is driven by a single orchestrator
// goroutine, so writes to one id do not interleave in normal operation.
package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/kv"
	"github.com/StricklySoft/contentflow/pkg/models"
	"github.com/StricklySoft/contentflow/pkg/phases"
)

// EntryTTL is how long a workflow entry is retained after its last
// write.
const EntryTTL = 7 * 24 * time.Hour

// NewID returns a random, collision-resistant workflow id.
func NewID() string {
	return uuid.NewString()
}

// Store reads and writes workflow entries.
type Store struct {
	kv     kv.Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore returns a Store backed by store.
func NewStore(store kv.Store, opts ...Option) *Store {
	s := &Store{kv: store, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create writes a fresh running entry at initialPhase. An existing
// entry with the same id is overwritten, so callers must pass ids from
// NewID.
func (s *Store) Create(ctx context.Context, id, topic string, initialPhase phases.Phase) (*models.WorkflowEntry, error) {
	if id == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "workflow: id is required")
	}
	if !initialPhase.Valid() {
		return nil, sserr.Newf(sserr.CodeUnknownPhase, "workflow: unknown phase %q", initialPhase)
	}
	entry := models.NewWorkflowEntry(id, topic, initialPhase, s.now())
	if err := s.put(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "workflow created", "workflow_id", id, "topic", topic)
	return entry, nil
}

// Get returns the entry for id. ok is false when no entry exists.
func (s *Store) Get(ctx context.Context, id string) (entry *models.WorkflowEntry, ok bool, err error) {
	raw, ok, err := s.kv.Get(ctx, key(id))
	if err != nil {
		return nil, false, sserr.Wrapf(err, sserr.CodeInternalDatabase, "workflow: get %s", id)
	}
	if !ok {
		return nil, false, nil
	}
	entry = &models.WorkflowEntry{}
	if err := json.Unmarshal(raw, entry); err != nil {
		return nil, false, sserr.Wrapf(err, sserr.CodeInternal, "workflow: decode %s", id)
	}
	if entry.PhaseOutputs == nil {
		entry.PhaseOutputs = make(map[phases.Phase]json.RawMessage)
	}
	return entry, true, nil
}

// AddLog appends a trace event. It does nothing when id is unknown.
func (s *Store) AddLog(ctx context.Context, id string, phase phases.Phase, event models.Event, details map[string]any) error {
	_, err := s.update(ctx, id, false, func(e *models.WorkflowEntry, now time.Time) error {
		e.TraceLogs = append(e.TraceLogs, models.TraceLog{
			Timestamp: now,
			Phase:     phase,
			Event:     event,
			Details:   details,
		})
		return nil
	})
	return err
}

// SetPhaseOutput records output for phase and makes it the current
// phase. Status is unchanged.
func (s *Store) SetPhaseOutput(ctx context.Context, id string, phase phases.Phase, output json.RawMessage) (*models.WorkflowEntry, error) {
	return s.update(ctx, id, true, func(e *models.WorkflowEntry, _ time.Time) error {
		e.PhaseOutputs[phase] = output
		e.CurrentPhase = phase
		return nil
	})
}

// SetError appends a phase error and marks the entry failed. A
// completed entry rejects it with CodeInvalidTransition.
func (s *Store) SetError(ctx context.Context, id string, phase phases.Phase, message string) (*models.WorkflowEntry, error) {
	return s.update(ctx, id, true, func(e *models.WorkflowEntry, now time.Time) error {
		if err := transition(e, models.StatusFailed); err != nil {
			return err
		}
		e.Errors = append(e.Errors, models.PhaseError{Phase: phase, Message: message, Timestamp: now})
		e.Status = models.StatusFailed
		return nil
	})
}

// Complete marks the entry completed. A failed entry rejects it with
// CodeInvalidTransition.
func (s *Store) Complete(ctx context.Context, id string) (*models.WorkflowEntry, error) {
	return s.update(ctx, id, true, func(e *models.WorkflowEntry, _ time.Time) error {
		if err := transition(e, models.StatusCompleted); err != nil {
			return err
		}
		e.Status = models.StatusCompleted
		return nil
	})
}

// List returns every stored entry, newest created first. Keys that
// disappear between the scan and the read are skipped.
func (s *Store) List(ctx context.Context) ([]*models.WorkflowEntry, error) {
	keys, err := s.kv.List(ctx, kv.PrefixWorkflow)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "workflow: list")
	}
	entries := make([]*models.WorkflowEntry, 0, len(keys))
	for _, k := range keys {
		e, ok, err := s.Get(ctx, strings.TrimPrefix(k, kv.PrefixWorkflow))
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

// update loads id, applies fn, refreshes UpdatedAt and writes the entry
// back. When the entry is missing it returns CodeNotFound if required is
// set and (nil, nil) otherwise.
func (s *Store) update(ctx context.Context, id string, required bool, fn func(*models.WorkflowEntry, time.Time) error) (*models.WorkflowEntry, error) {
	entry, ok, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		if required {
			return nil, sserr.NotFoundf("workflow: %s not found", id)
		}
		return nil, nil
	}
	now := s.now().UTC()
	if err := fn(entry, now); err != nil {
		return nil, err
	}
	entry.UpdatedAt = now
	if err := s.put(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// put validates entry and writes it with EntryTTL.
func (s *Store) put(ctx context.Context, entry *models.WorkflowEntry) error {
	if err := entry.Validate(); err != nil {
		return sserr.Wrapf(err, sserr.CodeValidation, "workflow: refusing to store %s", entry.ID)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternal, "workflow: encode %s", entry.ID)
	}
	if err := s.kv.Put(ctx, key(entry.ID), raw, EntryTTL); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalDatabase, "workflow: put %s", entry.ID)
	}
	return nil
}

func transition(e *models.WorkflowEntry, to models.Status) error {
	if models.ValidTransition(e.Status, to) {
		return nil
	}
	return sserr.Newf(sserr.CodeInvalidTransition,
		"workflow: cannot move %s from %s to %s", e.ID, e.Status, to).
		WithDetail("from", string(e.Status)).
		WithDetail("to", string(to))
}

func key(id string) string {
	return kv.PrefixWorkflow + id
}
