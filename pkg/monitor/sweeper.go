package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/StricklySoft/contentflow/pkg/models"
)

// WorkflowLister is the read side of the workflow store.
type WorkflowLister interface {
	List(ctx context.Context) ([]*models.WorkflowEntry, error)
}

// Purger removes expired records from a backend that keeps them until
// asked, such as kv.PostgresStore.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned   int      `json:"scanned"`
	Stuck     []string `json:"stuck"`
	Raised    int      `json:"raised"`
	Delivered int      `json:"delivered"`
	Purged    int64    `json:"purged"`
}

// Sweeper is the pull-based stuck detector. It only raises alerts; it
// never cancels the workflow.
type Sweeper struct {
	monitor   *Monitor
	workflows WorkflowLister
	deliverer Deliverer
	threshold time.Duration
	purger    Purger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithPurger makes every sweep end by purging expired records from p.
func WithPurger(p Purger) SweeperOption {
	return func(s *Sweeper) { s.purger = p }
}

// NewSweeper returns a Sweeper. A nil deliverer skips delivery and a
// non-positive threshold uses DefaultStuckThreshold.
func NewSweeper(m *Monitor, workflows WorkflowLister, d Deliverer, threshold time.Duration, opts ...SweeperOption) *Sweeper {
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}
	s := &Sweeper{monitor: m, workflows: workflows, deliverer: d, threshold: threshold}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep raises a workflow_stuck alert for each stuck workflow that has
// none yet, then retries delivery of every unnotified alert. With a
// purger it finally drops expired records; a purge failure is logged and
// does not fail the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	entries, err := s.workflows.List(ctx)
	if err != nil {
		return nil, err
	}
	alerts, err := s.monitor.GetAlerts(ctx)
	if err != nil {
		return nil, err
	}

	alerted := make(map[string]bool)
	for _, a := range alerts {
		if a.Type != models.AlertWorkflowStuck {
			continue
		}
		if id, ok := a.Details["workflow_id"].(string); ok {
			alerted[id] = true
		}
	}

	res := &SweepResult{Scanned: len(entries), Stuck: []string{}}
	now := s.monitor.now()
	for _, e := range entries {
		if !IsStuck(e, s.threshold, now) {
			continue
		}
		res.Stuck = append(res.Stuck, e.ID)
		if alerted[e.ID] {
			continue
		}
		idle := now.Sub(e.UpdatedAt).Truncate(time.Second)
		a, err := s.monitor.CreateAlert(ctx, models.AlertWorkflowStuck, models.SeverityWarning,
			fmt.Sprintf("workflow %s idle in %s for %s", e.ID, e.CurrentPhase, idle),
			map[string]any{
				"workflow_id":  e.ID,
				"phase":        string(e.CurrentPhase),
				"updated_at":   e.UpdatedAt,
				"idle_seconds": int64(idle / time.Second),
			})
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
		res.Raised++
	}

	if s.deliverer != nil {
		for _, a := range alerts {
			if a.Notified {
				continue
			}
			Notify(ctx, s.monitor, s.deliverer, a)
			if a.Notified {
				res.Delivered++
			}
		}
	}

	if s.purger != nil {
		n, err := s.purger.Purge(ctx)
		if err != nil {
			s.monitor.logger.WarnContext(ctx, "purge of expired records failed", "error", err)
		}
		res.Purged = n
	}

	s.monitor.logger.InfoContext(ctx, "sweep finished",
		"scanned", res.Scanned, "stuck", len(res.Stuck), "raised", res.Raised,
		"delivered", res.Delivered, "purged", res.Purged)
	return res, nil
}
