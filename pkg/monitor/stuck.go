package monitor

import (
	"time"

	"github.com/StricklySoft/contentflow/pkg/models"
)

// DefaultStuckThreshold is how long a running workflow may go without
// an update before it counts as stuck.
const DefaultStuckThreshold = 5 * time.Minute

// IsStuck reports whether entry is running and was last updated more
// than threshold before now. Exactly threshold is not stuck. A
// non-positive threshold uses DefaultStuckThreshold.
func IsStuck(entry *models.WorkflowEntry, threshold time.Duration, now time.Time) bool {
	if entry == nil || entry.Status != models.StatusRunning {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}
	return now.Sub(entry.UpdatedAt) > threshold
}
