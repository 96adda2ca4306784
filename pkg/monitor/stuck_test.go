package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/StricklySoft/contentflow/internal/testutil/fixtures"
	"github.com/StricklySoft/contentflow/pkg/models"
	"github.com/StricklySoft/contentflow/pkg/phases"
)

func TestIsStuck(t *testing.T) {
	now := fixtures.Now
	threshold := DefaultStuckThreshold

	tests := []struct {
		name      string
		status    models.Status
		updatedAt time.Time
		threshold time.Duration
		want      bool
	}{
		{"fresh", models.StatusRunning, now, threshold, false},
		{"exactly at threshold", models.StatusRunning, now.Add(-threshold), threshold, false},
		{"one millisecond past", models.StatusRunning, now.Add(-threshold - time.Millisecond), threshold, true},
		{"long idle", models.StatusRunning, now.Add(-24 * time.Hour), threshold, true},
		{"completed ignores age", models.StatusCompleted, now.Add(-24 * time.Hour), threshold, false},
		{"failed ignores age", models.StatusFailed, now.Add(-24 * time.Hour), threshold, false},
		{"zero threshold uses default", models.StatusRunning, now.Add(-4 * time.Minute), 0, false},
		{"custom threshold", models.StatusRunning, now.Add(-90 * time.Second), time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := models.NewWorkflowEntry("wf", fixtures.Topic, phases.Research, tt.updatedAt)
			e.Status = tt.status
			assert.Equal(t, tt.want, IsStuck(e, tt.threshold, now))
		})
	}
}

func TestIsStuck_Nil(t *testing.T) {
	assert.False(t, IsStuck(nil, DefaultStuckThreshold, fixtures.Now))
}
