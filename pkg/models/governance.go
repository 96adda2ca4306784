package models

import "time"

// QuotaCounter is the running total of units consumed on one UTC date
// (YYYY-MM-DD).
type QuotaCounter struct {
	Date string `json:"date"`
	Used int64  `json:"used"`
}

// Abuse thresholds. A client is flagged once either counter reaches its
// threshold.
const (
	AuthFailureThreshold = 10
	RateLimitThreshold   = 5
)

// AbuseRecord holds the violation counters for one client.
type AbuseRecord struct {
	ClientID      string    `json:"client_id"`
	AuthFailures  int       `json:"auth_failures"`
	RateLimitHits int       `json:"rate_limit_hits"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	Flagged       bool      `json:"flagged"`
}

// NewAbuseRecord returns a zeroed record first seen at now.
func NewAbuseRecord(clientID string, now time.Time) *AbuseRecord {
	now = now.UTC()
	return &AbuseRecord{ClientID: clientID, FirstSeen: now, LastSeen: now}
}

// Evaluate recomputes Flagged from the counters and returns it.
func (r *AbuseRecord) Evaluate() bool {
	r.Flagged = r.AuthFailures >= AuthFailureThreshold || r.RateLimitHits >= RateLimitThreshold
	return r.Flagged
}

// JustFlagged reports whether the most recent single-step increment is the
// one that crossed a threshold. Counters only grow by one per track call,
// so the record was unflagged before iff exactly one counter sits at its
// threshold and the other is below.
func (r *AbuseRecord) JustFlagged() bool {
	auth := r.AuthFailures == AuthFailureThreshold && r.RateLimitHits < RateLimitThreshold
	rate := r.RateLimitHits == RateLimitThreshold && r.AuthFailures < AuthFailureThreshold
	return auth || rate
}

// AlertType classifies an alert.
type AlertType string

const (
	AlertWorkflowFailed AlertType = "workflow_failed"
	AlertWorkflowStuck  AlertType = "workflow_stuck"
	AlertQuotaExceeded  AlertType = "quota_exceeded"
	AlertAbuseDetected  AlertType = "abuse_detected"
	AlertAPIError       AlertType = "api_error"
)

func (t AlertType) String() string { return string(t) }

// Valid reports whether t is a recognized alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertWorkflowFailed, AlertWorkflowStuck, AlertQuotaExceeded,
		AlertAbuseDetected, AlertAPIError:
		return true
	default:
		return false
	}
}

// Severity is the urgency of an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) String() string { return string(s) }

// Valid reports whether s is warning or critical.
func (s Severity) Valid() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// Alert is a persisted notification. Only Notified changes after
// creation.
type Alert struct {
	ID        string         `json:"id"`
	Type      AlertType      `json:"type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Notified  bool           `json:"notified"`
}
