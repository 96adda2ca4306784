// Package monitor tracks per-client abuse counters, persists alerts and
// detects stuck workflows.
//
// The monitor never delivers alerts itself. Callers create an alert and
// then hand it to Notify, which swallows delivery failures.
//
// Abuse counters are read-modify-write without compare-and-swap, like
// the quota ledger. Overlapping requests from one client can lose an
// increment.
package monitor

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
)

const (
	// AbuseTTL is how long an abuse record survives its last update.
	AbuseTTL = 24 * time.Hour

	// AlertTTL is how long an alert is retained.
	AlertTTL = 7 * 24 * time.Hour
)

// Monitor reads and writes abuse records and alerts.
type Monitor struct {
	kv     kv.Store
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithIDGenerator replaces the uuid alert id generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Monitor) { m.newID = fn }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// New returns a Monitor backed by store.
func New(store kv.Store, opts ...Option) *Monitor {
	m := &Monitor{kv: store, now: time.Now, newID: uuid.NewString, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TrackAuthFailure counts one failed authentication for clientID and
// returns the updated record.
func (m *Monitor) TrackAuthFailure(ctx context.Context, clientID string) (*models.AbuseRecord, error) {
	return m.track(ctx, clientID, func(r *models.AbuseRecord) { r.AuthFailures++ })
}

// TrackRateLimit counts one rate-limit rejection for clientID and
// returns the updated record.
func (m *Monitor) TrackRateLimit(ctx context.Context, clientID string) (*models.AbuseRecord, error) {
	return m.track(ctx, clientID, func(r *models.AbuseRecord) { r.RateLimitHits++ })
}

// track is a read-modify-write; concurrent increments for one client
// may be lost.
func (m *Monitor) track(ctx context.Context, clientID string, inc func(*models.AbuseRecord)) (*models.AbuseRecord, error) {
	if clientID == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "monitor: client id is required")
	}
	now := m.now().UTC()
	rec, ok, err := m.GetAbuseRecord(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		rec = models.NewAbuseRecord(clientID, now)
	}
	wasFlagged := rec.Flagged

	inc(rec)
	rec.LastSeen = now
	if rec.Evaluate() && !wasFlagged {
		m.logger.WarnContext(ctx, "client flagged for abuse",
			"client_id", clientID,
			"auth_failures", rec.AuthFailures,
			"rate_limit_hits", rec.RateLimitHits,
		)
	}

	if err := m.putJSON(ctx, kv.PrefixAbuse+clientID, rec, AbuseTTL); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetAbuseRecord returns the record for clientID. ok is false when the
// client has no record.
func (m *Monitor) GetAbuseRecord(ctx context.Context, clientID string) (*models.AbuseRecord, bool, error) {
	rec := &models.AbuseRecord{}
	ok, err := m.getJSON(ctx, kv.PrefixAbuse+clientID, rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec, true, nil
}

// CreateAlert persists a new, undelivered alert and returns it.
func (m *Monitor) CreateAlert(ctx context.Context, typ models.AlertType, severity models.Severity, message string, details map[string]any) (*models.Alert, error) {
	if !typ.Valid() {
		return nil, sserr.Newf(sserr.CodeValidation, "monitor: unknown alert type %q", typ)
	}
	if !severity.Valid() {
		return nil, sserr.Newf(sserr.CodeValidation, "monitor: unknown severity %q", severity)
	}
	alert := &models.Alert{
		ID:        m.newID(),
		Type:      typ,
		Severity:  severity,
		Message:   message,
		Details:   details,
		Timestamp: m.now().UTC(),
	}
	if err := m.putJSON(ctx, kv.PrefixAlert+alert.ID, alert, AlertTTL); err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "alert created",
		"alert_id", alert.ID, "type", typ, "severity", severity, "message", message)
	return alert, nil
}

// GetAlert returns one alert by id.
func (m *Monitor) GetAlert(ctx context.Context, id string) (*models.Alert, bool, error) {
	alert := &models.Alert{}
	ok, err := m.getJSON(ctx, kv.PrefixAlert+id, alert)
	if err != nil || !ok {
		return nil, false, err
	}
	return alert, true, nil
}

// GetAlerts returns every stored alert, newest first.
func (m *Monitor) GetAlerts(ctx context.Context) ([]*models.Alert, error) {
	keys, err := m.kv.List(ctx, kv.PrefixAlert)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "monitor: list alerts")
	}
	alerts := make([]*models.Alert, 0, len(keys))
	for _, k := range keys {
		a, ok, err := m.GetAlert(ctx, strings.TrimPrefix(k, kv.PrefixAlert))
		if err != nil {
			return nil, err
		}
		if ok {
			alerts = append(alerts, a)
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Timestamp.Equal(alerts[j].Timestamp) {
			return alerts[i].ID < alerts[j].ID
		}
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
	return alerts, nil
}

// MarkNotified sets Notified on the alert. Unknown ids are ignored. The
// alert keeps its full retention from the moment of marking.
func (m *Monitor) MarkNotified(ctx context.Context, id string) error {
	alert, ok, err := m.GetAlert(ctx, id)
	if err != nil || !ok {
		return err
	}
	if alert.Notified {
		return nil
	}
	alert.Notified = true
	return m.putJSON(ctx, kv.PrefixAlert+id, alert, AlertTTL)
}

func (m *Monitor) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := m.kv.Get(ctx, key)
	if err != nil {
		return false, sserr.Wrapf(err, sserr.CodeInternalDatabase, "monitor: get %s", key)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, sserr.Wrapf(err, sserr.CodeInternal, "monitor: decode %s", key)
	}
	return true, nil
}

func (m *Monitor) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternal, "monitor: encode %s", key)
	}
	if err := m.kv.Put(ctx, key, raw, ttl); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalDatabase, "monitor: put %s", key)
	}
	return nil
}
