// Package quota enforces a daily budget of execution units.
//
// One counter exists per UTC date under quota:<YYYY-MM-DD>. Consume
// reads the counter, checks the cap and writes the new total. There is
// no compare-and-swap, so two callers racing on the same date can both
// pass the check and overrun the cap. The engine accepts that in
// exchange for running on a plain key-value store.
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/kv"
	"github.com/StricklySoft/contentflow/pkg/models"
)

const (
	// DateLayout is the counter date format.
	DateLayout = "2006-01-02"

	// CounterTTL keeps a counter for a day plus a margin for clock skew
	// between callers.
	CounterTTL = 48 * time.Hour

	// DefaultDailyLimit is used when no limit is configured.
	DefaultDailyLimit int64 = 30000
)

// Snapshot is the ledger state after a write.
type Snapshot struct {
	Date      string `json:"date"`
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`
	Limit     int64  `json:"limit"`
}

// Ledger tracks consumption against a daily limit.
type Ledger struct {
	store  kv.Store
	limit  int64
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger returns a Ledger over store with the given daily limit. A
// non-positive limit falls back to DefaultDailyLimit.
func NewLedger(store kv.Store, dailyLimit int64, opts ...Option) *Ledger {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	l := &Ledger{store: store, limit: dailyLimit, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the daily cap.
func (l *Ledger) Limit() int64 { return l.limit }

// Today returns the current UTC date key.
func (l *Ledger) Today() string {
	return l.now().UTC().Format(DateLayout)
}

// Usage returns units consumed on date, or today when date is empty. A
// date with no counter reports zero.
func (l *Ledger) Usage(ctx context.Context, date string) (int64, error) {
	c, err := l.read(ctx, l.resolve(date))
	if err != nil {
		return 0, err
	}
	return c.Used, nil
}

// Remaining returns max(0, limit - used) for date, or today when date
// is empty.
func (l *Ledger) Remaining(ctx context.Context, date string) (int64, error) {
	used, err := l.Usage(ctx, date)
	if err != nil {
		return 0, err
	}
	return max(0, l.limit-used), nil
}

// Consume adds amount to today's counter. When used+amount would exceed
// the limit it returns *ExceededError and writes nothing. label is only
// logged. The read and write are separate store calls, so concurrent
// callers can both pass the check and overshoot the limit.
func (l *Ledger) Consume(ctx context.Context, amount int64, label string) (Snapshot, error) {
	if amount < 0 {
		return Snapshot{}, sserr.Newf(sserr.CodeValidationRange,
			"quota: amount must not be negative, got %d", amount)
	}
	date := l.Today()
	c, err := l.read(ctx, date)
	if err != nil {
		return Snapshot{}, err
	}
	if c.Used+amount > l.limit {
		l.logger.WarnContext(ctx, "quota exceeded",
			"date", date, "used", c.Used, "requested", amount, "limit", l.limit, "label", label)
		return Snapshot{}, &ExceededError{Used: c.Used, Limit: l.limit, Requested: amount}
	}
	return l.write(ctx, date, c.Used+amount, label)
}

// Record adds amount to today's counter without checking the limit. It
// is for accounting after an external system already enforced its own
// cap. Remaining in the result is clamped at zero.
func (l *Ledger) Record(ctx context.Context, amount int64, label string) (Snapshot, error) {
	if amount < 0 {
		return Snapshot{}, sserr.Newf(sserr.CodeValidationRange,
			"quota: amount must not be negative, got %d", amount)
	}
	date := l.Today()
	c, err := l.read(ctx, date)
	if err != nil {
		return Snapshot{}, err
	}
	return l.write(ctx, date, c.Used+amount, label)
}

func (l *Ledger) resolve(date string) string {
	if date == "" {
		return l.Today()
	}
	return date
}

func (l *Ledger) read(ctx context.Context, date string) (models.QuotaCounter, error) {
	c := models.QuotaCounter{Date: date}
	raw, ok, err := l.store.Get(ctx, kv.PrefixQuota+date)
	if err != nil {
		return c, sserr.Wrapf(err, sserr.CodeInternalDatabase, "quota: read counter for %s", date)
	}
	if !ok {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, sserr.Wrapf(err, sserr.CodeInternal, "quota: decode counter for %s", date)
	}
	return c, nil
}

func (l *Ledger) write(ctx context.Context, date string, used int64, label string) (Snapshot, error) {
	raw, err := json.Marshal(models.QuotaCounter{Date: date, Used: used})
	if err != nil {
		return Snapshot{}, sserr.Wrap(err, sserr.CodeInternal, "quota: encode counter")
	}
	if err := l.store.Put(ctx, kv.PrefixQuota+date, raw, CounterTTL); err != nil {
		return Snapshot{}, sserr.Wrapf(err, sserr.CodeInternalDatabase, "quota: write counter for %s", date)
	}
	l.logger.DebugContext(ctx, "quota updated", "date", date, "used", used, "label", label)
	return Snapshot{Date: date, Used: used, Remaining: max(0, l.limit-used), Limit: l.limit}, nil
}

// ExceededError reports that a Consume would overrun the daily limit.
type ExceededError struct {
	Used      int64
	Limit     int64
	Requested int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota: daily limit exceeded (used %d of %d, requested %d)", e.Used, e.Limit, e.Requested)
}

// Unwrap exposes a CodeQuotaExceeded error, which maps to HTTP 429.
func (e *ExceededError) Unwrap() error {
	return sserr.New(sserr.CodeQuotaExceeded, e.Error()).WithDetails(map[string]any{
		"used":      e.Used,
		"limit":     e.Limit,
		"requested": e.Requested,
	})
}
