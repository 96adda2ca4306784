package adminapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

// limiterResetInterval bounds the limiter map: every client starts fresh
// once an hour.
const limiterResetInterval = time.Hour

// limiterSet hands out one token bucket per client. It is best effort and
// process local.
type limiterSet struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
	limit       rate.Limit
	burst       int
	now         func() time.Time
}

func newLimiterSet(perSecond float64, burst int, now func() time.Time) *limiterSet {
	return &limiterSet{
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: now(),
		limit:       rate.Limit(perSecond),
		burst:       burst,
		now:         now,
	}
}

// allow reports whether client may make a request now.
func (l *limiterSet) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > limiterResetInterval {
		l.limiters = make(map[string]*rate.Limiter)
		l.lastCleanup = now
	}

	limiter, ok := l.limiters[client]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[client] = limiter
	}
	return limiter.AllowN(now, 1)
}

func (l *limiterSet) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// rateLimit rejects clients over their budget with 429 and counts the
// rejection against the client's abuse record.
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		client := c.RealIP()
		if s.limiters.allow(client) {
			return next(c)
		}

		if s.metrics != nil {
			s.metrics.ObserveRateLimited()
		}
		ctx := c.Request().Context()
		rec, err := s.monitor.TrackRateLimit(ctx, client)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to track rate limit hit", "client_ip", client, "error", err)
		} else if rec.JustFlagged() {
			s.raiseAbuse(ctx, rec)
		}

		c.Response().Header().Set("Retry-After", "1")
		return sserr.New(sserr.CodeRateLimited, "rate limit exceeded").WithDetail("client_ip", client)
	}
}
