// Package adminapi serves the operator-facing HTTP surface: workflow
// submission and inspection, alerts, abuse records, quota, artifact links
// and maintenance sweeps.
//
// Every /api/v1 route passes a per-client rate limiter and HS256 bearer
// authentication. Limiter rejections and authentication failures are fed
// into the abuse monitor, and the request that first flags a client raises
// an abuse_detected alert.
package adminapi

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/StricklySoft/contentflow/internal/metrics"
	"github.com/StricklySoft/contentflow/pkg/auth"
	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/monitor"
	"github.com/StricklySoft/contentflow/pkg/orchestrator"
	"github.com/StricklySoft/contentflow/pkg/quota"
	"github.com/StricklySoft/contentflow/pkg/workflow"
)

const (
	// DefaultRatePerSecond is the sustained per-client request rate.
	DefaultRatePerSecond = 1.0

	// DefaultBurst is the per-client burst size.
	DefaultBurst = 10

	// maxBodyBytes caps request bodies.
	maxBodyBytes = "1M"
)

// ArtifactLinker resolves an archived draft key to a download link.
type ArtifactLinker interface {
	URL(ctx context.Context, key string, expires time.Duration) (*url.URL, error)
}

// Config wires a Server. Orchestrator, Workflows, Monitor, Ledger and
// Validator are required.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Workflows    *workflow.Store
	Monitor      *monitor.Monitor
	Ledger       *quota.Ledger
	Validator    auth.TokenValidator

	// Optional collaborators.
	Sweeper   *monitor.Sweeper
	Artifacts ArtifactLinker
	Deliverer monitor.Deliverer
	Metrics   *metrics.Metrics

	// RatePerSecond and Burst size the per-client limiter. Zero values use
	// the defaults.
	RatePerSecond float64
	Burst         int

	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool

	// StuckThreshold drives the stuck flag on workflow views.
	StuckThreshold time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Server is the admin HTTP server.
type Server struct {
	echo         *echo.Echo
	orchestrator *orchestrator.Orchestrator
	workflows    *workflow.Store
	monitor      *monitor.Monitor
	ledger       *quota.Ledger
	sweeper      *monitor.Sweeper
	artifacts    ArtifactLinker
	deliverer    monitor.Deliverer
	metrics      *metrics.Metrics
	limiters     *limiterSet
	threshold    time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// New validates cfg and builds a Server with all routes registered.
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Orchestrator == nil:
		return nil, sserr.New(sserr.CodeInternalConfiguration, "adminapi: orchestrator is required")
	case cfg.Workflows == nil:
		return nil, sserr.New(sserr.CodeInternalConfiguration, "adminapi: workflow store is required")
	case cfg.Monitor == nil:
		return nil, sserr.New(sserr.CodeInternalConfiguration, "adminapi: monitor is required")
	case cfg.Ledger == nil:
		return nil, sserr.New(sserr.CodeInternalConfiguration, "adminapi: quota ledger is required")
	case cfg.Validator == nil:
		return nil, sserr.New(sserr.CodeInternalConfiguration, "adminapi: token validator is required")
	case cfg.RatePerSecond < 0 || cfg.Burst < 0:
		return nil, sserr.New(sserr.CodeValidationRange, "adminapi: rate limit must not be negative")
	}

	s := &Server{
		orchestrator: cfg.Orchestrator,
		workflows:    cfg.Workflows,
		monitor:      cfg.Monitor,
		ledger:       cfg.Ledger,
		sweeper:      cfg.Sweeper,
		artifacts:    cfg.Artifacts,
		deliverer:    cfg.Deliverer,
		metrics:      cfg.Metrics,
		threshold:    cfg.StuckThreshold,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.threshold <= 0 {
		s.threshold = monitor.DefaultStuckThreshold
	}
	ratePerSecond, burst := cfg.RatePerSecond, cfg.Burst
	if ratePerSecond == 0 {
		ratePerSecond = DefaultRatePerSecond
	}
	if burst == 0 {
		burst = DefaultBurst
	}
	s.limiters = newLimiterSet(ratePerSecond, burst, s.now)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	if cfg.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodyBytes))
	if s.metrics != nil {
		e.Use(s.metrics.EchoMiddleware())
	}
	e.Use(s.requestLogger)

	s.echo = e
	s.registerRoutes(cfg.Validator)
	return s, nil
}

func (s *Server) registerRoutes(validator auth.TokenValidator) {
	s.echo.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	read := echo.WrapMiddleware(auth.RequireAction(auth.ActionRead))
	submit := echo.WrapMiddleware(auth.RequireAction(auth.ActionSubmit))
	maintain := echo.WrapMiddleware(auth.RequireAction(auth.ActionMaintain))

	v1 := s.echo.Group("/api/v1",
		s.rateLimit,
		echo.WrapMiddleware(auth.HTTPMiddleware(validator, auth.WithFailureHook(s.onAuthFailure))),
	)
	v1.POST("/workflows", s.handleSubmit, submit)
	v1.GET("/workflows", s.handleListWorkflows, read)
	v1.GET("/workflows/:id", s.handleGetWorkflow, read)
	v1.POST("/workflows/phases/:phase", s.handleRunPhase, submit)
	v1.POST("/workflows/:id/phases/:phase", s.handleRunPhase, submit)
	v1.GET("/alerts", s.handleListAlerts, read)
	v1.GET("/abuse/:client", s.handleGetAbuse, read)
	v1.GET("/quota", s.handleQuota, read)
	v1.GET("/artifacts/:key", s.handleArtifact, read)
	v1.POST("/sweep", s.handleSweep, maintain)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() *echo.Echo { return s.echo }

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting admin api", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down admin api")
	return s.echo.Shutdown(ctx)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}
		s.logger.InfoContext(c.Request().Context(), "http request",
			"method", c.Request().Method,
			"uri", c.Request().RequestURI,
			"status", c.Response().Status,
			"duration", time.Since(start),
			"client_ip", c.RealIP(),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
		return nil
	}
}
