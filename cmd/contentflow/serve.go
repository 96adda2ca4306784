package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/StricklySoft/contentflow/internal/adminapi"
	"github.com/StricklySoft/contentflow/internal/metrics"
	"github.com/StricklySoft/contentflow/pkg/auth"
	"github.com/StricklySoft/contentflow/pkg/models"
	"github.com/StricklySoft/contentflow/pkg/monitor"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 15 * time.Second

func (c *cli) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the stuck-workflow sweeper",
		Long: `Run the admin API and a periodic stuck-workflow sweep until SIGINT or
SIGTERM.

Examples:
  # Serve with a config file
  contentflow serve --config /etc/contentflow/config.yaml

  # Serve on another port with a Redis store
  CONTENTFLOW_STORE=redis CONTENTFLOW_API_LISTEN=:9090 contentflow serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.withApp(ctx, func(a *app) error { return c.serve(ctx, a) })
		},
	}
}

func (c *cli) serve(ctx context.Context, a *app) error {
	validator, err := auth.NewHMACValidator(auth.ValidatorConfig{
		SigningKey: c.cfg.API.JWTSecret,
		Issuer:     c.cfg.API.JWTIssuer,
		Audience:   c.cfg.API.JWTAudience,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	archive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	orch, err := a.buildOrchestrator(archive, m, nil)
	if err != nil {
		return err
	}

	apiCfg := adminapi.Config{
		Orchestrator:   orch,
		Workflows:      a.workflows,
		Monitor:        a.monitor,
		Ledger:         a.ledger,
		Validator:      validator,
		Sweeper:        a.sweeper,
		Deliverer:      a.deliverer,
		Metrics:        m,
		RatePerSecond:  c.cfg.API.RatePerSecond,
		Burst:          c.cfg.API.Burst,
		TrustProxy:     c.cfg.API.TrustProxy,
		StuckThreshold: c.cfg.Monitor.StuckThreshold,
		Logger:         c.logger,
	}
	if archive != nil {
		apiCfg.Artifacts = archive
	}
	srv, err := adminapi.New(apiCfg)
	if err != nil {
		return err
	}

	go sweepLoop(ctx, a.sweeper, c.cfg.Monitor.SweepInterval, m, c.logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(c.cfg.API.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sweepLoop runs a stuck-workflow sweep every interval until ctx ends.
// Sweep errors are logged and the loop continues.
func sweepLoop(ctx context.Context, s *monitor.Sweeper, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		res, err := s.Sweep(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "stuck sweep failed", "error", err)
			continue
		}
		for range res.Raised {
			m.ObserveAlert(models.AlertWorkflowStuck)
		}
		if len(res.Stuck) > 0 || res.Purged > 0 {
			logger.InfoContext(ctx, "stuck sweep complete",
				"scanned", res.Scanned, "stuck", len(res.Stuck), "raised", res.Raised,
				"delivered", res.Delivered, "purged", res.Purged)
		}
	}
}
