package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/StricklySoft/contentflow/pkg/artifacts"
	objstore "github.com/StricklySoft/contentflow/pkg/clients/minio"
	"github.com/StricklySoft/contentflow/pkg/clients/postgres"
	"github.com/StricklySoft/contentflow/pkg/clients/redis"
	"github.com/StricklySoft/contentflow/pkg/compliance"
	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/executors"
	"github.com/StricklySoft/contentflow/pkg/kv"
	"github.com/StricklySoft/contentflow/pkg/monitor"
	"github.com/StricklySoft/contentflow/pkg/orchestrator"
	"github.com/StricklySoft/contentflow/pkg/phases"
	"github.com/StricklySoft/contentflow/pkg/quota"
	"github.com/StricklySoft/contentflow/pkg/workflow"
)

// app holds the components shared by every subcommand. The orchestrator
// and archive are only built by commands that run phases.
type app struct {
	cfg    *AppConfig
	logger *slog.Logger

	store     kv.Store
	registry  *phases.Registry
	ledger    *quota.Ledger
	workflows *workflow.Store
	monitor   *monitor.Monitor
	deliverer monitor.Deliverer
	sweeper   *monitor.Sweeper

	closers []func()
}

// newApp opens the configured store and builds the state components over
// it. Callers must Close the result.
func newApp(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (*app, error) {
	registry, err := phases.NewRegistryFromConfig(cfg.Agents)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, registry: registry}
	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	a.ledger = quota.NewLedger(store, cfg.Quota.DailyLimit, quota.WithLogger(logger))
	a.workflows = workflow.NewStore(store, workflow.WithLogger(logger))
	a.monitor = monitor.New(store, monitor.WithLogger(logger))
	if cfg.Monitor.WebhookURL != "" {
		a.deliverer = monitor.NewWebhookDeliverer(cfg.Monitor.WebhookURL, nil)
	} else {
		a.deliverer = monitor.LogDeliverer{Logger: logger}
	}
	var sweepOpts []monitor.SweeperOption
	if p, ok := store.(monitor.Purger); ok {
		sweepOpts = append(sweepOpts, monitor.WithPurger(p))
	}
	a.sweeper = monitor.NewSweeper(a.monitor, a.workflows, a.deliverer, cfg.Monitor.StuckThreshold, sweepOpts...)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (kv.Store, error) {
	switch a.cfg.Store {
	case StoreRedis:
		client, err := redis.NewClient(ctx, a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("failed to close redis client", "error", err)
			}
		})
		a.logger.Info("using redis store")
		return kv.NewRedisStore(client), nil

	case StorePostgres:
		client, err := postgres.NewClient(ctx, a.cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		store := kv.NewPostgresStore(client)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("using postgres store")
		return store, nil

	case StoreMemory, "":
		a.logger.Warn("using in-memory store; state is lost on exit")
		return kv.NewMemoryStore(), nil
	}
	return nil, sserr.Newf(sserr.CodeInternalConfiguration, "unknown store %q", a.cfg.Store)
}

// Close releases store connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openArchive connects to object storage when archiving is enabled. It
// returns nil, nil when it is not.
func (a *app) openArchive(ctx context.Context) (*artifacts.Archive, error) {
	if !a.cfg.Archive.Enabled {
		return nil, nil
	}
	client, err := objstore.NewClient(ctx, a.cfg.Archive.MinIO)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	a.logger.Info("archiving drafts", "bucket", client.Bucket())
	return artifacts.New(client, a.logger), nil
}

// buildOrchestrator wires the remote executors, the compliance rule set
// and the optional archive. httpClient may be nil.
func (a *app) buildOrchestrator(archive *artifacts.Archive, rec orchestrator.Recorder, httpClient *http.Client) (*orchestrator.Orchestrator, error) {
	var execs orchestrator.Executors
	for _, w := range []struct {
		phase phases.Phase
		cfg   ExecutorConfig
		dst   *orchestrator.Executor
	}{
		{phases.Research, a.cfg.Executors.Research, &execs.Research},
		{phases.Outline, a.cfg.Executors.Outline, &execs.Outline},
		{phases.Draft, a.cfg.Executors.Draft, &execs.Draft},
	} {
		exec, err := a.newExecutor(w.phase, w.cfg, httpClient)
		if err != nil {
			return nil, err
		}
		*w.dst = exec
	}

	rules, err := compliance.LoadRuleSet(a.cfg.Compliance.RuleFile)
	if err != nil {
		return nil, err
	}
	eval, err := compliance.NewEvaluator(rules)
	if err != nil {
		return nil, err
	}

	cfg := orchestrator.Config{
		Registry:   a.registry,
		Ledger:     a.ledger,
		Workflows:  a.workflows,
		Monitor:    a.monitor,
		Executors:  execs,
		Compliance: orchestrator.NewComplianceExecutor(eval),
		Deliverer:  a.deliverer,
		Costs:      a.cfg.Quota.Costs(),
		Recorder:   rec,
		Logger:     a.logger,
	}
	if archive != nil {
		cfg.Archiver = archive
	}
	return orchestrator.New(cfg)
}

func (a *app) newExecutor(phase phases.Phase, cfg ExecutorConfig, httpClient *http.Client) (orchestrator.Executor, error) {
	agent := cfg.Agent
	if agent == "" {
		designated, err := a.registry.ModelFor(phase)
		if err != nil {
			return nil, err
		}
		agent = designated
	}
	exec, err := executors.NewHTTP(executors.Config{
		Agent:         agent,
		URL:           cfg.URL,
		Token:         cfg.Token,
		Timeout:       cfg.Timeout,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
	}, httpClient)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration, "%s executor", phase)
	}
	return exec, nil
}
