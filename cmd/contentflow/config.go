package main

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/StricklySoft/contentflow/pkg/auth"
	objstore "github.com/StricklySoft/contentflow/pkg/clients/minio"
	"github.com/StricklySoft/contentflow/pkg/clients/postgres"
	"github.com/StricklySoft/contentflow/pkg/clients/redis"
	"github.com/StricklySoft/contentflow/pkg/config"
	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/executors"
	"github.com/StricklySoft/contentflow/pkg/phases"
)

// envPrefix namespaces every environment variable, e.g.
// CONTENTFLOW_REDIS_HOST.
const envPrefix = "CONTENTFLOW"

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// AppConfig is the full process configuration.
type AppConfig struct {
	// Store selects the state backend: memory, redis or postgres. Memory
	// state does not outlive the process.
	Store    string `yaml:"store" env:"STORE" envDefault:"memory"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" envDefault:"info"`

	Redis    redis.Config    `yaml:"redis" env:"REDIS"`
	Postgres postgres.Config `yaml:"postgres" env:"POSTGRES"`
	Archive  ArchiveConfig   `yaml:"archive" env:"ARCHIVE"`

	Quota      QuotaConfig      `yaml:"quota" env:"QUOTA"`
	Executors  ExecutorsConfig  `yaml:"executors" env:"EXECUTORS"`
	Monitor    MonitorConfig    `yaml:"monitor" env:"MONITOR"`
	API        APIConfig        `yaml:"api" env:"API"`
	Compliance ComplianceConfig `yaml:"compliance" env:"COMPLIANCE"`

	// Agents overrides phase-to-agent designations, e.g.
	// "draft=draft-agent-v2".
	Agents map[string]string `yaml:"agents" env:"AGENTS"`
}

// ArchiveConfig enables object storage of completed drafts.
type ArchiveConfig struct {
	Enabled bool            `yaml:"enabled" env:"ENABLED"`
	MinIO   objstore.Config `yaml:"minio" env:"MINIO"`
}

// QuotaConfig sizes the daily budget and the per-phase estimates.
type QuotaConfig struct {
	DailyLimit     int64 `yaml:"daily_limit" env:"DAILY_LIMIT" envDefault:"30000"`
	ResearchCost   int64 `yaml:"research_cost" env:"RESEARCH_COST" envDefault:"6000"`
	OutlineCost    int64 `yaml:"outline_cost" env:"OUTLINE_COST" envDefault:"4000"`
	DraftCost      int64 `yaml:"draft_cost" env:"DRAFT_COST" envDefault:"12000"`
	ComplianceCost int64 `yaml:"compliance_cost" env:"COMPLIANCE_COST"`
}

// Costs returns the per-phase estimates keyed by phase.
func (q QuotaConfig) Costs() map[phases.Phase]int64 {
	return map[phases.Phase]int64{
		phases.Research:   q.ResearchCost,
		phases.Outline:    q.OutlineCost,
		phases.Draft:      q.DraftCost,
		phases.Compliance: q.ComplianceCost,
	}
}

// ExecutorsConfig points the three generation phases at remote services.
type ExecutorsConfig struct {
	Research ExecutorConfig `yaml:"research" env:"RESEARCH"`
	Outline  ExecutorConfig `yaml:"outline" env:"OUTLINE"`
	Draft    ExecutorConfig `yaml:"draft" env:"DRAFT"`
}

// ExecutorConfig configures one remote executor. An empty Agent takes the
// registry's designation for the phase.
type ExecutorConfig struct {
	URL           string          `yaml:"url" env:"URL"`
	Agent         string          `yaml:"agent" env:"AGENT"`
	Token         executors.Token `yaml:"-" env:"TOKEN"`
	Timeout       time.Duration   `yaml:"timeout" env:"TIMEOUT" envDefault:"120s"`
	RatePerSecond float64         `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	Burst         int             `yaml:"burst" env:"BURST"`
}

// MonitorConfig drives stuck detection and alert delivery.
type MonitorConfig struct {
	StuckThreshold time.Duration `yaml:"stuck_threshold" env:"STUCK_THRESHOLD" envDefault:"5m"`
	SweepInterval  time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" envDefault:"1m"`

	// WebhookURL receives alerts as JSON. Empty logs alerts instead.
	WebhookURL string `yaml:"webhook_url" env:"WEBHOOK_URL"`
}

// APIConfig configures the admin HTTP server.
type APIConfig struct {
	Listen        string      `yaml:"listen" env:"LISTEN" envDefault:":8080"`
	JWTSecret     auth.Secret `yaml:"-" env:"JWT_SECRET"`
	JWTIssuer     string      `yaml:"jwt_issuer" env:"JWT_ISSUER" envDefault:"contentflow"`
	JWTAudience   string      `yaml:"jwt_audience" env:"JWT_AUDIENCE"`
	RatePerSecond float64     `yaml:"rate_per_second" env:"RATE_PER_SECOND" envDefault:"1"`
	Burst         int         `yaml:"burst" env:"BURST" envDefault:"10"`
	TrustProxy    bool        `yaml:"trust_proxy" env:"TRUST_PROXY"`
}

// ComplianceConfig selects the rule set. An empty RuleFile uses the
// built-in defaults.
type ComplianceConfig struct {
	RuleFile string `yaml:"rule_file" env:"RULE_FILE"`
}

// Validate implements config.Validator.
func (c *AppConfig) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis, StorePostgres:
	default:
		return sserr.Newf(sserr.CodeValidation,
			"config: store must be memory, redis or postgres, got %q", c.Store)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Quota.DailyLimit <= 0 {
		return sserr.New(sserr.CodeValidationRange, "config: quota.daily_limit must be positive")
	}
	for p, cost := range c.Quota.Costs() {
		if cost < 0 {
			return sserr.Newf(sserr.CodeValidationRange, "config: %s cost must not be negative", p)
		}
	}
	for name := range c.Agents {
		if _, err := phases.Parse(name); err != nil {
			return err
		}
	}
	if c.Monitor.StuckThreshold <= 0 || c.Monitor.SweepInterval <= 0 {
		return sserr.New(sserr.CodeValidationRange, "config: monitor intervals must be positive")
	}
	return nil
}

// loadConfig resolves defaults, the optional file and the environment, in
// that order, then runs Validate.
func loadConfig(path string) (*AppConfig, error) {
	loader := config.New().WithEnvPrefix(envPrefix)
	if path != "" {
		loader = loader.WithFile(path)
	}
	cfg := &AppConfig{}
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, sserr.Wrapf(err, sserr.CodeValidationFormat, "config: invalid log level %q", s)
	}
	return lvl, nil
}

// newLogger installs a JSON handler on stderr at the configured level and
// makes it the process default.
func newLogger(level string) *slog.Logger {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
