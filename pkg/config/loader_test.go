package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

// ===========================================================================
// Test Types
// ===========================================================================

// testSecret is a named string type, as used for JWT secrets and
// store passwords.
type testSecret string

type basicConfig struct {
	Host    string        `env:"HOST" envDefault:"localhost" yaml:"host" json:"host"`
	Port    int           `env:"PORT" envDefault:"8080" yaml:"port" json:"port"`
	Debug   bool          `env:"DEBUG" envDefault:"false" yaml:"debug" json:"debug"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s" yaml:"timeout" json:"-"`
}

type requiredConfig struct {
	Name string `env:"NAME" required:"true"`
}

type nestedConfig struct {
	App   string         `env:"APP"`
	Quota quotaSubConfig `env:"QUOTA" yaml:"quota"`
}

type quotaSubConfig struct {
	DailyLimit int64      `env:"DAILY_LIMIT" envDefault:"30000" yaml:"daily_limit"`
	Secret     testSecret `env:"SECRET"`
}

type collectionConfig struct {
	Domains []string          `env:"DOMAINS" envDefault:"sba.gov,example.gov"`
	Agents  map[string]string `env:"AGENTS"`
	Ratio   float64           `env:"RATIO" envDefault:"0.5"`
}

type validatableConfig struct {
	Threshold time.Duration `env:"THRESHOLD" envDefault:"5m"`
}

func (c *validatableConfig) Validate() error {
	if c.Threshold <= 0 {
		return sserr.New(sserr.CodeValidationRange, "config: threshold must be positive")
	}
	return nil
}

type stdlibValidatableConfig struct {
	Name string `env:"NAME"`
}

func (c *stdlibValidatableConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type nestedRequiredConfig struct {
	Store nestedRequiredStore `env:"STORE"`
}

type nestedRequiredStore struct {
	URL string `env:"URL" required:"true"`
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writeTestFile() error: %v", err)
	}
	return path
}

// ===========================================================================
// Builder and input checks
// ===========================================================================

func TestLoader_WithEnvPrefix_UpperCases(t *testing.T) {
	l := New().WithEnvPrefix("contentflow")
	if l.envPrefix != "CONTENTFLOW" {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, "CONTENTFLOW")
	}
}

// TestLoader_Load_RejectsNonStructPointer covers nil, value and
// pointer-to-int arguments.
func TestLoader_Load_RejectsNonStructPointer(t *testing.T) {
	n := 42
	for name, arg := range map[string]any{
		"nil pointer": (*basicConfig)(nil),
		"value":       basicConfig{},
		"int pointer": &n,
	} {
		t.Run(name, func(t *testing.T) {
			err := New().Load(arg)
			if sserr.GetCode(err) != sserr.CodeInternalConfiguration {
				t.Fatalf("Load() code = %q, want %q", sserr.GetCode(err), sserr.CodeInternalConfiguration)
			}
		})
	}
}

// ===========================================================================
// Layering
// ===========================================================================

func TestLoader_Load_Defaults(t *testing.T) {
	var cfg basicConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host != "localhost" || cfg.Port != 8080 || cfg.Debug || cfg.Timeout != 30*time.Second {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoader_Load_EnvOverridesDefault(t *testing.T) {
	t.Setenv("CF_HOST", "redis.internal")
	t.Setenv("CF_TIMEOUT", "2s")

	var cfg basicConfig
	if err := New().WithEnvPrefix("cf").Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host != "redis.internal" {
		t.Errorf("Host = %q, want %q", cfg.Host, "redis.internal")
	}
	if cfg.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", cfg.Timeout)
	}
}

func TestLoader_Load_YAMLFileThenEnv(t *testing.T) {
	path := writeTestFile(t, "config.yaml", "host: file-host\nport: 9090\n")
	t.Setenv("PORT", "7070")

	var cfg basicConfig
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host != "file-host" {
		t.Errorf("Host = %q, want file value", cfg.Host)
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, want env value 7070", cfg.Port)
	}
}

func TestLoader_Load_JSONFile(t *testing.T) {
	path := writeTestFile(t, "config.json", `{"host":"json-host","debug":true}`)

	var cfg basicConfig
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host != "json-host" || !cfg.Debug {
		t.Errorf("Load() = %+v, want json values", cfg)
	}
}

func TestLoader_Load_MissingFileSkipped(t *testing.T) {
	var cfg basicConfig
	err := New().WithFile(filepath.Join(t.TempDir(), "absent.yaml")).Load(&cfg)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host != "localhost" {
		t.Errorf("Host = %q, want default", cfg.Host)
	}
}

func TestLoader_Load_FileErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"traversal", func(*testing.T) string { return "../etc/config.yaml" }},
		{"unknown extension", func(t *testing.T) string { return writeTestFile(t, "config.toml", "host = 'x'") }},
		{"malformed yaml", func(t *testing.T) string { return writeTestFile(t, "config.yaml", "host: [unterminated") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg basicConfig
			err := New().WithFile(tt.path(t)).Load(&cfg)
			if sserr.GetCode(err) != sserr.CodeInternalConfiguration {
				t.Fatalf("Load() code = %q, want %q (err: %v)", sserr.GetCode(err), sserr.CodeInternalConfiguration, err)
			}
		})
	}
}

func TestLoader_Load_NestedPrefix(t *testing.T) {
	t.Setenv("CONTENTFLOW_QUOTA_DAILY_LIMIT", "5000")
	t.Setenv("CONTENTFLOW_QUOTA_SECRET", "s3cret")

	var cfg nestedConfig
	if err := New().WithEnvPrefix("CONTENTFLOW").Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Quota.DailyLimit != 5000 {
		t.Errorf("Quota.DailyLimit = %d, want 5000", cfg.Quota.DailyLimit)
	}
	if cfg.Quota.Secret != "s3cret" {
		t.Errorf("Quota.Secret not applied to named string type")
	}
}

func TestLoader_Load_NestedYAML(t *testing.T) {
	path := writeTestFile(t, "config.yaml", "quota:\n  daily_limit: 1200\n")

	var cfg nestedConfig
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Quota.DailyLimit != 1200 {
		t.Errorf("Quota.DailyLimit = %d, want 1200", cfg.Quota.DailyLimit)
	}
}

// ===========================================================================
// Field kinds
// ===========================================================================

func TestLoader_Load_Collections(t *testing.T) {
	t.Setenv("AGENTS", "research=research-agent, draft = draft-agent")

	var cfg collectionConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if strings.Join(cfg.Domains, "|") != "sba.gov|example.gov" {
		t.Errorf("Domains = %v", cfg.Domains)
	}
	if cfg.Agents["research"] != "research-agent" || cfg.Agents["draft"] != "draft-agent" {
		t.Errorf("Agents = %v", cfg.Agents)
	}
	if cfg.Ratio != 0.5 {
		t.Errorf("Ratio = %v, want 0.5", cfg.Ratio)
	}
}

func TestLoader_Load_BadValues(t *testing.T) {
	tests := []struct {
		name, key, value string
		cfg              any
	}{
		{"integer", "PORT", "eighty", &basicConfig{}},
		{"bool", "DEBUG", "maybe", &basicConfig{}},
		{"duration", "TIMEOUT", "soon", &basicConfig{}},
		{"map entry", "AGENTS", "research", &collectionConfig{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			err := New().Load(tt.cfg)
			if sserr.GetCode(err) != sserr.CodeInternalConfiguration {
				t.Fatalf("Load() code = %q, want %q", sserr.GetCode(err), sserr.CodeInternalConfiguration)
			}
		})
	}
}

// ===========================================================================
// Validation
// ===========================================================================

func TestLoader_Load_Required(t *testing.T) {
	var cfg requiredConfig
	err := New().Load(&cfg)
	if sserr.GetCode(err) != sserr.CodeValidationRequired {
		t.Fatalf("Load() code = %q, want %q", sserr.GetCode(err), sserr.CodeValidationRequired)
	}

	t.Setenv("NAME", "contentflow")
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() with NAME set error: %v", err)
	}
}

func TestLoader_Load_NestedRequiredReportsPath(t *testing.T) {
	var cfg nestedRequiredConfig
	err := New().Load(&cfg)
	if err == nil || !strings.Contains(err.Error(), "Store.URL") {
		t.Fatalf("Load() error = %v, want mention of Store.URL", err)
	}
}

func TestLoader_Load_Validator(t *testing.T) {
	t.Setenv("THRESHOLD", "0s")
	var cfg validatableConfig
	err := New().Load(&cfg)
	if sserr.GetCode(err) != sserr.CodeValidationRange {
		t.Fatalf("Load() code = %q, want %q", sserr.GetCode(err), sserr.CodeValidationRange)
	}
}

func TestLoader_Load_ValidatorStdlibErrorWrapped(t *testing.T) {
	var cfg stdlibValidatableConfig
	err := New().Load(&cfg)
	if !sserr.IsValidation(err) {
		t.Fatalf("IsValidation(%v) = false, want true", err)
	}
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustLoad() did not panic")
		}
	}()
	_ = MustLoad[requiredConfig](New())
}

func TestMustLoad_ReturnsConfig(t *testing.T) {
	cfg := MustLoad[basicConfig](New())
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
}
