// Package executors provides phase executors that call remote
// generation services.
package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/orchestrator"
)

const (
	// DefaultTimeout bounds one remote call.
	DefaultTimeout = 2 * time.Minute

	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes = 4 << 20

	maxErrorSnippet = 256
)

// Token is a bearer token that never prints.
type Token string

func (t Token) String() string   { return "[REDACTED]" }
func (t Token) GoString() string { return "[REDACTED]" }

// Config configures an HTTPExecutor.
type Config struct {
	// Agent is the identity checked against the phase registry.
	Agent string

	// URL receives a POST of the orchestrator.Input as JSON and answers
	// with the phase output as JSON.
	URL string

	Token   Token
	Timeout time.Duration

	// RatePerSecond throttles outgoing calls. Zero disables throttling.
	RatePerSecond float64
	Burst         int
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Agent == "" {
		return sserr.New(sserr.CodeValidationRequired, "executors: agent is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return sserr.Newf(sserr.CodeValidationFormat, "executors: invalid URL %q", c.URL)
	}
	if c.Timeout < 0 {
		return sserr.New(sserr.CodeValidationRange, "executors: timeout must not be negative")
	}
	if c.RatePerSecond < 0 {
		return sserr.New(sserr.CodeValidationRange, "executors: rate must not be negative")
	}
	return nil
}

// HTTPExecutor runs a phase on a remote JSON service. Every failure,
// including transport errors, non-2xx answers and bodies that are not
// JSON, becomes a KindExecutor outcome.
type HTTPExecutor struct {
	agent   string
	url     string
	token   Token
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTP validates cfg and returns an executor. A nil client gets one
// with cfg.Timeout (DefaultTimeout when zero).
func NewHTTP(cfg Config, client *http.Client) (*HTTPExecutor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	e := &HTTPExecutor{agent: cfg.Agent, url: cfg.URL, token: cfg.Token, client: client}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return e, nil
}

var _ orchestrator.Executor = (*HTTPExecutor)(nil)

// Agent implements orchestrator.Executor.
func (e *HTTPExecutor) Agent() string { return e.agent }

// Execute implements orchestrator.Executor.
func (e *HTTPExecutor) Execute(ctx context.Context, in orchestrator.Input) orchestrator.Outcome {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return fail("rate limiter: %v", err)
		}
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fail("encode input: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fail("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Workflow-ID", in.WorkflowID)
	req.Header.Set("X-Workflow-Phase", string(in.Phase))
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+string(e.token))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fail("%s request failed: %v", e.agent, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return fail("%s read response: %v", e.agent, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail("%s returned %d: %s", e.agent, resp.StatusCode, snippet(out))
	}
	if len(out) > MaxResponseBytes {
		return fail("%s response exceeds %d bytes", e.agent, MaxResponseBytes)
	}
	if !json.Valid(out) {
		return fail("%s returned malformed JSON: %s", e.agent, snippet(out))
	}
	return orchestrator.Ok(json.RawMessage(out))
}

func fail(format string, args ...any) orchestrator.Outcome {
	return orchestrator.Err(orchestrator.KindExecutor, fmt.Sprintf(format, args...))
}

func snippet(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxErrorSnippet {
		return string(b[:maxErrorSnippet]) + "..."
	}
	return string(b)
}
