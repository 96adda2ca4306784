package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/contentflow/internal/testutil"
	"github.com/StricklySoft/contentflow/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/orchestrator"
	"github.com/StricklySoft/contentflow/pkg/phases"
)

func newExecutor(t *testing.T, srv *httptest.Server, mutate func(*Config)) *HTTPExecutor {
	t.Helper()
	cfg := Config{Agent: fixtures.ResearchAgent, URL: srv.URL, Token: "s3cret"}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewHTTP(cfg, srv.Client())
	require.NoError(t, err)
	return e
}

func input() orchestrator.Input {
	return orchestrator.Input{
		WorkflowID: "wf-1",
		Phase:      phases.Research,
		Brief:      orchestrator.Brief{Topic: fixtures.Topic},
	}
}

// ===========================================================================
// Config
// ===========================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		code sserr.Code
	}{
		{"ok", Config{Agent: "a", URL: "https://gen.internal/research"}, ""},
		{"no agent", Config{URL: "https://gen.internal"}, sserr.CodeValidationRequired},
		{"bad scheme", Config{Agent: "a", URL: "ftp://gen.internal"}, sserr.CodeValidationFormat},
		{"no host", Config{Agent: "a", URL: "http://"}, sserr.CodeValidationFormat},
		{"negative timeout", Config{Agent: "a", URL: "http://x", Timeout: -time.Second}, sserr.CodeValidationRange},
		{"negative rate", Config{Agent: "a", URL: "http://x", RatePerSecond: -1}, sserr.CodeValidationRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			testutil.RequireErrorCode(t, err, tt.code)
		})
	}
}

func TestToken_Redacted(t *testing.T) {
	tok := Token("s3cret")
	assert.Equal(t, "[REDACTED]", tok.String())
	assert.NotContains(t, fmt.Sprintf("%v %#v", tok, tok), "s3cret")
}

// ===========================================================================
// Execute
// ===========================================================================

func TestHTTPExecutor_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "wf-1", r.Header.Get("X-Workflow-ID"))
		assert.Equal(t, "research", r.Header.Get("X-Workflow-Phase"))

		var in orchestrator.Input
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, fixtures.Topic, in.Brief.Topic)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"summary":"ok","key_points":["a"]}`))
	}))
	defer srv.Close()

	e := newExecutor(t, srv, nil)
	assert.Equal(t, fixtures.ResearchAgent, e.Agent())

	out := e.Execute(context.Background(), input())
	require.True(t, out.IsOk(), out.Message)
	assert.JSONEq(t, `{"summary":"ok","key_points":["a"]}`, string(out.Output))
}

func TestHTTPExecutor_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			},
			want: "returned 503: overloaded",
		},
		{
			name: "rejected",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "quota", http.StatusTooManyRequests)
			},
			want: "returned 429",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<html>oops</html>"))
			},
			want: "malformed JSON",
		},
		{
			name: "oversized body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`"` + strings.Repeat("a", MaxResponseBytes) + `"`))
			},
			want: "exceeds",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			out := newExecutor(t, srv, nil).Execute(context.Background(), input())
			assert.False(t, out.IsOk())
			assert.Equal(t, orchestrator.KindExecutor, out.Kind)
			assert.Contains(t, out.Message, tt.want)
		})
	}
}

func TestHTTPExecutor_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	e := newExecutor(t, srv, nil)
	srv.Close()

	out := e.Execute(context.Background(), input())
	assert.Equal(t, orchestrator.KindExecutor, out.Kind)
	assert.Contains(t, out.Message, "request failed")
}

func TestHTTPExecutor_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	e := newExecutor(t, srv, func(c *Config) { c.RatePerSecond = 0.001 })
	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, e.Execute(ctx, input()).IsOk(), "burst allows the first call")
	cancel()
	out := e.Execute(ctx, input())
	assert.Equal(t, orchestrator.KindExecutor, out.Kind)
	assert.Contains(t, out.Message, "rate limiter")
}

func TestHTTPExecutor_NoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	out := newExecutor(t, srv, func(c *Config) { c.Token = "" }).Execute(context.Background(), input())
	assert.True(t, out.IsOk())
}
