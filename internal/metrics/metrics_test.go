package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/contentflow/pkg/models"
	"github.com/StricklySoft/contentflow/pkg/phases"
)

func TestNew_NilRegistry(t *testing.T) {
	t.Parallel()
	m := New(nil)
	require.NotNil(t, m.Registry())

	// A second set on its own registry must not panic on duplicate names.
	assert.NotPanics(t, func() { New(nil) })
}

func TestRecorder(t *testing.T) {
	t.Parallel()
	m := New(nil)

	m.ObservePhase(phases.Research, "ok", 1500*time.Millisecond)
	m.ObservePhase(phases.Draft, "executor", time.Second)
	m.ObserveWorkflow(models.StatusCompleted)
	m.ObserveWorkflow(models.StatusCompleted)
	m.ObserveWorkflow(models.StatusFailed)
	m.ObserveQuotaRejection()
	m.ObserveQuotaUsage(22000)
	m.ObserveAuthFailure()
	m.ObserveRateLimited()
	m.ObserveAlert(models.AlertAbuseDetected)

	assert.Equal(t, 2, testutil.CollectAndCount(m.PhaseDuration))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Workflows.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Workflows.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QuotaRejections))
	assert.Equal(t, float64(22000), testutil.ToFloat64(m.QuotaUsed))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuthFailures))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimited))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AlertsRaised.WithLabelValues("abuse_detected")))
}

func TestHandler_ExposesSeries(t *testing.T) {
	t.Parallel()
	m := New(nil)
	m.ObserveWorkflow(models.StatusCompleted)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `contentflow_workflows_total{status="completed"} 1`)
}

func TestEchoMiddleware(t *testing.T) {
	t.Parallel()
	m := New(nil)
	e := echo.New()
	e.Use(m.EchoMiddleware())
	e.GET("/workflows/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "nope")
	})

	for _, path := range []string{"/workflows/a", "/workflows/b", "/boom", "/missing"} {
		rr := httptest.NewRecorder()
		e.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/workflows/:id", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/boom", "418")))

	assert.GreaterOrEqual(t, testutil.CollectAndCount(m.HTTPRequestTimes), 2)
}
