// Package metrics exposes Prometheus instruments for the engine.
//
// Metrics are registered on a caller-supplied registry so tests and
// multiple servers in one process do not collide on the default one.
//
// Exported series:
//   - contentflow_phase_duration_seconds{phase,result}
//   - contentflow_workflows_total{status}
//   - contentflow_quota_rejections_total
//   - contentflow_quota_used_units
//   - contentflow_auth_failures_total
//   - contentflow_rate_limited_total
//   - contentflow_alerts_raised_total{type}
//   - contentflow_http_requests_total{method,route,code}
//   - contentflow_http_request_duration_seconds{method,route}
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StricklySoft/contentflow/pkg/models"
	"github.com/StricklySoft/contentflow/pkg/orchestrator"
	"github.com/StricklySoft/contentflow/pkg/phases"
)

const namespace = "contentflow"

// Metrics holds every instrument. It implements orchestrator.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	PhaseDuration    *prometheus.HistogramVec
	Workflows        *prometheus.CounterVec
	QuotaRejections  prometheus.Counter
	QuotaUsed        prometheus.Gauge
	AuthFailures     prometheus.Counter
	RateLimited      prometheus.Counter
	AlertsRaised     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPRequestTimes *prometheus.HistogramVec
}

var _ orchestrator.Recorder = (*Metrics)(nil)

// New registers all instruments on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of phase executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"phase", "result"}),
		Workflows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_total",
			Help:      "Workflows that reached a terminal status",
		}, []string{"status"}),
		QuotaRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejections_total",
			Help:      "Submissions rejected by the daily quota",
		}),
		QuotaUsed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_used_units",
			Help:      "Units consumed today as of the last quota read",
		}),
		AuthFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected admin API authentications",
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Admin API requests rejected by the per-client limiter",
		}),
		AlertsRaised: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by the API and the sweeper",
		}, []string{"type"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Admin API requests by route and status code",
		}, []string{"method", "route", "code"}),
		HTTPRequestTimes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Admin API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePhase records one phase execution. result is "ok" or an
// orchestrator error kind.
func (m *Metrics) ObservePhase(phase phases.Phase, result string, elapsed time.Duration) {
	m.PhaseDuration.WithLabelValues(string(phase), result).Observe(elapsed.Seconds())
}

// ObserveWorkflow counts a workflow reaching status.
func (m *Metrics) ObserveWorkflow(status models.Status) {
	m.Workflows.WithLabelValues(string(status)).Inc()
}

// ObserveQuotaRejection counts a quota rejection.
func (m *Metrics) ObserveQuotaRejection() { m.QuotaRejections.Inc() }

// ObserveQuotaUsage sets the quota gauge.
func (m *Metrics) ObserveQuotaUsage(used int64) { m.QuotaUsed.Set(float64(used)) }

// ObserveAuthFailure counts a rejected authentication.
func (m *Metrics) ObserveAuthFailure() { m.AuthFailures.Inc() }

// ObserveRateLimited counts a limiter rejection.
func (m *Metrics) ObserveRateLimited() { m.RateLimited.Inc() }

// ObserveAlert counts a raised alert.
func (m *Metrics) ObserveAlert(alertType models.AlertType) {
	m.AlertsRaised.WithLabelValues(string(alertType)).Inc()
}

// EchoMiddleware records request counts and latency per route template.
func (m *Metrics) EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestTimes.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
