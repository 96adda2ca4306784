package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/contentflow/internal/testutil"
	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/models"
)

// mockDeliverer is a testify mock of Deliverer.
type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, alert *models.Alert) error {
	return m.Called(ctx, alert).Error(0)
}

// ===========================================================================
// WebhookDeliverer
// ===========================================================================

func TestWebhookDeliverer_PostsJSON(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	alert := &models.Alert{ID: "a1", Type: models.AlertWorkflowFailed, Severity: models.SeverityCritical, Message: "draft failed"}
	err := NewWebhookDeliverer(srv.URL, srv.Client()).Deliver(context.Background(), alert)
	require.NoError(t, err)

	assert.Equal(t, "[critical] workflow_failed: draft failed", got.Text)
	require.NotNil(t, got.Alert)
	assert.Equal(t, "a1", got.Alert.ID)
}

func TestWebhookDeliverer_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "channel archived", http.StatusGone)
	}))
	defer srv.Close()

	err := NewWebhookDeliverer(srv.URL, nil).Deliver(context.Background(), &models.Alert{ID: "a1"})
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)
	assert.Contains(t, err.Error(), "410")
	assert.Contains(t, err.Error(), "channel archived")
}

func TestWebhookDeliverer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewWebhookDeliverer(url, nil).Deliver(context.Background(), &models.Alert{ID: "a1"})
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)
}

// ===========================================================================
// LogDeliverer
// ===========================================================================

func TestLogDeliverer(t *testing.T) {
	var buf bytes.Buffer
	d := LogDeliverer{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	err := d.Deliver(context.Background(), &models.Alert{
		ID: "a1", Type: models.AlertWorkflowFailed, Severity: models.SeverityCritical, Message: "boom",
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "a1", line["alert_id"])
	assert.Equal(t, "workflow_failed", line["type"])
}

// ===========================================================================
// Notify
// ===========================================================================

func TestNotify_MarksDelivered(t *testing.T) {
	m, _, _ := newMonitor(t)
	ctx := context.Background()
	a, err := m.CreateAlert(ctx, models.AlertWorkflowFailed, models.SeverityWarning, "x", nil)
	require.NoError(t, err)

	d := &mockDeliverer{}
	d.On("Deliver", mock.Anything, a).Return(nil).Once()

	Notify(ctx, m, d, a)

	d.AssertExpectations(t)
	assert.True(t, a.Notified)
	got, _, err := m.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified)
}

func TestNotify_SwallowsDeliveryFailure(t *testing.T) {
	m, _, _ := newMonitor(t)
	ctx := context.Background()
	a, err := m.CreateAlert(ctx, models.AlertWorkflowFailed, models.SeverityWarning, "x", nil)
	require.NoError(t, err)

	d := &mockDeliverer{}
	d.On("Deliver", mock.Anything, a).Return(errors.New("smtp down")).Once()

	assert.NotPanics(t, func() { Notify(ctx, m, d, a) })

	d.AssertExpectations(t)
	got, _, err := m.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Notified, "failed delivery stays pending")
}

func TestNotify_NilArguments(t *testing.T) {
	m, _, _ := newMonitor(t)
	assert.NotPanics(t, func() {
		Notify(context.Background(), m, nil, &models.Alert{ID: "a"})
		Notify(context.Background(), m, &mockDeliverer{}, nil)
	})
}

func TestNotify_WebhookEndToEnd(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	m, _, _ := newMonitor(t)
	ctx := context.Background()
	a, err := m.CreateAlert(ctx, models.AlertAbuseDetected, models.SeverityWarning, "1.2.3.4 flagged", nil)
	require.NoError(t, err)

	Notify(ctx, m, NewWebhookDeliverer(srv.URL, srv.Client()), a)

	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, a.Notified)
}
