package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/models"
)

// Deliverer sends an alert to an external channel.
type Deliverer interface {
	Deliver(ctx context.Context, alert *models.Alert) error
}

// DefaultWebhookTimeout bounds a single webhook POST.
const DefaultWebhookTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// WebhookDeliverer POSTs the alert as JSON to a fixed URL.
type WebhookDeliverer struct {
	url    string
	client *http.Client
}

// NewWebhookDeliverer returns a WebhookDeliverer for url. A nil client
// gets one with DefaultWebhookTimeout.
func NewWebhookDeliverer(url string, client *http.Client) *WebhookDeliverer {
	if client == nil {
		client = &http.Client{Timeout: DefaultWebhookTimeout}
	}
	return &WebhookDeliverer{url: url, client: client}
}

// webhookPayload carries a text line for chat webhooks alongside the
// structured alert.
type webhookPayload struct {
	Text  string        `json:"text"`
	Alert *models.Alert `json:"alert"`
}

// Deliver implements Deliverer. Any non-2xx response is an error.
func (d *WebhookDeliverer) Deliver(ctx context.Context, alert *models.Alert) error {
	body, err := json.Marshal(webhookPayload{
		Text:  fmt.Sprintf("[%s] %s: %s", alert.Severity, alert.Type, alert.Message),
		Alert: alert,
	})
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternal, "monitor: encode webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternalConfiguration, "monitor: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "monitor: webhook request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return sserr.Newf(sserr.CodeUnavailableDependency,
			"monitor: webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// LogDeliverer writes alerts to a logger. It is the fallback when no
// webhook is configured.
type LogDeliverer struct {
	Logger *slog.Logger
}

// Deliver implements Deliverer.
func (d LogDeliverer) Deliver(ctx context.Context, alert *models.Alert) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelWarn
	if alert.Severity == models.SeverityCritical {
		level = slog.LevelError
	}
	logger.Log(ctx, level, "alert",
		"alert_id", alert.ID,
		"type", alert.Type,
		"severity", alert.Severity,
		"message", alert.Message,
		"details", alert.Details,
	)
	return nil
}

// Notify delivers alert and marks it notified. Delivery and marking
// failures are logged and never returned. When delivery fails the alert
// stays unnotified so a later sweep can retry it.
func Notify(ctx context.Context, m *Monitor, d Deliverer, alert *models.Alert) {
	if alert == nil || d == nil {
		return
	}
	if err := d.Deliver(ctx, alert); err != nil {
		m.logger.WarnContext(ctx, "alert delivery failed",
			"alert_id", alert.ID, "type", alert.Type, "error", err)
		return
	}
	if err := m.MarkNotified(ctx, alert.ID); err != nil {
		m.logger.WarnContext(ctx, "mark alert notified failed",
			"alert_id", alert.ID, "error", err)
		return
	}
	alert.Notified = true
}
