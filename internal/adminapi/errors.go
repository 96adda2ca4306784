package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/models"
	"github.com/StricklySoft/contentflow/pkg/monitor"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// errorResponse maps err to a status and body. Platform errors carry their
// own status; echo errors keep theirs; anything else is a 500.
func errorResponse(err error) (int, ErrorResponse) {
	if e, ok := sserr.AsError(err); ok {
		return e.HTTPStatus(), ErrorResponse{Code: string(e.Code), Message: e.Message, Details: e.Details}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, ErrorResponse{Code: http.StatusText(he.Code), Message: fmt.Sprint(he.Message)}
	}
	return http.StatusInternalServerError, ErrorResponse{
		Code:    string(sserr.CodeInternal),
		Message: "internal server error",
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, body := errorResponse(err)
	ctx := c.Request().Context()

	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "request failed",
			"method", c.Request().Method, "route", c.Path(), "status", status, "error", err)
		s.raiseAPIError(ctx, c, status, body)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// raiseAPIError records a server-side failure as an api_error alert.
func (s *Server) raiseAPIError(ctx context.Context, c echo.Context, status int, body ErrorResponse) {
	alert, err := s.monitor.CreateAlert(ctx, models.AlertAPIError, models.SeverityWarning,
		fmt.Sprintf("%s %s returned %d: %s", c.Request().Method, c.Path(), status, body.Code),
		map[string]any{
			"method": c.Request().Method,
			"route":  c.Path(),
			"status": status,
			"code":   body.Code,
		})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to raise api error alert", "error", err)
		return
	}
	s.alertRaised(ctx, alert)
}

// onAuthFailure counts a rejected authentication against the caller.
func (s *Server) onAuthFailure(r *http.Request, authErr error) {
	ctx := r.Context()
	client := s.echo.IPExtractor(r)
	if s.metrics != nil {
		s.metrics.ObserveAuthFailure()
	}
	s.logger.WarnContext(ctx, "authentication failed", "client_ip", client, "error", authErr)

	rec, err := s.monitor.TrackAuthFailure(ctx, client)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to track auth failure", "client_ip", client, "error", err)
		return
	}
	if rec.JustFlagged() {
		s.raiseAbuse(ctx, rec)
	}
}

// raiseAbuse creates the abuse_detected alert for a newly flagged client.
func (s *Server) raiseAbuse(ctx context.Context, rec *models.AbuseRecord) {
	alert, err := s.monitor.CreateAlert(ctx, models.AlertAbuseDetected, models.SeverityCritical,
		fmt.Sprintf("client %s flagged: %d auth failures, %d rate limit hits",
			rec.ClientID, rec.AuthFailures, rec.RateLimitHits),
		map[string]any{
			"client_id":       rec.ClientID,
			"auth_failures":   rec.AuthFailures,
			"rate_limit_hits": rec.RateLimitHits,
		})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to raise abuse alert", "client_id", rec.ClientID, "error", err)
		return
	}
	s.alertRaised(ctx, alert)
}

func (s *Server) alertRaised(ctx context.Context, alert *models.Alert) {
	if s.metrics != nil {
		s.metrics.ObserveAlert(alert.Type)
	}
	monitor.Notify(ctx, s.monitor, s.deliverer, alert)
}
