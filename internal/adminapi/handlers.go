package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/models"
	"github.com/StricklySoft/contentflow/pkg/monitor"
	"github.com/StricklySoft/contentflow/pkg/orchestrator"
	"github.com/StricklySoft/contentflow/pkg/phases"
	"github.com/StricklySoft/contentflow/pkg/quota"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// WorkflowView is a workflow entry annotated with the stuck check.
type WorkflowView struct {
	*models.WorkflowEntry
	Stuck bool `json:"stuck"`
}

func (s *Server) view(entry *models.WorkflowEntry) WorkflowView {
	return WorkflowView{
		WorkflowEntry: entry,
		Stuck:         monitor.IsStuck(entry, s.threshold, s.now()),
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleSubmit runs the full pipeline synchronously. A phase failure still
// created a workflow, so it is reported as 201 with status "failed".
func (s *Server) handleSubmit(c echo.Context) error {
	var req orchestrator.Request
	if err := c.Bind(&req); err != nil {
		return sserr.Wrap(err, sserr.CodeValidationFormat, "adminapi: malformed request body")
	}

	ctx := c.Request().Context()
	res, err := s.orchestrator.Submit(ctx, req)
	if res == nil {
		return err
	}
	s.observeQuota(c)
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/workflows/"+res.WorkflowID)
	return c.JSON(http.StatusCreated, res)
}

// handleRunPhase runs one phase of a workflow. The body is an optional
// brief; the stored topic is used when it is omitted. Without an id in
// the path, research starts a new workflow and answers 201.
func (s *Server) handleRunPhase(c echo.Context) error {
	phase, err := phases.Parse(c.Param("phase"))
	if err != nil {
		return err
	}
	var brief orchestrator.Brief
	if err := c.Bind(&brief); err != nil {
		return sserr.Wrap(err, sserr.CodeValidationFormat, "adminapi: malformed brief")
	}

	id := c.Param("id")
	res, err := s.orchestrator.RunPhase(c.Request().Context(), id, phase, brief)
	if res == nil {
		return err
	}
	s.observeQuota(c)
	if id == "" {
		c.Response().Header().Set(echo.HeaderLocation, "/api/v1/workflows/"+res.WorkflowID)
		return c.JSON(http.StatusCreated, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleListWorkflows(c echo.Context) error {
	var status models.Status
	if raw := c.QueryParam("status"); raw != "" {
		status = models.Status(raw)
		if !status.Valid() {
			return sserr.Newf(sserr.CodeValidation, "adminapi: unknown status %q", raw)
		}
	}

	entries, err := s.workflows.List(c.Request().Context())
	if err != nil {
		return err
	}
	views := make([]WorkflowView, 0, len(entries))
	for _, e := range entries {
		if status != "" && e.Status != status {
			continue
		}
		views = append(views, s.view(e))
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) handleGetWorkflow(c echo.Context) error {
	id := c.Param("id")
	entry, ok, err := s.workflows.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return sserr.NotFoundf("adminapi: workflow %q not found", id)
	}
	return c.JSON(http.StatusOK, s.view(entry))
}

func (s *Server) handleListAlerts(c echo.Context) error {
	var typ models.AlertType
	if raw := c.QueryParam("type"); raw != "" {
		typ = models.AlertType(raw)
		if !typ.Valid() {
			return sserr.Newf(sserr.CodeValidation, "adminapi: unknown alert type %q", raw)
		}
	}
	unnotified := false
	if raw := c.QueryParam("unnotified"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return sserr.Wrap(err, sserr.CodeValidationFormat, "adminapi: unnotified must be a boolean")
		}
		unnotified = v
	}

	alerts, err := s.monitor.GetAlerts(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]*models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if typ != "" && a.Type != typ {
			continue
		}
		if unnotified && a.Notified {
			continue
		}
		out = append(out, a)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetAbuse(c echo.Context) error {
	client := c.Param("client")
	rec, ok, err := s.monitor.GetAbuseRecord(c.Request().Context(), client)
	if err != nil {
		return err
	}
	if !ok {
		return sserr.NotFoundf("adminapi: no abuse record for %q", client)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleQuota(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		date = s.ledger.Today()
	} else if _, err := time.Parse(quota.DateLayout, date); err != nil {
		return sserr.Wrap(err, sserr.CodeValidationFormat, "adminapi: date must be YYYY-MM-DD")
	}

	used, err := s.ledger.Usage(c.Request().Context(), date)
	if err != nil {
		return err
	}
	snap := quota.Snapshot{
		Date:      date,
		Used:      used,
		Limit:     s.ledger.Limit(),
		Remaining: max(s.ledger.Limit()-used, 0),
	}
	if s.metrics != nil && date == s.ledger.Today() {
		s.metrics.ObserveQuotaUsage(used)
	}
	return c.JSON(http.StatusOK, snap)
}

// handleArtifact redirects to a presigned download link for an archived
// draft. ?expires= takes a Go duration.
func (s *Server) handleArtifact(c echo.Context) error {
	if s.artifacts == nil {
		return sserr.New(sserr.CodeUnavailable, "adminapi: artifact archive is not configured")
	}
	var expires time.Duration
	if raw := c.QueryParam("expires"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return sserr.New(sserr.CodeValidationFormat, "adminapi: expires must be a positive duration")
		}
		expires = d
	}

	u, err := s.artifacts.URL(c.Request().Context(), c.Param("key"), expires)
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusTemporaryRedirect, u.String())
}

func (s *Server) handleSweep(c echo.Context) error {
	if s.sweeper == nil {
		return sserr.New(sserr.CodeUnavailable, "adminapi: sweeper is not configured")
	}
	res, err := s.sweeper.Sweep(c.Request().Context())
	if err != nil {
		return err
	}
	if s.metrics != nil {
		for range res.Raised {
			s.metrics.ObserveAlert(models.AlertWorkflowStuck)
		}
	}
	return c.JSON(http.StatusOK, res)
}

// observeQuota refreshes the usage gauge after a charge. Read failures are
// ignored; the gauge is advisory.
func (s *Server) observeQuota(c echo.Context) {
	if s.metrics == nil {
		return
	}
	if used, err := s.ledger.Usage(c.Request().Context(), ""); err == nil {
		s.metrics.ObserveQuotaUsage(used)
	}
}
