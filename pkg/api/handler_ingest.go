package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/coglab/cognition-engine/pkg/events"
	"github.com/coglab/cognition-engine/pkg/ingestion"
	"github.com/coglab/cognition-engine/pkg/models"
)

// quarantineResponse is the 4xx body for a rejected submission.
type quarantineResponse struct {
	ReasonCode  models.ReasonCode `json:"reason_code"`
	Diagnostics map[string]any    `json:"diagnostics,omitempty"`
}

// acceptedResponse is the 202 body for an accepted submission.
type acceptedResponse struct {
	EventID  string `json:"event_id"`
	MetricID string `json:"metric_id,omitempty"`
}

// submitEnvelopeHandler handles POST /ingest/envelope: 202 on accept,
// 400 on quarantine, 409 for duplicates.
func (s *Server) submitEnvelopeHandler(c *echo.Context) error {
	var env models.Envelope
	if err := c.Bind(&env); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed envelope JSON")
	}

	res, err := s.pipeline.Submit(c.Request().Context(), env)
	if err != nil {
		return mapError(err)
	}
	return s.writeResult(c, res)
}

// githubWebhookHandler handles POST /ingest/github/webhook.
func (s *Server) githubWebhookHandler(c *echo.Context) error {
	var hook ingestion.GitHubWebhook
	if err := c.Bind(&hook); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed webhook JSON")
	}

	env, err := ingestion.NormalizeGitHubWebhook(hook, "github", "default", "prod")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := s.pipeline.Submit(c.Request().Context(), env)
	if err != nil {
		return mapError(err)
	}
	return s.writeResult(c, res)
}

// observeEventHandler handles POST /observe/event: raw ingest, bypassing
// the envelope schema but not idempotency or skew.
func (s *Server) observeEventHandler(c *echo.Context) error {
	var raw ingestion.RawEvent
	if err := c.Bind(&raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed event JSON")
	}

	res, err := s.pipeline.SubmitRawEvent(c.Request().Context(), raw)
	if err != nil {
		return mapError(err)
	}
	return s.writeResult(c, res)
}

// observeMetricHandler handles POST /observe/metric.
func (s *Server) observeMetricHandler(c *echo.Context) error {
	var raw ingestion.RawMetric
	if err := c.Bind(&raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed metric JSON")
	}

	res, err := s.pipeline.SubmitRawMetric(c.Request().Context(), raw)
	if err != nil {
		return mapError(err)
	}
	return s.writeResult(c, res)
}

// ingestStatusHandler handles GET /ingest/status.
func (s *Server) ingestStatusHandler(c *echo.Context) error {
	status, err := s.pipeline.Status(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) writeResult(c *echo.Context, res ingestion.Result) error {
	if res.Accepted {
		s.publisher.Publish(c.Request().Context(), events.TypeIngestAccepted,
			map[string]any{"event_id": res.EventID})
		return c.JSON(http.StatusAccepted, acceptedResponse{EventID: res.EventID, MetricID: res.MetricID})
	}
	s.publisher.Publish(c.Request().Context(), events.TypeIngestQuarantined,
		map[string]any{"reason_code": res.ReasonCode})
	// Duplicates are a deliberate suppression, not a client mistake, so
	// they get 409 while the other quarantines get 400.
	status := http.StatusBadRequest
	if res.ReasonCode == models.ReasonDuplicate {
		status = http.StatusConflict
	}
	return c.JSON(status, quarantineResponse{ReasonCode: res.ReasonCode, Diagnostics: res.Diagnostics})
}
