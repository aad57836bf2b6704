// Package api exposes the engine's HTTP surface: ingestion endpoints,
// cycle and reporting views, the audit trail, and the query endpoint.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/coglab/cognition-engine/pkg/blackboard"
	"github.com/coglab/cognition-engine/pkg/config"
	"github.com/coglab/cognition-engine/pkg/coordinator"
	"github.com/coglab/cognition-engine/pkg/database"
	"github.com/coglab/cognition-engine/pkg/events"
	"github.com/coglab/cognition-engine/pkg/ingestion"
	"github.com/coglab/cognition-engine/pkg/query"
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg         *config.Config
	dbClient    *database.Client // nil when running on the in-memory store
	pipeline    *ingestion.Pipeline
	coordinator *coordinator.Coordinator
	board       *blackboard.Blackboard
	queryEngine *query.Engine
	connManager *events.ConnectionManager
	publisher   *events.Publisher
}

// NewServer creates the API server with Echo v5 and registers all routes.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	pipeline *ingestion.Pipeline,
	coord *coordinator.Coordinator,
	board *blackboard.Blackboard,
	queryEngine *query.Engine,
	connManager *events.ConnectionManager,
) *Server {
	s := &Server{
		echo:        echo.New(),
		cfg:         cfg,
		dbClient:    dbClient,
		pipeline:    pipeline,
		coordinator: coord,
		board:       board,
		queryEngine: queryEngine,
		connManager: connManager,
		publisher:   events.NewPublisher(connManager),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Envelopes are small; a 2 MB ceiling rejects runaway payloads before
	// deserialization.
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())
	s.echo.Use(requestLogger())

	// Ingestion.
	s.echo.POST("/ingest/envelope", s.submitEnvelopeHandler)
	s.echo.POST("/ingest/github/webhook", s.githubWebhookHandler)
	s.echo.POST("/observe/event", s.observeEventHandler)
	s.echo.POST("/observe/metric", s.observeMetricHandler)
	s.echo.GET("/ingest/status", s.ingestStatusHandler)

	// Reasoning.
	s.echo.POST("/analysis/cycle", s.triggerCycleHandler)
	s.echo.GET("/anomalies", s.anomaliesHandler)
	s.echo.GET("/policy/violations", s.policyViolationsHandler)
	s.echo.GET("/causal/links", s.causalLinksHandler)
	s.echo.GET("/risk/index", s.riskIndexHandler)
	s.echo.GET("/risk/current", s.riskCurrentHandler)
	s.echo.GET("/recommendations", s.recommendationsHandler)

	// Audit trail.
	s.echo.GET("/audit/incident/:id", s.auditIncidentHandler)
	s.echo.GET("/audit/incident/:id/timeline", s.auditTimelineHandler)

	// Evidence-grounded query.
	s.echo.POST("/query", s.queryHandler)

	// Operational endpoints.
	s.echo.GET("/healthz", s.healthzHandler)
	s.echo.GET("/readyz", s.readyzHandler)
	s.echo.GET("/version", s.versionHandler)

	// Real-time notifications.
	s.echo.GET("/ws", s.wsHandler)
}

// Start begins serving on addr, blocking until shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener, used by tests to
// bind a random port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) wsHandler(c *echo.Context) error {
	return s.connManager.HandleConnection(c.Response(), c.Request())
}
