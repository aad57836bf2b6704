package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/coglab/cognition-engine/pkg/models"
)

// triggerCycleHandler handles POST /analysis/cycle: runs one reasoning
// cycle and returns its summary counts.
func (s *Server) triggerCycleHandler(c *echo.Context) error {
	sealed, err := s.coordinator.RunCycle(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, sealed.Summary())
}

// latestCycle fetches the most recently sealed cycle, or nil when none
// has sealed yet.
func (s *Server) latestCycle(c *echo.Context) (*models.Cycle, error) {
	cycles, err := s.board.RecentCycles(c.Request().Context(), 1)
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, nil
	}
	return &cycles[0], nil
}

// sectionResponse wraps a sealed-cycle view with its provenance and the
// degraded flag, so callers can tell a partial cycle from a clean one.
type sectionResponse struct {
	CycleID  string `json:"cycle_id,omitempty"`
	Degraded bool   `json:"degraded"`
	Items    any    `json:"items"`
}

func (s *Server) sectionHandler(c *echo.Context, extract func(*models.Cycle) any) error {
	cycle, err := s.latestCycle(c)
	if err != nil {
		return mapError(err)
	}
	if cycle == nil {
		return c.JSON(http.StatusOK, sectionResponse{Items: []any{}})
	}
	return c.JSON(http.StatusOK, sectionResponse{
		CycleID:  cycle.CycleID,
		Degraded: cycle.Degraded,
		Items:    extract(cycle),
	})
}

func (s *Server) anomaliesHandler(c *echo.Context) error {
	return s.sectionHandler(c, func(cy *models.Cycle) any { return cy.Anomalies })
}

func (s *Server) policyViolationsHandler(c *echo.Context) error {
	return s.sectionHandler(c, func(cy *models.Cycle) any { return cy.PolicyHits })
}

func (s *Server) causalLinksHandler(c *echo.Context) error {
	return s.sectionHandler(c, func(cy *models.Cycle) any { return cy.CausalLinks })
}

func (s *Server) recommendationsHandler(c *echo.Context) error {
	return s.sectionHandler(c, func(cy *models.Cycle) any { return cy.Recommendations })
}

// riskCurrentHandler handles GET /risk/current: the latest cycle's risk
// signals.
func (s *Server) riskCurrentHandler(c *echo.Context) error {
	return s.sectionHandler(c, func(cy *models.Cycle) any { return cy.RiskSignals })
}

// riskIndexHandler handles GET /risk/index: the composite System Risk
// Index with band and trend.
func (s *Server) riskIndexHandler(c *echo.Context) error {
	idx, ok := s.coordinator.RiskTracker().Current()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no cycle has sealed yet")
	}
	return c.JSON(http.StatusOK, idx)
}

// queryRequest is the POST /query body.
type queryRequest struct {
	Question string `json:"question"`
}

func (s *Server) queryHandler(c *echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil || req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	answer, err := s.queryEngine.Answer(c.Request().Context(), req.Question)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, answer)
}
