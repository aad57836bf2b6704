package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/coglab/cognition-engine/pkg/blackboard"
	"github.com/coglab/cognition-engine/pkg/models"
)

// auditIncidentHandler handles GET /audit/incident/:id — the sealed cycle
// payload, byte-identical to what was hashed, plus a verification flag.
func (s *Server) auditIncidentHandler(c *echo.Context) error {
	_, payload, err := s.board.GetCycle(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}

	verified, err := blackboard.VerifySHA(payload)
	if err != nil {
		return mapError(err)
	}

	c.Response().Header().Set("X-Cycle-Verified", boolHeader(verified))
	return c.Blob(http.StatusOK, "application/json", payload)
}

// timelineEntry is one artifact placed on the unified timeline.
type timelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
}

// auditTimelineHandler handles GET /audit/incident/:id/timeline — cycle
// artifacts merged into one chronological view.
func (s *Server) auditTimelineHandler(c *echo.Context) error {
	_, payload, err := s.board.GetCycle(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	var cycle models.Cycle
	if err := json.Unmarshal(payload, &cycle); err != nil {
		return mapError(err)
	}

	entries := make([]timelineEntry, 0,
		len(cycle.Anomalies)+len(cycle.PolicyHits)+len(cycle.CausalLinks)+len(cycle.Recommendations))

	for _, a := range cycle.Anomalies {
		entries = append(entries, timelineEntry{
			Timestamp: a.Timestamp, Kind: "anomaly", ID: a.AnomalyID,
			Summary:   a.Type + " on " + a.Entity + ": " + a.Description,
		})
	}
	for _, h := range cycle.PolicyHits {
		entries = append(entries, timelineEntry{
			Timestamp: h.Timestamp, Kind: "policy_hit", ID: h.HitID,
			Summary:   string(h.ViolationType) + " violation of " + h.PolicyID,
		})
	}
	sealTime := cycle.StartedAt
	if cycle.CompletedAt != nil {
		sealTime = *cycle.CompletedAt
	}
	for _, l := range cycle.CausalLinks {
		entries = append(entries, timelineEntry{
			Timestamp: sealTime, Kind: "causal_link", ID: l.LinkID, Summary: l.Reasoning,
		})
	}
	for _, r := range cycle.Recommendations {
		entries = append(entries, timelineEntry{
			Timestamp: sealTime, Kind: "recommendation", ID: r.RecID,
			Summary:   r.Action + " (" + string(r.Urgency) + ")",
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	return c.JSON(http.StatusOK, map[string]any{
		"cycle_id":     cycle.CycleID,
		"cycle_sha256": cycle.CycleSHA256,
		"degraded":     cycle.Degraded,
		"timeline":     entries,
	})
}

func boolHeader(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
