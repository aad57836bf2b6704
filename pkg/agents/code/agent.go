// Package code consumes normalized code-change and CI events and emits
// predictive, pre-deploy anomalies: heavy churn, coverage regression, and
// changes overlapping known defect hotspots. Findings correlate to
// runtime through the deployment id and trace id on the source event.
package code

import (
	"context"
	"fmt"

	"github.com/coglab/cognition-engine/pkg/agents"
	"github.com/coglab/cognition-engine/pkg/models"
)

// Rule thresholds. Churn risk scales with the size of the change; the
// other two rules are binary with fixed confidence.
const (
	churnFilesLimit    = 20
	churnLinesLimit    = 500
	coverageDeltaLimit = -2.0 // percentage points

	churnBaseConfidence    = 0.60
	coverageConfidence     = 0.75
	hotspotConfidence      = 0.70
	churnConfidenceCeiling = 0.85
)

// Agent is the Phase-1 code detector. Stateless across cycles.
type Agent struct{}

func New() *Agent { return &Agent{} }

func (a *Agent) Name() string { return "code" }

func (a *Agent) Run(ctx context.Context, cycleID string, snap agents.Snapshot, board agents.Board) error {
	for _, e := range snap.Events {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch e.Type {
		case "CODE_CHANGE", "CI_BUILD", "DEPLOYMENT":
		default:
			continue
		}

		for _, anomaly := range a.evaluate(e) {
			if err := board.AppendAnomaly(ctx, cycleID, a.Name(), anomaly); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Agent) evaluate(e models.Event) []models.Anomaly {
	var out []models.Anomaly

	files, hasFiles := agents.Numeric(e.Metadata["files_changed"])
	lines, hasLines := agents.Numeric(e.Metadata["churn_lines"])
	if (hasFiles && files >= churnFilesLimit) || (hasLines && lines >= churnLinesLimit) {
		// Scale confidence with how far past the limit the change is.
		ratio := 0.0
		if hasFiles && files >= churnFilesLimit {
			ratio = (files - churnFilesLimit) / churnFilesLimit
		}
		if hasLines && lines >= churnLinesLimit {
			if r := (lines - churnLinesLimit) / churnLinesLimit; r > ratio {
				ratio = r
			}
		}
		confidence := churnBaseConfidence + 0.1*ratio
		if confidence > churnConfidenceCeiling {
			confidence = churnConfidenceCeiling
		}
		out = append(out, a.anomaly(e, models.AnomalyCodeChurnRisk, confidence,
			fmt.Sprintf("change touches %.0f files / %.0f lines", files, lines)))
	}

	if delta, ok := agents.Numeric(e.Metadata["coverage_delta"]); ok && delta <= coverageDeltaLimit {
		out = append(out, a.anomaly(e, models.AnomalyCodeCoverageRegression, coverageConfidence,
			fmt.Sprintf("test coverage moved %.1f points", delta)))
	}

	if overlap, ok := agents.Numeric(e.Metadata["hotspot_overlap"]); ok && overlap > 0 {
		out = append(out, a.anomaly(e, models.AnomalyCodeHotspotOverlap, hotspotConfidence,
			fmt.Sprintf("change overlaps %.0f known defect hotspots", overlap)))
	}

	return out
}

func (a *Agent) anomaly(e models.Event, anomalyType string, confidence float64, description string) models.Anomaly {
	entity := e.DeploymentID
	if entity == "" {
		entity = e.Resource
	}
	if entity == "" {
		entity = "code"
	}
	return models.Anomaly{
		AnomalyID:   models.DeterministicID("anomaly", anomalyType, entity, e.EventID),
		Type:        anomalyType,
		Entity:      entity,
		Confidence:  confidence,
		Agent:       a.Name(),
		EvidenceIDs: []string{e.EventID},
		Description: description,
		Metadata: map[string]any{
			"deployment_id": e.DeploymentID,
			"trace_id":      e.TraceID,
		},
		Timestamp: e.Timestamp,
	}
}
