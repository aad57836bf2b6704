// Package scoring holds the deterministic scoring engines: per-finding
// severity, the composite System Risk Index, and the static
// recommendation mapping.
package scoring

import (
	"context"

	"github.com/coglab/cognition-engine/pkg/models"
)

// Per-type base score coefficients: base = offset + slope·confidence.
type baseCoeff struct {
	offset float64
	slope  float64
}

var anomalyBase = map[string]baseCoeff{
	models.AnomalyWorkflowDelay:             {4, 4},
	models.AnomalyMissingStep:               {7, 2},
	models.AnomalySequenceViolation:         {5, 3},
	models.AnomalySustainedResourceCritical: {5, 5},
	models.AnomalySustainedResourceWarning:  {3, 3},
	models.AnomalyResourceDrift:             {3, 2},
	models.AnomalyBaselineDeviation:         {4, 3},
	models.AnomalyCodeChurnRisk:             {3, 3},
	models.AnomalyCodeCoverageRegression:    {4, 3},
	models.AnomalyCodeHotspotOverlap:        {3, 3},
}

// Policy hits carry no confidence; their base comes from the policy's
// static severity band.
var policyBase = map[models.Severity]float64{
	models.SeverityLow:      3,
	models.SeverityMedium:   5,
	models.SeverityHigh:     7,
	models.SeverityCritical: 9,
}

// contextFactor is one context multiplier: the metadata key carrying a
// factor near 1, and its weight in the delta sum.
type contextFactor struct {
	key    string
	weight float64
}

// Weights sum to 1.0, so a uniform factor f maps to a delta of (f−1)
// before clamping.
var contextFactors = []contextFactor{
	{"asset_criticality", 0.20},
	{"data_sensitivity", 0.20},
	{"time_of_day_risk", 0.10},
	{"role_risk", 0.15},
	{"repetition_factor", 0.10},
	{"blast_radius", 0.15},
	{"module_criticality", 0.10},
}

const (
	deltaFloor   = -0.4
	deltaCeiling = 0.6
)

// SeverityBoard is the blackboard surface the engine appends through.
type SeverityBoard interface {
	Anomalies(cycleID string) ([]models.Anomaly, error)
	PolicyHits(cycleID string) ([]models.PolicyHit, error)
	AppendSeverityScore(ctx context.Context, cycleID, agent string, s models.SeverityScore) error
}

// SeverityEngine scores every anomaly and policy hit in the cycle on the
// 0–10 scale.
type SeverityEngine struct{}

func NewSeverityEngine() *SeverityEngine { return &SeverityEngine{} }

func (e *SeverityEngine) Name() string { return "severity" }

func (e *SeverityEngine) Score(ctx context.Context, cycleID string, board SeverityBoard) error {
	anomalies, err := board.Anomalies(cycleID)
	if err != nil {
		return err
	}
	hits, err := board.PolicyHits(cycleID)
	if err != nil {
		return err
	}

	for _, an := range anomalies {
		score := e.scoreAnomaly(an)
		if err := board.AppendSeverityScore(ctx, cycleID, e.Name(), score); err != nil {
			return err
		}
	}
	for _, h := range hits {
		score := e.scoreHit(h)
		if err := board.AppendSeverityScore(ctx, cycleID, e.Name(), score); err != nil {
			return err
		}
	}
	return nil
}

func (e *SeverityEngine) scoreAnomaly(an models.Anomaly) models.SeverityScore {
	coeff, known := anomalyBase[an.Type]
	if !known {
		coeff = baseCoeff{3, 3}
	}
	base := coeff.offset + coeff.slope*clamp01(an.Confidence)
	return buildScore(an.AnomalyID, base, an.Metadata)
}

func (e *SeverityEngine) scoreHit(h models.PolicyHit) models.SeverityScore {
	base, known := policyBase[h.Severity]
	if !known {
		base = 5
	}
	return buildScore(h.HitID, base, nil)
}

func buildScore(targetID string, base float64, metadata map[string]any) models.SeverityScore {
	delta := weightedDelta(metadata)
	final := base * (1 + delta)
	if final < 0 {
		final = 0
	}
	if final > 10 {
		final = 10
	}
	return models.SeverityScore{
		TargetID:      targetID,
		BaseScore:     base,
		WeightedDelta: delta,
		FinalScore:    final,
		Label:         models.LabelFor(final),
	}
}

// weightedDelta folds the context multipliers present in the finding's
// metadata into a clamped delta. Absent factors contribute nothing.
func weightedDelta(metadata map[string]any) float64 {
	var delta float64
	for _, f := range contextFactors {
		v, ok := metadata[f.key]
		if !ok {
			continue
		}
		factor, isNum := asFloat(v)
		if !isNum {
			continue
		}
		delta += f.weight * (factor - 1)
	}
	if delta < deltaFloor {
		return deltaFloor
	}
	if delta > deltaCeiling {
		return deltaCeiling
	}
	return delta
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// HasContextFactors reports whether any context multiplier is present —
// the recommendation engine's context_match signal.
func HasContextFactors(metadata map[string]any) bool {
	for _, f := range contextFactors {
		if _, ok := metadata[f.key]; ok {
			return true
		}
	}
	return false
}
