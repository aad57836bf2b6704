package scoring

import (
	"sync"

	"github.com/coglab/cognition-engine/pkg/config"
	"github.com/coglab/cognition-engine/pkg/models"
)

// Component impact tables: each anomaly adds impact·confidence on top of
// the baseline of 20.
var workflowImpact = map[string]float64{
	models.AnomalyMissingStep:       25,
	models.AnomalyWorkflowDelay:     15,
	models.AnomalySequenceViolation: 20,
}

var resourceImpact = map[string]float64{
	models.AnomalySustainedResourceCritical: 30,
	models.AnomalySustainedResourceWarning:  15,
	models.AnomalyResourceDrift:             10,
}

const (
	componentBaseline = 20
	componentCap      = 100
	policyWeight      = 20

	// trendEpsilon separates a real slope from noise in the trailing
	// score series.
	trendEpsilon = 0.5

	// trendHistory bounds the trailing window the trend is fitted over.
	trendHistory = 10
)

// RiskIndexTracker computes the per-cycle System Risk Index and keeps the
// trailing score history for the trend.
type RiskIndexTracker struct {
	weights config.RiskWeights

	mu      sync.Mutex
	history []float64
	current *models.RiskIndex
}

func NewRiskIndexTracker(weights config.RiskWeights) *RiskIndexTracker {
	return &RiskIndexTracker{weights: weights}
}

func (t *RiskIndexTracker) Name() string { return "risk_index" }

// Update computes the composite index for a cycle's findings and records
// it in the trailing history.
func (t *RiskIndexTracker) Update(anomalies []models.Anomaly, hits []models.PolicyHit) models.RiskIndex {
	workflow := float64(componentBaseline)
	resource := float64(componentBaseline)
	for _, an := range anomalies {
		if impact, ok := workflowImpact[an.Type]; ok {
			workflow += impact * clamp01(an.Confidence)
		}
		if impact, ok := resourceImpact[an.Type]; ok {
			resource += impact * clamp01(an.Confidence)
		}
	}
	compliance := float64(componentBaseline + policyWeight*len(hits))

	workflow = capAt(workflow, componentCap)
	resource = capAt(resource, componentCap)
	compliance = capAt(compliance, componentCap)

	score := t.weights.Workflow*workflow + t.weights.Resource*resource + t.weights.Compliance*compliance
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, score)
	if len(t.history) > trendHistory {
		t.history = t.history[len(t.history)-trendHistory:]
	}

	idx := models.RiskIndex{
		WorkflowRisk:   workflow,
		ResourceRisk:   resource,
		ComplianceRisk: compliance,
		RiskScore:      score,
		Band:           models.BandFor(score),
		Trend:          trend(t.history),
	}
	t.current = &idx
	return idx
}

// Current returns the most recently computed index, or false before the
// first cycle seals.
func (t *RiskIndexTracker) Current() (models.RiskIndex, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return models.RiskIndex{}, false
	}
	return *t.current, true
}

// trend fits a least-squares slope over the trailing scores.
func trend(history []float64) models.Trend {
	if len(history) < 2 {
		return models.TrendStable
	}
	n := float64(len(history))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range history {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return models.TrendStable
	}
	slope := (n*sumXY - sumX*sumY) / denom
	switch {
	case slope > trendEpsilon:
		return models.TrendIncreasing
	case slope < -trendEpsilon:
		return models.TrendDecreasing
	}
	return models.TrendStable
}

func capAt(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}
