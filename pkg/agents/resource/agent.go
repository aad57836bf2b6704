// Package resource detects sustained threshold breaches and gradual drift
// on resource metrics. A single spike is never reported: sustained
// findings require the last N consecutive readings to all exceed the
// threshold.
package resource

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/coglab/cognition-engine/pkg/agents"
	"github.com/coglab/cognition-engine/pkg/config"
	"github.com/coglab/cognition-engine/pkg/models"
)

// Agent is the Phase-1 resource detector. Stateless across cycles; the
// sustained window and drift regression both operate on the snapshot.
type Agent struct {
	thresholds      map[string]config.ResourceThreshold
	sustainedWindow int
	driftSlopeLimit float64
}

func New(cfg config.ResourceConfig) *Agent {
	return &Agent{
		thresholds:      cfg.Thresholds,
		sustainedWindow: cfg.SustainedWindow,
		driftSlopeLimit: cfg.DriftSlopeLimit,
	}
}

func (a *Agent) Name() string { return "resource" }

type series struct {
	resourceID string
	metricName string
	samples    []models.Metric // chronological
}

func (a *Agent) Run(ctx context.Context, cycleID string, snap agents.Snapshot, board agents.Board) error {
	grouped := groupSeries(snap.Metrics)

	for _, s := range grouped {
		if err := ctx.Err(); err != nil {
			return err
		}
		threshold, watched := a.thresholds[s.metricName]
		if !watched {
			continue
		}
		if anomaly := a.sustained(s, threshold); anomaly != nil {
			if err := board.AppendAnomaly(ctx, cycleID, a.Name(), *anomaly); err != nil {
				return err
			}
		}
		if anomaly := a.drift(s); anomaly != nil {
			if err := board.AppendAnomaly(ctx, cycleID, a.Name(), *anomaly); err != nil {
				return err
			}
		}
	}
	return nil
}

// groupSeries buckets snapshot metrics per (resource, metric), sorted for
// deterministic iteration.
func groupSeries(metrics []models.Metric) []series {
	byKey := make(map[string]*series)
	for _, m := range metrics {
		key := m.ResourceID + "|" + m.MetricName
		s := byKey[key]
		if s == nil {
			s = &series{resourceID: m.ResourceID, metricName: m.MetricName}
			byKey[key] = s
		}
		s.samples = append(s.samples, m)
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]series, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out
}

// sustained reports a critical or warning anomaly when the trailing
// window's readings all exceed the corresponding threshold.
func (a *Agent) sustained(s series, t config.ResourceThreshold) *models.Anomaly {
	if len(s.samples) < a.sustainedWindow {
		return nil
	}
	window := s.samples[len(s.samples)-a.sustainedWindow:]

	allAbove := func(limit float64) bool {
		for _, m := range window {
			if m.Value <= limit {
				return false
			}
		}
		return true
	}

	var (
		anomalyType string
		confidence  float64
		limit       float64
	)
	switch {
	case allAbove(t.Critical):
		anomalyType = models.AnomalySustainedResourceCritical
		confidence = 0.90
		limit = t.Critical
	case allAbove(t.Warning):
		anomalyType = models.AnomalySustainedResourceWarning
		confidence = 0.70
		limit = t.Warning
	default:
		return nil
	}

	evidence := make([]string, 0, len(window))
	for _, m := range window {
		evidence = append(evidence, m.MetricID)
	}
	last := window[len(window)-1]
	return &models.Anomaly{
		AnomalyID: models.DeterministicID("anomaly", anomalyType,
			s.resourceID, s.metricName, last.MetricID),
		Type:        anomalyType,
		Entity:      s.resourceID,
		Confidence:  confidence,
		Agent:       a.Name(),
		EvidenceIDs: evidence,
		Description: fmt.Sprintf("%s held above %.0f for %d consecutive readings (last %.1f)",
			s.metricName, limit, len(window), last.Value),
		Metadata: map[string]any{
			"metric_name": s.metricName,
			"threshold":   limit,
			"last_value":  last.Value,
		},
		Timestamp: last.Timestamp,
	}
}

// drift fits a least-squares line over the series and reports when the
// slope exceeds the limit, with confidence scaled by fit quality.
func (a *Agent) drift(s series) *models.Anomaly {
	if len(s.samples) < 3 {
		return nil
	}
	slope, r2 := regress(s.samples)
	if slope <= a.driftSlopeLimit {
		return nil
	}

	confidence := 0.60 + 0.20*r2
	if confidence > 0.80 {
		confidence = 0.80
	}

	evidence := make([]string, 0, len(s.samples))
	for _, m := range s.samples {
		evidence = append(evidence, m.MetricID)
	}
	last := s.samples[len(s.samples)-1]
	return &models.Anomaly{
		AnomalyID: models.DeterministicID("anomaly", models.AnomalyResourceDrift,
			s.resourceID, s.metricName, last.MetricID),
		Type:        models.AnomalyResourceDrift,
		Entity:      s.resourceID,
		Confidence:  confidence,
		Agent:       a.Name(),
		EvidenceIDs: evidence,
		Description: fmt.Sprintf("%s rising %.2f units per sample (R²=%.2f)", s.metricName, slope, r2),
		Metadata: map[string]any{
			"metric_name": s.metricName,
			"slope":       slope,
			"r_squared":   r2,
		},
		Timestamp: last.Timestamp,
	}
}

// regress returns the least-squares slope (units per sample) and R² of a
// value-over-index fit.
func regress(samples []models.Metric) (slope, r2 float64) {
	n := float64(len(samples))
	var sumX, sumY, sumXY, sumXX float64
	for i, m := range samples {
		x := float64(i)
		sumX += x
		sumY += m.Value
		sumXY += x * m.Value
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i, m := range samples {
		fit := intercept + slope*float64(i)
		ssTot += (m.Value - meanY) * (m.Value - meanY)
		ssRes += (m.Value - fit) * (m.Value - fit)
	}
	if ssTot == 0 {
		return slope, 1
	}
	r2 = 1 - ssRes/ssTot
	if r2 < 0 {
		r2 = 0
	}
	return slope, math.Min(r2, 1)
}
