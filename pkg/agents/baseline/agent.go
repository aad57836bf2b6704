// Package baseline maintains per-(entity, metric) adaptive profiles and
// flags samples that deviate sharply from the learned mean. A deviating
// sample never updates its profile — contamination prevention keeps an
// attack or incident from teaching the baseline to accept itself.
package baseline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/coglab/cognition-engine/pkg/agents"
	"github.com/coglab/cognition-engine/pkg/config"
	"github.com/coglab/cognition-engine/pkg/models"
)

// epsilon floors the standard deviation in the z-score so a flat series
// does not divide by zero.
const epsilon = 1e-9

type profile struct {
	mu sync.Mutex
	p  models.BaselineProfile
}

// Agent is the Phase-1 adaptive-baseline detector. It is the one stateful
// Phase-1 agent: profiles persist across cycles, bounded by the number of
// live (entity, metric) pairs. Samples are processed at most once even
// when consecutive snapshots overlap.
type Agent struct {
	cfg config.BaselineConfig

	mu       sync.Mutex
	profiles map[models.BaselineKey]*profile
	seen     map[string]struct{} // metric ids already folded into a profile
}

func New(cfg config.BaselineConfig) *Agent {
	return &Agent{
		cfg:      cfg,
		profiles: make(map[models.BaselineKey]*profile),
		seen:     make(map[string]struct{}),
	}
}

func (a *Agent) Name() string { return "baseline" }

// Restore seeds profiles from a persisted snapshot, run once at startup.
func (a *Agent) Restore(profiles []models.BaselineProfile) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range profiles {
		a.profiles[p.Key] = &profile{p: p}
	}
}

// Snapshot returns a copy of every profile for periodic persistence.
func (a *Agent) Snapshot() []models.BaselineProfile {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.BaselineProfile, 0, len(a.profiles))
	for _, pr := range a.profiles {
		pr.mu.Lock()
		out = append(out, pr.p)
		pr.mu.Unlock()
	}
	return out
}

func (a *Agent) profileFor(key models.BaselineKey) *profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	pr, ok := a.profiles[key]
	if !ok {
		pr = &profile{p: models.BaselineProfile{Key: key}}
		a.profiles[key] = pr
	}
	return pr
}

// markSeen records a metric id, reporting whether it was new.
func (a *Agent) markSeen(metricID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.seen[metricID]; dup {
		return false
	}
	a.seen[metricID] = struct{}{}
	return true
}

func (a *Agent) Run(ctx context.Context, cycleID string, snap agents.Snapshot, board agents.Board) error {
	for _, m := range snap.Metrics {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !a.markSeen(m.MetricID) {
			continue
		}
		key := models.BaselineKey{Entity: m.ResourceID, Metric: m.MetricName}
		if anomaly := a.observe(key, m); anomaly != nil {
			if err := board.AppendAnomaly(ctx, cycleID, a.Name(), *anomaly); err != nil {
				return err
			}
		}
	}
	return nil
}

// observe folds one sample into its profile, or returns the deviation
// anomaly when the sample falls outside the threshold.
func (a *Agent) observe(key models.BaselineKey, m models.Metric) *models.Anomaly {
	pr := a.profileFor(key)
	pr.mu.Lock()
	defer pr.mu.Unlock()

	p := &pr.p

	// Warm-up: store and skip until the profile activates.
	if p.SampleCount < a.cfg.MinSamples {
		a.learn(p, m.Value, m.ObservedAt)
		if p.SampleCount >= a.cfg.MinSamples {
			p.Active = true
		}
		return nil
	}
	p.Active = true

	stddev := math.Max(p.StdDev(), epsilon)
	z := (m.Value - p.Mean) / stddev

	if math.Abs(z) > a.cfg.DeviationThreshold {
		confidence := 0.65 + 0.05*(math.Abs(z)-a.cfg.DeviationThreshold)
		if confidence > 0.90 {
			confidence = 0.90
		}
		return &models.Anomaly{
			AnomalyID: models.DeterministicID("anomaly", models.AnomalyBaselineDeviation,
				key.Entity, key.Metric, m.MetricID),
			Type:        models.AnomalyBaselineDeviation,
			Entity:      key.Entity,
			Confidence:  confidence,
			Agent:       a.Name(),
			EvidenceIDs: []string{m.MetricID},
			Description: fmt.Sprintf("%s at %.2f deviates %.1fσ from baseline mean %.2f",
				key.Metric, m.Value, math.Abs(z), p.Mean),
			Metadata: map[string]any{
				"metric_name": key.Metric,
				"z_score":     z,
				"mean":        p.Mean,
				"stddev":      stddev,
			},
			Timestamp: m.Timestamp,
		}
	}

	a.learn(p, m.Value, m.ObservedAt)
	return nil
}

// learn applies exponential smoothing to the mean and variance. During
// warm-up the profile uses a plain running mean/variance so the first
// MIN_SAMPLES samples carry equal weight.
func (a *Agent) learn(p *models.BaselineProfile, value float64, at time.Time) {
	alpha := a.cfg.AdaptationRate
	if p.SampleCount == 0 {
		p.Mean = value
		p.Variance = 0
	} else if p.SampleCount < a.cfg.MinSamples {
		n := float64(p.SampleCount)
		delta := value - p.Mean
		p.Mean += delta / (n + 1)
		p.Variance = (p.Variance*n + delta*(value-p.Mean)) / (n + 1)
	} else {
		delta := value - p.Mean
		p.Mean = (1-alpha)*p.Mean + alpha*value
		p.Variance = (1-alpha)*p.Variance + alpha*delta*delta
	}
	if p.SampleCount < a.cfg.WindowSize {
		p.SampleCount++
	}
	p.UpdatedAt = at
}
