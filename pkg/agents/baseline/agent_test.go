package baseline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coglab/cognition-engine/pkg/agents"
	"github.com/coglab/cognition-engine/pkg/blackboard"
	"github.com/coglab/cognition-engine/pkg/config"
	"github.com/coglab/cognition-engine/pkg/models"
	"github.com/coglab/cognition-engine/pkg/store"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func baselineConfig(t *testing.T) config.BaselineConfig {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	return cfg.Baseline
}

type harness struct {
	agent *Agent
	board *blackboard.Blackboard
	mem   *store.Memory
	next  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := store.NewMemory()
	return &harness{
		agent: New(baselineConfig(t)),
		board: blackboard.New(mem, mem),
		mem:   mem,
	}
}

// feed runs one cycle over a snapshot containing exactly the given new
// samples and returns the anomalies that cycle produced.
func (h *harness) feed(t *testing.T, values ...float64) []models.Anomaly {
	t.Helper()
	ctx := context.Background()

	metrics := make([]models.Metric, 0, len(values))
	for _, v := range values {
		h.next++
		m := models.Metric{
			MetricID:   fmt.Sprintf("m-%d", h.next),
			ResourceID: "vm_x",
			MetricName: "cpu",
			Value:      v,
			Timestamp:  base.Add(time.Duration(h.next) * time.Second),
			ObservedAt: base.Add(time.Duration(h.next) * time.Second),
		}
		require.NoError(t, h.mem.AppendMetric(ctx, m))
		metrics = append(metrics, m)
	}

	cycleID := h.board.StartCycle(ctx)
	snap := agents.NewSnapshot(base.Add(time.Hour), nil, metrics)
	require.NoError(t, h.agent.Run(ctx, cycleID, snap, h.board))

	anomalies, err := h.board.Anomalies(cycleID)
	require.NoError(t, err)
	return anomalies
}

func (h *harness) profile() models.BaselineProfile {
	for _, p := range h.agent.Snapshot() {
		if p.Key.Entity == "vm_x" && p.Key.Metric == "cpu" {
			return p
		}
	}
	return models.BaselineProfile{}
}

func TestBaselineAgent_ActivationAndDeviation(t *testing.T) {
	h := newHarness(t)

	// Nine samples near 50: baseline inactive, nothing emitted.
	anomalies := h.feed(t, 50, 51, 49, 50, 52, 48, 50, 51, 49)
	assert.Empty(t, anomalies)
	assert.False(t, h.profile().Active)

	// Tenth sample activates the baseline.
	anomalies = h.feed(t, 50)
	assert.Empty(t, anomalies)
	assert.True(t, h.profile().Active)

	meanBefore := h.profile().Mean

	// A 95 is far beyond 2.5σ of the learned profile.
	anomalies = h.feed(t, 95)
	require.Len(t, anomalies, 1)
	an := anomalies[0]
	assert.Equal(t, models.AnomalyBaselineDeviation, an.Type)
	assert.Equal(t, "vm_x", an.Entity)
	assert.InDelta(t, 0.90, an.Confidence, 1e-9, "a huge z-score saturates the ceiling")

	// Contamination prevention: the deviating sample never updates the
	// profile.
	assert.InDelta(t, meanBefore, h.profile().Mean, 1e-9)
}

func TestBaselineAgent_NormalSampleUpdatesMean(t *testing.T) {
	h := newHarness(t)
	h.feed(t, 50, 52, 48, 50, 52, 48, 50, 52, 48, 50)

	meanBefore := h.profile().Mean
	anomalies := h.feed(t, 51)
	assert.Empty(t, anomalies)
	assert.Greater(t, h.profile().Mean, meanBefore,
		"an in-band sample folds into the baseline")
}

func TestBaselineAgent_OverlappingSnapshotsProcessOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	metrics := make([]models.Metric, 0, 10)
	for i := 0; i < 10; i++ {
		m := models.Metric{
			MetricID:   fmt.Sprintf("dup-%d", i),
			ResourceID: "vm_x",
			MetricName: "cpu",
			Value:      50,
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			ObservedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, h.mem.AppendMetric(ctx, m))
		metrics = append(metrics, m)
	}
	snap := agents.NewSnapshot(base.Add(time.Hour), nil, metrics)

	run := func() {
		cycleID := h.board.StartCycle(ctx)
		require.NoError(t, h.agent.Run(ctx, cycleID, snap, h.board))
	}
	run()
	countAfterFirst := h.profile().SampleCount
	run()
	assert.Equal(t, countAfterFirst, h.profile().SampleCount,
		"re-seen metric ids do not re-train the profile")
}

func TestBaselineAgent_RestoreRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.feed(t, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50)

	restored := New(baselineConfig(t))
	restored.Restore(h.agent.Snapshot())

	profiles := restored.Snapshot()
	require.Len(t, profiles, 1)
	assert.True(t, profiles[0].Active)
	assert.InDelta(t, h.profile().Mean, profiles[0].Mean, 1e-9)
}
