package forecast

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coglab/cognition-engine/pkg/agents"
	"github.com/coglab/cognition-engine/pkg/blackboard"
	"github.com/coglab/cognition-engine/pkg/models"
	"github.com/coglab/cognition-engine/pkg/store"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	board   *blackboard.Blackboard
	mem     *store.Memory
	cycleID string
	events  []models.Event
	next    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	board := blackboard.New(mem, mem)
	return &fixture{board: board, mem: mem, cycleID: board.StartCycle(context.Background())}
}

func (f *fixture) addEvent(t *testing.T, resource string) models.Event {
	t.Helper()
	f.next++
	e := models.Event{
		EventID:    fmt.Sprintf("ev-%d", f.next),
		Type:       "TEST",
		Actor:      "tester",
		Resource:   resource,
		Timestamp:  base,
		ObservedAt: base,
	}
	require.NoError(t, f.mem.AppendEvent(context.Background(), e))
	f.events = append(f.events, e)
	return e
}

func (f *fixture) addAnomalies(t *testing.T, entity string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		e := f.addEvent(t, entity)
		require.NoError(t, f.board.AppendAnomaly(context.Background(), f.cycleID, "workflow", models.Anomaly{
			AnomalyID:   fmt.Sprintf("an-%s-%d", entity, i),
			Type:        models.AnomalyWorkflowDelay,
			Entity:      entity,
			Confidence:  0.9,
			Agent:       "workflow",
			EvidenceIDs: []string{e.EventID},
			Timestamp:   base,
		}))
	}
}

func (f *fixture) addHits(t *testing.T, resource string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		e := f.addEvent(t, resource)
		require.NoError(t, f.board.AppendPolicyHit(context.Background(), f.cycleID, "compliance", models.PolicyHit{
			HitID:         fmt.Sprintf("hit-%s-%d", resource, i),
			PolicyID:      fmt.Sprintf("POLICY_%d", i),
			EventID:       e.EventID,
			ViolationType: models.ViolationSilent,
			Severity:      models.SeverityMedium,
			EvidenceIDs:   []string{e.EventID},
			Timestamp:     base,
		}))
	}
}

func (f *fixture) run(t *testing.T) []models.RiskSignal {
	t.Helper()
	snap := agents.NewSnapshot(base.Add(time.Hour), f.events, nil)
	require.NoError(t, New().Run(context.Background(), f.cycleID, snap, f.board))
	signals, err := f.board.RiskSignals(f.cycleID)
	require.NoError(t, err)
	return signals
}

func signalFor(signals []models.RiskSignal, entity string) (models.RiskSignal, bool) {
	for _, s := range signals {
		if s.Entity == entity {
			return s, true
		}
	}
	return models.RiskSignal{}, false
}

func TestForecastAgent_StateMapping(t *testing.T) {
	cases := []struct {
		anomalies  int
		violations int
		expected   models.RiskState
	}{
		{1, 0, models.RiskDegraded},
		{2, 0, models.RiskAtRisk},
		{3, 0, models.RiskAtRisk},
		{4, 0, models.RiskViolation},
		{1, 2, models.RiskViolation},
		{0, 3, models.RiskIncident},
		{6, 0, models.RiskIncident},
	}
	for _, tc := range cases {
		name := fmt.Sprintf("%d anomalies %d violations", tc.anomalies, tc.violations)
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.addAnomalies(t, "entity_a", tc.anomalies)
			f.addHits(t, "entity_a", tc.violations)
			signals := f.run(t)

			s, found := signalFor(signals, "entity_a")
			require.True(t, found)
			assert.Equal(t, tc.expected, s.ProjectedState)
			assert.Equal(t, tc.anomalies, s.AnomalyCount)
			assert.Equal(t, tc.violations, s.PolicyViolCount)
		})
	}
}

func TestForecastAgent_TimeHorizonAndConfidence(t *testing.T) {
	f := newFixture(t)
	f.addAnomalies(t, "entity_a", 2)
	signals := f.run(t)

	s, found := signalFor(signals, "entity_a")
	require.True(t, found)
	assert.Equal(t, "15-30 min", s.TimeHorizon)
	// 0.50 + min(0.30, 0.1·2) + 0 = 0.70
	assert.InDelta(t, 0.70, s.Confidence, 1e-9)
	assert.NotEmpty(t, s.EvidenceIDs)
}

func TestForecastAgent_ConfidenceCaps(t *testing.T) {
	f := newFixture(t)
	f.addAnomalies(t, "entity_a", 5)
	f.addHits(t, "entity_a", 3)
	signals := f.run(t)

	s, found := signalFor(signals, "entity_a")
	require.True(t, found)
	// 0.50 + min(0.30, 0.5) + min(0.20, 0.3) = 1.0 → capped 0.95... the
	// component caps land at exactly 1.0, so the final clamp applies.
	assert.InDelta(t, 0.95, s.Confidence, 1e-9)
	assert.Equal(t, "5-10 min", s.TimeHorizon)
}

func TestForecastAgent_SystemAggregate(t *testing.T) {
	// Two silent violations on different entities: each entity alone sits
	// at AT_RISK (weighted 2), the platform aggregate reaches VIOLATION.
	f := newFixture(t)
	f.addHits(t, "config", 1)
	f.addHits(t, "wf1", 1)
	signals := f.run(t)

	system, found := signalFor(signals, "system")
	require.True(t, found)
	assert.Equal(t, models.RiskViolation, system.ProjectedState)
	assert.Equal(t, 2, system.PolicyViolCount)
}

func TestForecastAgent_CurrentStateCarriesForward(t *testing.T) {
	agent := New()
	ctx := context.Background()
	mem := store.NewMemory()
	board := blackboard.New(mem, mem)

	e := models.Event{EventID: "ev-1", Type: "T", Actor: "a", Resource: "entity_a", Timestamp: base, ObservedAt: base}
	require.NoError(t, mem.AppendEvent(ctx, e))

	run := func() []models.RiskSignal {
		cycleID := board.StartCycle(ctx)
		require.NoError(t, board.AppendAnomaly(ctx, cycleID, "workflow", models.Anomaly{
			AnomalyID:  "an-" + cycleID, Type: models.AnomalyWorkflowDelay, Entity: "entity_a",
			Confidence: 0.9, Agent: "workflow", EvidenceIDs: []string{"ev-1"}, Timestamp: base,
		}))
		snap := agents.NewSnapshot(base, []models.Event{e}, nil)
		require.NoError(t, agent.Run(ctx, cycleID, snap, board))
		signals, err := board.RiskSignals(cycleID)
		require.NoError(t, err)
		return signals
	}

	first, found := signalFor(run(), "entity_a")
	require.True(t, found)
	assert.Equal(t, models.RiskNormal, first.CurrentState)

	second, found := signalFor(run(), "entity_a")
	require.True(t, found)
	assert.Equal(t, models.RiskDegraded, second.CurrentState,
		"the previous projection becomes the next current state")
}

func TestForecastAgent_NoIssuesNoSignals(t *testing.T) {
	f := newFixture(t)
	signals := f.run(t)
	assert.Empty(t, signals)
}
