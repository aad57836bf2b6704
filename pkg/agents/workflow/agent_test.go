package workflow

import (
	"context"
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

func stepEvent(id, workflowID string, index int, metadata map[string]any, offset time.Duration) models.Event {
	md := map[string]any{"step_index": index}
	for k, v := range metadata {
		md[k] = v
	}
	return models.Event{
		EventID:    id,
		Type:       "WORKFLOW_STEP",
		WorkflowID: workflowID,
		Actor:      "orchestrator",
		Timestamp:  base.Add(offset),
		ObservedAt: base.Add(offset),
		Metadata:   md,
	}
}

func runAgent(t *testing.T, events []models.Event) []models.Anomaly {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	for _, e := range events {
		require.NoError(t, mem.AppendEvent(ctx, e))
	}
	board := blackboard.New(mem, mem)
	cycleID := board.StartCycle(ctx)

	snap := agents.NewSnapshot(base.Add(time.Hour), events, nil)
	require.NoError(t, New().Run(ctx, cycleID, snap, board))

	anomalies, err := board.Anomalies(cycleID)
	require.NoError(t, err)
	return anomalies
}

func TestWorkflowAgent_Delay(t *testing.T) {
	t.Run("confidence clamps at 0.95 on heavy overage", func(t *testing.T) {
		anomalies := runAgent(t, []models.Event{
			stepEvent("e1", "wf_deploy", 0, map[string]any{
				"step": "DEPLOY", "duration_seconds": 250.0, "sla_seconds": 120.0,
			}, 0),
		})
		require.Len(t, anomalies, 1)
		an := anomalies[0]
		assert.Equal(t, models.AnomalyWorkflowDelay, an.Type)
		assert.Equal(t, "wf_deploy", an.Entity)
		assert.InDelta(t, 0.95, an.Confidence, 1e-9)
		assert.Equal(t, []string{"e1"}, an.EvidenceIDs)
	})

	t.Run("mild overage scales linearly", func(t *testing.T) {
		// overage ratio (130-100)/100 = 0.3 → 0.70 + 0.25*0.3 = 0.775
		anomalies := runAgent(t, []models.Event{
			stepEvent("e1", "wf_a", 0, map[string]any{
				"duration_seconds": 130.0, "sla_seconds": 100.0,
			}, 0),
		})
		require.Len(t, anomalies, 1)
		assert.InDelta(t, 0.775, anomalies[0].Confidence, 1e-9)
	})

	t.Run("within SLA emits nothing", func(t *testing.T) {
		anomalies := runAgent(t, []models.Event{
			stepEvent("e1", "wf_a", 0, map[string]any{
				"duration_seconds": 90.0, "sla_seconds": 100.0,
			}, 0),
		})
		assert.Empty(t, anomalies)
	})
}

func TestWorkflowAgent_MissingStep(t *testing.T) {
	anomalies := runAgent(t, []models.Event{
		stepEvent("e1", "wf_a", 0, nil, 0),
		stepEvent("e2", "wf_a", 2, nil, time.Minute),
	})
	require.Len(t, anomalies, 1)
	an := anomalies[0]
	assert.Equal(t, models.AnomalyMissingStep, an.Type)
	assert.InDelta(t, 0.95, an.Confidence, 1e-9)
	assert.Contains(t, an.EvidenceIDs, "e2")
}

func TestWorkflowAgent_SequenceViolation(t *testing.T) {
	anomalies := runAgent(t, []models.Event{
		stepEvent("e1", "wf_a", 0, nil, 0),
		stepEvent("e2", "wf_a", 1, nil, time.Minute),
		stepEvent("e3", "wf_a", 0, nil, 2*time.Minute),
	})
	require.Len(t, anomalies, 1)
	an := anomalies[0]
	assert.Equal(t, models.AnomalySequenceViolation, an.Type)
	assert.InDelta(t, 0.85, an.Confidence, 1e-9)
	assert.Contains(t, an.EvidenceIDs, "e3")
	assert.Contains(t, an.EvidenceIDs, "e2")
}

func TestWorkflowAgent_IndependentWorkflows(t *testing.T) {
	// Progressions are tracked per workflow; an index reset in another
	// workflow is not a violation.
	anomalies := runAgent(t, []models.Event{
		stepEvent("e1", "wf_a", 3, nil, 0),
		stepEvent("e2", "wf_b", 0, nil, time.Minute),
	})
	assert.Empty(t, anomalies)
}
