package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coglab/cognition-engine/pkg/models"
	"github.com/coglab/cognition-engine/pkg/store"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestClassify(t *testing.T) {
	cases := map[string]models.QueryIntent{
		"why did the deploy fail":         models.IntentCausal,
		"what will happen next":           models.IntentPrediction,
		"any policy violations today":     models.IntentCompliance,
		"is the billing workflow delayed": models.IntentWorkflow,
		"how is cpu on the fleet":         models.IntentResource,
		"what's the current risk status":  models.IntentRiskStatus,
		"tell me something interesting":   models.IntentGeneral,
	}
	for question, expected := range cases {
		assert.Equal(t, expected, Classify(question), question)
	}
}

func sealCycle(t *testing.T, mem *store.Memory, id string, c models.Cycle) {
	t.Helper()
	c.CycleID = id
	c.State = models.CycleSealed
	c.StartedAt = base.Add(time.Duration(len(id)) * time.Minute)
	completed := c.StartedAt.Add(time.Second)
	c.CompletedAt = &completed
	payload := []byte(fmt.Sprintf(`{"cycle_id":%q}`, id))
	require.NoError(t, mem.AppendSealed(context.Background(), c, payload))
}

func TestEngine_RefusesWithoutEvidence(t *testing.T) {
	engine := New(store.NewMemory())

	answer, err := engine.Answer(context.Background(), "why is everything broken")
	require.NoError(t, err)
	assert.Equal(t, "no evidence", answer.Uncertainty)
	assert.Empty(t, answer.Answer)
	assert.Zero(t, answer.Confidence)
}

func TestEngine_CausalAnswer(t *testing.T) {
	mem := store.NewMemory()
	sealCycle(t, mem, "c1", models.Cycle{
		CausalLinks: []models.CausalLink{{
			LinkID:     "l1", CauseType: models.AnomalySustainedResourceCritical,
			EffectType: models.AnomalyWorkflowDelay, Confidence: 0.72,
			Reasoning:  "cpu pressure preceded the delay",
		}},
	})

	answer, err := New(mem).Answer(context.Background(), "why was the deploy late")
	require.NoError(t, err)
	assert.Equal(t, models.IntentCausal, answer.Intent)
	assert.Empty(t, answer.Uncertainty)
	require.Len(t, answer.Evidence, 1)
	assert.Contains(t, answer.Answer, "cpu pressure preceded the delay")
}

func TestEngine_ConfidenceMath(t *testing.T) {
	mem := store.NewMemory()
	anomalies := make([]models.Anomaly, 5)
	for i := range anomalies {
		anomalies[i] = models.Anomaly{
			AnomalyID: fmt.Sprintf("an-%d", i), Type: models.AnomalyWorkflowDelay,
			Entity:    "wf", Confidence: 0.8, Description: "slow",
		}
	}
	sealCycle(t, mem, "c1", models.Cycle{Anomalies: anomalies})

	answer, err := New(mem).Answer(context.Background(), "workflow status")
	require.NoError(t, err)
	// mean(0.8×5) + 0.01·(5−3) = 0.82
	assert.InDelta(t, 0.82, answer.Confidence, 1e-9)
}

func TestEngine_VolumeBonusCaps(t *testing.T) {
	mem := store.NewMemory()
	anomalies := make([]models.Anomaly, 20)
	for i := range anomalies {
		anomalies[i] = models.Anomaly{
			AnomalyID: fmt.Sprintf("an-%d", i), Type: models.AnomalyWorkflowDelay,
			Entity:    "wf", Confidence: 0.5, Description: "slow",
		}
	}
	sealCycle(t, mem, "c1", models.Cycle{Anomalies: anomalies})

	answer, err := New(mem).Answer(context.Background(), "workflow status")
	require.NoError(t, err)
	// mean 0.5 over the top ten + capped bonus 0.08
	assert.InDelta(t, 0.58, answer.Confidence, 1e-9)
}

func TestEngine_RetrievalDepthIsFiveCycles(t *testing.T) {
	mem := store.NewMemory()
	for i := 0; i < 7; i++ {
		sealCycle(t, mem, fmt.Sprintf("cycle-%d-x", i), models.Cycle{
			PolicyHits: []models.PolicyHit{{
				HitID:         fmt.Sprintf("h-%d", i), PolicyID: "P", EventID: "e",
				ViolationType: models.ViolationSilent,
			}},
		})
	}

	answer, err := New(mem).Answer(context.Background(), "policy violations?")
	require.NoError(t, err)
	assert.Len(t, answer.Evidence, 5, "evidence comes from the last five sealed cycles only")
}
