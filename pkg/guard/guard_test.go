package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coglab/cognition-engine/pkg/models"
	"github.com/coglab/cognition-engine/pkg/store"
)

// captureExit swaps the process-exit hook and reports whether it fired.
func captureExit(t *testing.T) *int {
	t.Helper()
	var code int = -1
	orig := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = orig })
	return &code
}

func TestCheckEvidence(t *testing.T) {
	assert.Nil(t, CheckEvidence("workflow", []string{"ev-1"}))

	v := CheckEvidence("workflow", nil)
	require.NotNil(t, v)
	assert.ErrorIs(t, v, ErrEvidenceRequired)

	v = CheckEvidence("workflow", []string{"ev-1", ""})
	require.NotNil(t, v)
	assert.ErrorIs(t, v, ErrEvidenceRequired)
}

func TestCheckRawFact(t *testing.T) {
	assert.Nil(t, CheckRawFact("ingestion", map[string]any{"operation": "write"}))

	v := CheckRawFact("ingestion", map[string]any{"severity": "HIGH"})
	require.NotNil(t, v)
	assert.ErrorIs(t, v, ErrEventMustBeRawFact)
}

func TestCheckPolicyAccess(t *testing.T) {
	assert.Nil(t, CheckPolicyAccess("compliance"))
	assert.Nil(t, CheckPolicyAccess("config"))

	v := CheckPolicyAccess("severity")
	require.NotNil(t, v)
	assert.ErrorIs(t, v, ErrIsolationViolation)
}

func TestFatalHalts(t *testing.T) {
	code := captureExit(t)
	Fatal(&Violation{Invariant: ErrEvidenceRequired, Component: "test", Detail: "x"})
	assert.Equal(t, 1, *code)
}

func TestObservationFence(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, mem.AppendEvent(ctx, models.Event{
		EventID: "ev-1", Type: "T", Actor: "a", Timestamp: now, ObservedAt: now,
	}))

	fence := FenceObservations(mem, "coordinator")

	t.Run("reads pass through", func(t *testing.T) {
		events, err := fence.RecentEvents(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, events, 1)

		ok, err := fence.HasRecord(ctx, "ev-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("appends halt the process", func(t *testing.T) {
		code := captureExit(t)
		err := fence.AppendEvent(ctx, models.Event{EventID: "ev-2"})
		assert.ErrorIs(t, err, ErrAgentCannotEmitEvents)
		assert.Equal(t, 1, *code)

		events, readErr := mem.RecentEvents(ctx, 10)
		require.NoError(t, readErr)
		assert.Len(t, events, 1, "nothing was written")
	})
}
