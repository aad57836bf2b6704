package compliance

import (
	"context"
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

// 02:17 — outside business hours.
var night = time.Date(2026, 3, 1, 2, 17, 0, 0, time.UTC)

// 11:00 — inside business hours.
var day = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

func loadPolicies(t *testing.T) []models.Policy {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	return cfg.Policies
}

func runAgent(t *testing.T, events []models.Event) []models.PolicyHit {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	for _, e := range events {
		require.NoError(t, mem.AppendEvent(ctx, e))
	}
	board := blackboard.New(mem, mem)
	cycleID := board.StartCycle(ctx)

	snap := agents.NewSnapshot(night.Add(time.Hour), events, nil)
	require.NoError(t, New(loadPolicies(t)).Run(ctx, cycleID, snap, board))

	hits, err := board.PolicyHits(cycleID)
	require.NoError(t, err)
	return hits
}

func findHit(hits []models.PolicyHit, policyID string) (models.PolicyHit, bool) {
	for _, h := range hits {
		if h.PolicyID == policyID {
			return h, true
		}
	}
	return models.PolicyHit{}, false
}

func TestComplianceAgent_AfterHoursWrite(t *testing.T) {
	hits := runAgent(t, []models.Event{{
		EventID:  "e1", Type: "ACCESS_WRITE", Actor: "svc_bot",
		Resource: "config", Timestamp: night, ObservedAt: night,
		Metadata: map[string]any{"operation": "write"},
	}})

	hit, found := findHit(hits, "NO_AFTER_HOURS_WRITE")
	require.True(t, found)
	assert.Equal(t, models.ViolationSilent, hit.ViolationType,
		"the write completed, so the violation is silent")
	assert.Equal(t, []string{"e1"}, hit.EvidenceIDs)
}

func TestComplianceAgent_DaytimeWriteClean(t *testing.T) {
	hits := runAgent(t, []models.Event{{
		EventID:   "e1", Type: "ACCESS_WRITE", Actor: "alice",
		Timestamp: day, ObservedAt: day,
	}})
	_, found := findHit(hits, "NO_AFTER_HOURS_WRITE")
	assert.False(t, found)
}

func TestComplianceAgent_ExplicitViolation(t *testing.T) {
	hits := runAgent(t, []models.Event{{
		EventID:   "e1", Type: "ACCESS_WRITE", Actor: "alice",
		Timestamp: night, ObservedAt: night,
		Metadata:  map[string]any{"status": "blocked"},
	}})

	hit, found := findHit(hits, "NO_AFTER_HOURS_WRITE")
	require.True(t, found)
	assert.Equal(t, models.ViolationExplicit, hit.ViolationType)
}

func TestComplianceAgent_SkippedApproval(t *testing.T) {
	hits := runAgent(t, []models.Event{{
		EventID:    "e1", Type: "APPROVAL_SKIPPED", Actor: "svc_bot",
		WorkflowID: "wf1", Timestamp: day, ObservedAt: day,
	}})

	hit, found := findHit(hits, "NO_SKIP_APPROVAL")
	require.True(t, found)
	assert.Equal(t, models.SeverityCritical, hit.Severity)
}

func TestComplianceAgent_ServiceAccountDirectWrite(t *testing.T) {
	t.Run("reported direct write flagged", func(t *testing.T) {
		hits := runAgent(t, []models.Event{{
			EventID:   "e1", Type: "DB_WRITE", Actor: "svc_ingest",
			Timestamp: day, ObservedAt: day,
			Metadata:  map[string]any{"via": "direct"},
		}})
		_, found := findHit(hits, "NO_SERVICE_ACCOUNT_DIRECT_WRITE")
		assert.True(t, found)
	})

	t.Run("write through automation is clean", func(t *testing.T) {
		hits := runAgent(t, []models.Event{{
			EventID:   "e1", Type: "DB_WRITE", Actor: "svc_ingest",
			Timestamp: day, ObservedAt: day,
			Metadata:  map[string]any{"via": "pipeline"},
		}})
		_, found := findHit(hits, "NO_SERVICE_ACCOUNT_DIRECT_WRITE")
		assert.False(t, found)
	})
}

func TestComplianceAgent_UnusualLocation(t *testing.T) {
	hits := runAgent(t, []models.Event{{
		EventID:   "e1", Type: "LOGIN", Actor: "alice",
		Timestamp: day, ObservedAt: day,
		Metadata: map[string]any{
			"location":        "sydney",
			"known_locations": []any{"berlin", "dublin"},
		},
	}})
	_, found := findHit(hits, "NO_UNUSUAL_LOCATION")
	assert.True(t, found)
}

func TestComplianceAgent_SensitiveAccess(t *testing.T) {
	t.Run("uncontrolled access flagged", func(t *testing.T) {
		hits := runAgent(t, []models.Event{{
			EventID:   "e1", Type: "DATA_READ", Actor: "alice",
			Timestamp: day, ObservedAt: day,
			Metadata:  map[string]any{"sensitivity": "restricted"},
		}})
		_, found := findHit(hits, "NO_UNCONTROLLED_SENSITIVE_ACCESS")
		assert.True(t, found)
	})

	t.Run("approved access is clean", func(t *testing.T) {
		hits := runAgent(t, []models.Event{{
			EventID:   "e1", Type: "DATA_READ", Actor: "alice",
			Timestamp: day, ObservedAt: day,
			Metadata:  map[string]any{"sensitivity": "restricted", "approval_ref": "JIRA-42"},
		}})
		_, found := findHit(hits, "NO_UNCONTROLLED_SENSITIVE_ACCESS")
		assert.False(t, found)
	})
}

func TestComplianceAgent_DedupesByPolicyAndEvent(t *testing.T) {
	// The same event evaluated against the same policy produces one hit,
	// however many times the predicate matches.
	event := models.Event{
		EventID:   "e1", Type: "ACCESS_WRITE", Actor: "svc_bot",
		Timestamp: night, ObservedAt: night,
	}
	hits := runAgent(t, []models.Event{event, event})

	count := 0
	for _, h := range hits {
		if h.PolicyID == "NO_AFTER_HOURS_WRITE" && h.EventID == "e1" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
