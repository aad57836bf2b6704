package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coglab/cognition-engine/pkg/config"
	"github.com/coglab/cognition-engine/pkg/models"
	"github.com/coglab/cognition-engine/pkg/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestPipeline(t *testing.T) (*Pipeline, *store.Memory) {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	mem := store.NewMemory()
	p := New(cfg, mem, mem, mem, nil).WithClock(func() time.Time { return testNow })
	return p, mem
}

func validEnvelope(key string) models.Envelope {
	return models.Envelope{
		SchemaVersion:  "1.2",
		EventID:        "ext-1",
		IdempotencyKey: key,
		TraceID:        "trace-1",
		EventSourceTS:  testNow.Add(-time.Minute),
		EnterpriseContext: models.EnterpriseContext{
			Org: "acme", Project: "billing", Env: "prod",
		},
		ActorContext:    map[string]any{"actor": "alice"},
		SourceSignature: models.SourceSignature{ToolName: "collector", ToolType: "agent"},
		NormalizedEvent: models.NormalizedEvent{
			Category: "event",
			EventPayload: &models.EventPayload{
				Type:     "ACCESS_WRITE",
				Metadata: map[string]any{"operation": "write"},
			},
		},
	}
}

func TestPipeline_AcceptsValidEnvelope(t *testing.T) {
	p, mem := newTestPipeline(t)
	ctx := context.Background()

	res, err := p.Submit(ctx, validEnvelope("k-1"))
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.NotEmpty(t, res.EventID)

	events, err := mem.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ACCESS_WRITE", events[0].Type)
	assert.Equal(t, "alice", events[0].Actor)
	assert.Equal(t, "acme:billing:prod", events[0].TenantKey)
	assert.Equal(t, testNow, events[0].ObservedAt)
	assert.Equal(t, "ext-1", events[0].Metadata["source_event_id"])
}

func TestPipeline_Idempotency(t *testing.T) {
	p, mem := newTestPipeline(t)
	ctx := context.Background()

	first, err := p.Submit(ctx, validEnvelope("k-dup"))
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := p.Submit(ctx, validEnvelope("k-dup"))
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Equal(t, models.ReasonDuplicate, second.ReasonCode)

	events, err := mem.RecentEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1, "store contains the event exactly once")

	dlq, err := mem.RecentDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Equal(t, models.ReasonDuplicate, dlq[0].ReasonCode)
}

func TestPipeline_LateEvent(t *testing.T) {
	p, mem := newTestPipeline(t)
	ctx := context.Background()

	env := validEnvelope("k-late")
	env.EventSourceTS = testNow.Add(-48 * time.Hour)

	res, err := p.Submit(ctx, env)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, models.ReasonLateEvent, res.ReasonCode)

	events, err := mem.RecentEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events, "no store append")

	// The idempotency key must not be consumed by a late event.
	_, held, err := mem.Lookup(ctx, "k-late")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestPipeline_FutureSkew(t *testing.T) {
	p, _ := newTestPipeline(t)

	env := validEnvelope("k-future")
	env.EventSourceTS = testNow.Add(10 * time.Minute)

	res, err := p.Submit(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonLateEvent, res.ReasonCode)
}

func TestPipeline_SchemaGate(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	t.Run("missing trace id", func(t *testing.T) {
		env := validEnvelope("k-s1")
		env.TraceID = ""
		res, err := p.Submit(ctx, env)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonSchemaInvalid, res.ReasonCode)
	})

	t.Run("unaccepted major version", func(t *testing.T) {
		env := validEnvelope("k-s2")
		env.SchemaVersion = "2.0"
		res, err := p.Submit(ctx, env)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonSchemaInvalid, res.ReasonCode)
	})

	t.Run("unparsable version", func(t *testing.T) {
		env := validEnvelope("k-s3")
		env.SchemaVersion = "latest"
		res, err := p.Submit(ctx, env)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonSchemaInvalid, res.ReasonCode)
	})

	t.Run("severity in event payload", func(t *testing.T) {
		env := validEnvelope("k-s4")
		env.NormalizedEvent.EventPayload.Metadata = map[string]any{"severity": "HIGH"}
		res, err := p.Submit(ctx, env)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonSchemaInvalid, res.ReasonCode)
	})

	t.Run("category gate failure releases the key", func(t *testing.T) {
		env := validEnvelope("k-s5")
		env.NormalizedEvent = models.NormalizedEvent{Category: "metric"}
		res, err := p.Submit(ctx, env)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonSchemaInvalid, res.ReasonCode)

		env = validEnvelope("k-s5")
		res, err = p.Submit(ctx, env)
		require.NoError(t, err)
		assert.True(t, res.Accepted, "key freed after earlier quarantine")
	})
}

func TestPipeline_MetricEnvelope(t *testing.T) {
	p, mem := newTestPipeline(t)
	ctx := context.Background()

	env := validEnvelope("k-m1")
	env.NormalizedEvent = models.NormalizedEvent{
		Category: "metric",
		MetricPayload: &models.MetricPayload{
			ResourceID: "vm_7", MetricName: "cpu_percent", Value: 83.5,
		},
	}

	res, err := p.Submit(ctx, env)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.NotEmpty(t, res.MetricID)

	metrics, err := mem.RecentMetrics(ctx, 10)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, 83.5, metrics[0].Value)

	events, err := mem.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "METRIC_OBSERVATION", events[0].Type)
}

func TestPipeline_RawSubmissions(t *testing.T) {
	p, mem := newTestPipeline(t)
	ctx := context.Background()

	t.Run("raw event accepted", func(t *testing.T) {
		res, err := p.SubmitRawEvent(ctx, RawEvent{
			IdempotencyKey: "raw-1",
			Type:           "LOGIN",
			Actor:          "bob",
			Timestamp:      testNow.Add(-time.Minute),
		})
		require.NoError(t, err)
		assert.True(t, res.Accepted)
	})

	t.Run("raw event still subject to idempotency", func(t *testing.T) {
		res, err := p.SubmitRawEvent(ctx, RawEvent{
			IdempotencyKey: "raw-1",
			Type:           "LOGIN",
			Actor:          "bob",
			Timestamp:      testNow.Add(-time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, models.ReasonDuplicate, res.ReasonCode)
	})

	t.Run("raw event still subject to skew", func(t *testing.T) {
		res, err := p.SubmitRawEvent(ctx, RawEvent{
			IdempotencyKey: "raw-2",
			Type:           "LOGIN",
			Actor:          "bob",
			Timestamp:      testNow.Add(-72 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, models.ReasonLateEvent, res.ReasonCode)
	})

	t.Run("raw metric appends metric and observation event", func(t *testing.T) {
		res, err := p.SubmitRawMetric(ctx, RawMetric{
			IdempotencyKey: "raw-m1",
			ResourceID:     "vm_2",
			MetricName:     "cpu_percent",
			Value:          96,
			Timestamp:      testNow.Add(-time.Second),
		})
		require.NoError(t, err)
		require.True(t, res.Accepted)
		assert.NotEmpty(t, res.MetricID)

		metrics, err := mem.RecentMetrics(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, metrics, 1)
	})
}

func TestPipeline_Status(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.Submit(ctx, validEnvelope("k-a"))
	require.NoError(t, err)
	_, err = p.Submit(ctx, validEnvelope("k-a")) // duplicate
	require.NoError(t, err)

	late := validEnvelope("k-b")
	late.EventSourceTS = testNow.Add(-48 * time.Hour)
	_, err = p.Submit(ctx, late)
	require.NoError(t, err)

	status, err := p.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Accepted)
	assert.Equal(t, 1, status.QuarantinedByReason[models.ReasonDuplicate])
	assert.Equal(t, 1, status.QuarantinedByReason[models.ReasonLateEvent])
}

func TestNormalizeGitHubWebhook(t *testing.T) {
	hook := GitHubWebhook{
		DeliveryID: "d-123",
		Event:      "push",
		Repository: "acme/billing",
		Sender:     "carol",
		Timestamp:  testNow,
		Payload:    map[string]any{"files_changed": 42, "deployment_id": "dep-9"},
	}

	env, err := NormalizeGitHubWebhook(hook, "acme", "billing", "prod")
	require.NoError(t, err)
	assert.Equal(t, "github:d-123", env.IdempotencyKey)
	assert.Equal(t, "CODE_CHANGE", env.NormalizedEvent.EventPayload.Type)
	assert.Equal(t, "dep-9", env.EnterpriseContext.DeploymentID)

	t.Run("unsupported event rejected", func(t *testing.T) {
		hook.Event = "star"
		_, err := NormalizeGitHubWebhook(hook, "acme", "billing", "prod")
		assert.Error(t, err)
	})
}
