package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coglab/cognition-engine/pkg/guard"
	"github.com/coglab/cognition-engine/pkg/models"
	"github.com/coglab/cognition-engine/pkg/store"
)

// RawEvent is the payload of POST /observe/event: bypasses the envelope
// schema gate but remains subject to idempotency and skew.
type RawEvent struct {
	IdempotencyKey string         `json:"idempotency_key"`
	Type           string         `json:"type"`
	WorkflowID     string         `json:"workflow_id,omitempty"`
	Actor          string         `json:"actor"`
	Resource       string         `json:"resource,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// RawMetric is the payload of POST /observe/metric.
type RawMetric struct {
	IdempotencyKey string    `json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	MetricName     string    `json:"metric_name"`
	Value          float64   `json:"value"`
	Timestamp      time.Time `json:"timestamp"`
}

// SubmitRawEvent ingests a bare event. The synthetic envelope recorded on
// quarantine carries only the fields the raw path knows.
func (p *Pipeline) SubmitRawEvent(ctx context.Context, raw RawEvent) (Result, error) {
	env := rawEnvelope(raw.IdempotencyKey, raw.Timestamp, models.NormalizedEvent{
		Category: "event",
		EventPayload: &models.EventPayload{
			Type:       raw.Type,
			WorkflowID: raw.WorkflowID,
			Resource:   raw.Resource,
			Metadata:   raw.Metadata,
		},
	})

	if raw.Type == "" {
		return p.quarantine(ctx, env, models.ReasonSchemaInvalid,
			newValidationError("category", "type", ErrCategoryInvalid))
	}
	if _, hasSeverity := raw.Metadata[models.SeverityFieldKey]; hasSeverity {
		return p.quarantine(ctx, env, models.ReasonSchemaInvalid,
			newValidationError("category", "metadata", fmt.Errorf("%w: events are raw facts and carry no severity", ErrCategoryInvalid)))
	}

	return p.submitRaw(ctx, env, func(eventID, tenantKey string, receivedAt time.Time) (models.Event, *models.Metric) {
		e := models.Event{
			EventID:    eventID,
			Type:       raw.Type,
			WorkflowID: raw.WorkflowID,
			Actor:      raw.Actor,
			Resource:   raw.Resource,
			Timestamp:  raw.Timestamp.UTC(),
			Metadata:   raw.Metadata,
			ObservedAt: receivedAt,
			TenantKey:  tenantKey,
		}
		if e.Actor == "" {
			e.Actor = "unknown"
		}
		return e, nil
	})
}

// SubmitRawMetric ingests a bare metric sample, appending both the metric
// and its METRIC_OBSERVATION event.
func (p *Pipeline) SubmitRawMetric(ctx context.Context, raw RawMetric) (Result, error) {
	env := rawEnvelope(raw.IdempotencyKey, raw.Timestamp, models.NormalizedEvent{
		Category: "metric",
		MetricPayload: &models.MetricPayload{
			ResourceID: raw.ResourceID,
			MetricName: raw.MetricName,
			Value:      raw.Value,
		},
	})

	if raw.ResourceID == "" || raw.MetricName == "" {
		return p.quarantine(ctx, env, models.ReasonSchemaInvalid,
			newValidationError("category", "metric_payload", ErrCategoryInvalid))
	}

	return p.submitRaw(ctx, env, func(eventID, tenantKey string, receivedAt time.Time) (models.Event, *models.Metric) {
		e := models.Event{
			EventID:    eventID,
			Type:       "METRIC_OBSERVATION",
			Actor:      "unknown",
			Resource:   raw.ResourceID,
			Timestamp:  raw.Timestamp.UTC(),
			ObservedAt: receivedAt,
			TenantKey:  tenantKey,
		}
		m := &models.Metric{
			MetricID:   uuid.New().String(),
			ResourceID: raw.ResourceID,
			MetricName: raw.MetricName,
			Value:      raw.Value,
			Timestamp:  raw.Timestamp.UTC(),
			ObservedAt: receivedAt,
			TenantKey:  tenantKey,
		}
		return e, m
	})
}

func rawEnvelope(idempotencyKey string, sourceTS time.Time, ne models.NormalizedEvent) models.Envelope {
	return models.Envelope{
		SchemaVersion:   "raw",
		IdempotencyKey:  idempotencyKey,
		EventSourceTS:   sourceTS,
		NormalizedEvent: ne,
	}
}

// submitRaw runs the idempotency and skew gates, then appends whatever
// build produces. Shares the critical-section semantics of Submit.
func (p *Pipeline) submitRaw(ctx context.Context, env models.Envelope, build func(eventID, tenantKey string, receivedAt time.Time) (models.Event, *models.Metric)) (Result, error) {
	if env.IdempotencyKey == "" {
		return p.quarantine(ctx, env, models.ReasonSchemaInvalid,
			newValidationError("schema", "idempotency_key", ErrSchemaInvalid))
	}

	lock := &p.locks[partition(env.IdempotencyKey, len(p.locks))]
	lock.Lock()
	defer lock.Unlock()

	if _, held, err := p.idem.Lookup(ctx, env.IdempotencyKey); err != nil {
		return Result{}, err
	} else if held {
		return p.quarantine(ctx, env, models.ReasonDuplicate, fmt.Errorf("idempotency key already seen"))
	}

	eventID := uuid.New().String()
	receivedAt := p.now().UTC()
	if err := p.idem.Reserve(ctx, env.IdempotencyKey, eventID, receivedAt); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return p.quarantine(ctx, env, models.ReasonDuplicate, err)
		}
		return Result{}, err
	}
	release := func() { _ = p.idem.Release(ctx, env.IdempotencyKey) }

	if verr := p.validateSkew(env.EventSourceTS, receivedAt); verr != nil {
		release()
		return p.quarantine(ctx, env, models.ReasonLateEvent, verr)
	}

	event, metric := build(eventID, "", receivedAt)

	if v := guard.CheckRawFact("ingestion", event.Metadata); v != nil {
		guard.Fatal(v)
		return Result{}, v
	}

	if err := p.appendDurably(ctx, func() error { return p.obs.AppendEvent(ctx, event) }); err != nil {
		release()
		return Result{}, err
	}
	res := Result{Accepted: true, EventID: eventID}
	if metric != nil {
		if err := p.appendDurably(ctx, func() error { return p.obs.AppendMetric(ctx, *metric) }); err != nil {
			return Result{}, err
		}
		res.MetricID = metric.MetricID
	}
	p.accepted.Add(1)
	return res, nil
}
