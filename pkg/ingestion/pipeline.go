// Package ingestion implements the envelope pipeline: schema gate,
// idempotency gate, skew gate, category gate, tenant derivation, and
// normalization into the observation store. Quarantines land in the DLQ
// with one of three reason codes; accepts append exactly one event (plus
// a metric when a metric payload is present). If the metric append fails
// after the event is durable, the event and its reservation stay and the
// submit returns the error.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/coglab/cognition-engine/pkg/config"
	"github.com/coglab/cognition-engine/pkg/guard"
	"github.com/coglab/cognition-engine/pkg/models"
	"github.com/coglab/cognition-engine/pkg/store"
)

// appendRetries bounds the backoff loop around durable appends. On
// persistent failure the submit surfaces a StorageError and the caller
// returns 503.
const appendRetries = 3

// Masker scrubs secret-bearing values from maps before they are persisted
// in DLQ diagnostics.
type Masker interface {
	MaskMap(map[string]any) map[string]any
}

// Result is the outcome of one submit: accepted with the minted event id,
// or quarantined with a reason code and diagnostics.
type Result struct {
	Accepted    bool
	EventID     string
	MetricID    string
	ReasonCode  models.ReasonCode
	Diagnostics map[string]any
}

// Pipeline is safe for concurrent submits. The idempotency gate serializes
// per key via a hash-partitioned lock; everything before and after the
// critical section runs lock-free.
type Pipeline struct {
	schema config.SchemaConfig
	skew   config.SkewConfig

	obs    store.ObservationStore
	idem   store.IdempotencyIndex
	dlq    store.DLQ
	masker Masker

	locks []sync.Mutex
	now   func() time.Time

	accepted atomic.Int64
}

// New builds a pipeline over the given store surfaces. masker may be nil.
func New(cfg *config.Config, obs store.ObservationStore, idem store.IdempotencyIndex, dlq store.DLQ, masker Masker) *Pipeline {
	parts := cfg.Idempotency.Partitions
	if parts < 1 {
		parts = 1
	}
	return &Pipeline{
		schema: cfg.Schema,
		skew:   cfg.Skew,
		obs:    obs,
		idem:   idem,
		dlq:    dlq,
		masker: masker,
		locks:  make([]sync.Mutex, parts),
		now:    time.Now,
	}
}

// WithClock overrides the wall clock, for deterministic tests and the
// scenario injector.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Submit runs the five-gate validation in fixed order, short-circuiting at
// the first failure. The critical section — reserve key, append — runs
// under the key's partition lock: a quarantine or a failed event append
// after the reservation releases it; a failed metric append does not.
func (p *Pipeline) Submit(ctx context.Context, env models.Envelope) (Result, error) {
	// Gate 1: schema.
	if verr := p.validateSchema(env); verr != nil {
		return p.quarantine(ctx, env, models.ReasonSchemaInvalid, verr)
	}

	// Gate 2: idempotency. The reservation is durable before the store
	// append; the partition lock serializes concurrent submits per key.
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

	// From here on, any quarantine or failure releases the reservation:
	// late and invalid submissions must not consume the key.
	release := func() {
		if err := p.idem.Release(ctx, env.IdempotencyKey); err != nil {
			slog.Error("failed to release idempotency reservation",
				"idempotency_key", env.IdempotencyKey, "error", err)
		}
	}

	// Gate 3: skew.
	if verr := p.validateSkew(env.EventSourceTS, receivedAt); verr != nil {
		release()
		return p.quarantine(ctx, env, models.ReasonLateEvent, verr)
	}

	// Gate 4: category payloads.
	if verr := p.validateCategory(env.NormalizedEvent); verr != nil {
		release()
		return p.quarantine(ctx, env, models.ReasonSchemaInvalid, verr)
	}

	// Gate 5: tenant derivation.
	tenantKey := env.EnterpriseContext.TenantKey()

	// Gate 6: normalization and append.
	event, metric := p.normalize(env, eventID, tenantKey, receivedAt)

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
			// The event append is already durable; the reservation stays
			// so a retry under the same key cannot double-append.
			return Result{}, err
		}
		res.MetricID = metric.MetricID
	}

	p.accepted.Add(1)
	return res, nil
}

func (p *Pipeline) validateSchema(env models.Envelope) error {
	switch {
	case env.SchemaVersion == "":
		return newValidationError("schema", "schema_version", ErrSchemaInvalid)
	case env.EventID == "":
		return newValidationError("schema", "event_id", ErrSchemaInvalid)
	case env.IdempotencyKey == "":
		return newValidationError("schema", "idempotency_key", ErrSchemaInvalid)
	case env.TraceID == "":
		return newValidationError("schema", "trace_id", ErrSchemaInvalid)
	case env.EventSourceTS.IsZero():
		return newValidationError("schema", "event_source_ts", ErrSchemaInvalid)
	case env.EnterpriseContext.Org == "" || env.EnterpriseContext.Project == "" || env.EnterpriseContext.Env == "":
		return newValidationError("schema", "enterprise_context", ErrSchemaInvalid)
	case len(env.ActorContext) == 0:
		return newValidationError("schema", "actor_context", ErrSchemaInvalid)
	case env.SourceSignature.ToolName == "" || env.SourceSignature.ToolType == "":
		return newValidationError("schema", "source_signature", ErrSchemaInvalid)
	case env.NormalizedEvent.Category == "":
		return newValidationError("schema", "normalized_event", ErrSchemaInvalid)
	}

	major, err := schemaMajor(env.SchemaVersion)
	if err != nil {
		return newValidationError("schema", "schema_version", fmt.Errorf("%w: %v", ErrSchemaInvalid, err))
	}
	for _, accepted := range p.schema.AcceptMajors {
		if major == accepted {
			return nil
		}
	}
	return newValidationError("schema", "schema_version",
		fmt.Errorf("%w: major version %d not accepted", ErrSchemaInvalid, major))
}

func schemaMajor(version string) (int, error) {
	head, _, _ := strings.Cut(version, ".")
	return strconv.Atoi(head)
}

func (p *Pipeline) validateSkew(sourceTS, now time.Time) error {
	if now.Sub(sourceTS) > p.skew.Past {
		return newValidationError("skew", "event_source_ts",
			fmt.Errorf("%w: %s older than %s window", ErrLateEvent, now.Sub(sourceTS), p.skew.Past))
	}
	if sourceTS.Sub(now) > p.skew.Future {
		return newValidationError("skew", "event_source_ts",
			fmt.Errorf("%w: %s in the future, window %s", ErrLateEvent, sourceTS.Sub(now), p.skew.Future))
	}
	return nil
}

func (p *Pipeline) validateCategory(ne models.NormalizedEvent) error {
	switch ne.Category {
	case "event":
		if ne.EventPayload == nil || ne.EventPayload.Type == "" {
			return newValidationError("category", "event_payload", fmt.Errorf("%w: missing or untyped event payload", ErrCategoryInvalid))
		}
		if _, hasSeverity := ne.EventPayload.Metadata[models.SeverityFieldKey]; hasSeverity {
			return newValidationError("category", "event_payload", fmt.Errorf("%w: events are raw facts and carry no severity", ErrCategoryInvalid))
		}
	case "metric":
		if ne.MetricPayload == nil || ne.MetricPayload.MetricName == "" || ne.MetricPayload.ResourceID == "" {
			return newValidationError("category", "metric_payload", fmt.Errorf("%w: missing metric payload fields", ErrCategoryInvalid))
		}
	default:
		return newValidationError("category", "category", fmt.Errorf("%w: unknown category %q", ErrCategoryInvalid, ne.Category))
	}
	return nil
}

func (p *Pipeline) normalize(env models.Envelope, eventID, tenantKey string, receivedAt time.Time) (models.Event, *models.Metric) {
	ne := env.NormalizedEvent
	event := models.Event{
		EventID:      eventID,
		Actor:        actorFrom(env.ActorContext),
		Timestamp:    env.EventSourceTS.UTC(),
		ObservedAt:   receivedAt,
		TraceID:      env.TraceID,
		TenantKey:    tenantKey,
		DeploymentID: env.EnterpriseContext.DeploymentID,
	}

	switch ne.Category {
	case "event":
		event.Type = ne.EventPayload.Type
		event.WorkflowID = ne.EventPayload.WorkflowID
		event.Resource = ne.EventPayload.Resource
		if len(ne.EventPayload.Metadata) > 0 {
			event.Metadata = make(map[string]any, len(ne.EventPayload.Metadata)+1)
			for k, v := range ne.EventPayload.Metadata {
				event.Metadata[k] = v
			}
		}
	case "metric":
		event.Type = "METRIC_OBSERVATION"
		event.Resource = ne.MetricPayload.ResourceID
	}
	if event.Metadata == nil {
		event.Metadata = make(map[string]any, 1)
	}
	event.Metadata["source_event_id"] = env.EventID

	if ne.Category != "metric" {
		return event, nil
	}
	metric := &models.Metric{
		MetricID:   uuid.New().String(),
		ResourceID: ne.MetricPayload.ResourceID,
		MetricName: ne.MetricPayload.MetricName,
		Value:      ne.MetricPayload.Value,
		Timestamp:  env.EventSourceTS.UTC(),
		ObservedAt: receivedAt,
		TenantKey:  tenantKey,
	}
	return event, metric
}

func actorFrom(actorContext map[string]any) string {
	for _, key := range []string{"actor", "user", "principal", "service_account"} {
		if v, ok := actorContext[key].(string); ok && v != "" {
			return v
		}
	}
	return "unknown"
}

func (p *Pipeline) quarantine(ctx context.Context, env models.Envelope, reason models.ReasonCode, cause error) (Result, error) {
	diagnostics := map[string]any{"error": cause.Error()}
	if p.masker != nil {
		env.ActorContext = p.masker.MaskMap(env.ActorContext)
		diagnostics = p.masker.MaskMap(diagnostics)
	}
	rec := models.DLQRecord{
		ID:          uuid.New().String(),
		Envelope:    env,
		ReasonCode:  reason,
		ReceivedAt:  p.now().UTC(),
		Diagnostics: diagnostics,
	}
	if err := p.appendDurably(ctx, func() error { return p.dlq.AppendDLQ(ctx, rec) }); err != nil {
		return Result{}, err
	}
	slog.Debug("submission quarantined",
		"reason_code", reason, "idempotency_key", env.IdempotencyKey, "cause", cause.Error())
	return Result{ReasonCode: reason, Diagnostics: diagnostics}, nil
}

// appendDurably retries a durable append with bounded backoff.
func (p *Pipeline) appendDurably(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < appendRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %v", store.ErrAppendFailed, err)
}

// Status returns the aggregate counters backing GET /ingest/status.
func (p *Pipeline) Status(ctx context.Context) (models.IngestStatus, error) {
	counts, err := p.dlq.DLQCounts(ctx)
	if err != nil {
		return models.IngestStatus{}, err
	}
	return models.IngestStatus{
		Accepted:            int(p.accepted.Load()),
		QuarantinedByReason: counts,
	}, nil
}

func partition(key string, parts int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % parts
}
