package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/coglab/cognition-engine/pkg/database"
	"github.com/coglab/cognition-engine/pkg/models"
)

// Postgres is the durable implementation of Store. Every append lands in
// PostgreSQL before it becomes visible in the in-memory index, so reads
// never surface a record the log could lose. The backing tables are
// written append-only — no UPDATE or DELETE is ever issued against the
// events, metrics, dlq, or cycles tables (idempotency_keys and
// baseline_snapshots are working state, not logs).
type Postgres struct {
	db    *sqlx.DB
	index *Memory
}

// NewPostgres wraps a migrated database client and rebuilds the in-memory
// index by replaying the observation and cycle logs.
func NewPostgres(ctx context.Context, client *database.Client) (*Postgres, error) {
	s := &Postgres{db: client.DB(), index: NewMemory()}
	if err := s.replay(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

type eventRow struct {
	EventID      string    `db:"event_id"`
	Type         string    `db:"type"`
	WorkflowID   string    `db:"workflow_id"`
	Actor        string    `db:"actor"`
	Resource     string    `db:"resource"`
	Timestamp    time.Time `db:"timestamp"`
	Metadata     []byte    `db:"metadata"`
	ObservedAt   time.Time `db:"observed_at"`
	TraceID      string    `db:"trace_id"`
	TenantKey    string    `db:"tenant_key"`
	DeploymentID string    `db:"deployment_id"`
}

func (r eventRow) toModel() (models.Event, error) {
	e := models.Event{
		EventID:      r.EventID,
		Type:         r.Type,
		WorkflowID:   r.WorkflowID,
		Actor:        r.Actor,
		Resource:     r.Resource,
		Timestamp:    r.Timestamp,
		ObservedAt:   r.ObservedAt,
		TraceID:      r.TraceID,
		TenantKey:    r.TenantKey,
		DeploymentID: r.DeploymentID,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &e.Metadata); err != nil {
			return e, fmt.Errorf("%w: event %s metadata: %v", ErrIndexCorrupt, r.EventID, err)
		}
	}
	return e, nil
}

func (s *Postgres) replay(ctx context.Context) error {
	var eventRows []eventRow
	if err := s.db.SelectContext(ctx, &eventRows,
		`SELECT event_id, type, workflow_id, actor, resource, timestamp, metadata,
		        observed_at, trace_id, tenant_key, deployment_id
		 FROM events ORDER BY seq`); err != nil {
		return newStorageError("events", "replay", err)
	}
	for _, r := range eventRows {
		e, err := r.toModel()
		if err != nil {
			return err
		}
		if err := s.index.AppendEvent(ctx, e); err != nil {
			return err
		}
	}

	var metricRows []models.Metric
	if err := s.db.SelectContext(ctx, &metricRows,
		`SELECT metric_id, resource_id, metric_name, value, timestamp, observed_at, tenant_key
		 FROM metrics ORDER BY seq`); err != nil {
		return newStorageError("metrics", "replay", err)
	}
	for _, m := range metricRows {
		if err := s.index.AppendMetric(ctx, m); err != nil {
			return err
		}
	}

	var idemRows []models.IdempotencyRecord
	if err := s.db.SelectContext(ctx, &idemRows,
		`SELECT idempotency_key, first_seen_at, event_id FROM idempotency_keys`); err != nil {
		return newStorageError("idempotency", "replay", err)
	}
	for _, r := range idemRows {
		if err := s.index.Reserve(ctx, r.IdempotencyKey, r.EventID, r.FirstSeenAt); err != nil {
			return newStorageError("idempotency", "replay", err)
		}
	}

	type cycleRow struct {
		CycleID     string    `db:"cycle_id"`
		StartedAt   time.Time `db:"started_at"`
		CompletedAt time.Time `db:"completed_at"`
		Payload     []byte    `db:"payload"`
		SHA         string    `db:"cycle_sha256"`
	}
	var cycleRows []cycleRow
	if err := s.db.SelectContext(ctx, &cycleRows,
		`SELECT cycle_id, started_at, completed_at, payload, cycle_sha256 FROM cycles ORDER BY seq`); err != nil {
		return newStorageError("cycles", "replay", err)
	}
	for _, r := range cycleRows {
		var c models.Cycle
		if err := json.Unmarshal(r.Payload, &c); err != nil {
			return fmt.Errorf("%w: cycle %s payload: %v", ErrIndexCorrupt, r.CycleID, err)
		}
		if err := s.index.AppendSealed(ctx, c, r.Payload); err != nil {
			return err
		}
	}

	type dlqRow struct {
		ID          string    `db:"id"`
		Envelope    []byte    `db:"envelope"`
		ReasonCode  string    `db:"reason_code"`
		ReceivedAt  time.Time `db:"received_at"`
		Diagnostics []byte    `db:"diagnostics"`
	}
	var dlqRows []dlqRow
	if err := s.db.SelectContext(ctx, &dlqRows,
		`SELECT id, envelope, reason_code, received_at, diagnostics FROM dlq ORDER BY seq`); err != nil {
		return newStorageError("dlq", "replay", err)
	}
	for _, r := range dlqRows {
		rec := models.DLQRecord{
			ID:         r.ID,
			ReasonCode: models.ReasonCode(r.ReasonCode),
			ReceivedAt: r.ReceivedAt,
		}
		if len(r.Envelope) > 0 {
			if err := json.Unmarshal(r.Envelope, &rec.Envelope); err != nil {
				return fmt.Errorf("%w: dlq %s envelope: %v", ErrIndexCorrupt, r.ID, err)
			}
		}
		if len(r.Diagnostics) > 0 {
			if err := json.Unmarshal(r.Diagnostics, &rec.Diagnostics); err != nil {
				return fmt.Errorf("%w: dlq %s diagnostics: %v", ErrIndexCorrupt, r.ID, err)
			}
		}
		if err := s.index.AppendDLQ(ctx, rec); err != nil {
			return err
		}
	}

	slog.Info("observation store replayed",
		"events", len(eventRows),
		"metrics", len(metricRows),
		"cycles", len(cycleRows),
		"dlq", len(dlqRows),
		"reservations", len(idemRows))
	return nil
}

func (s *Postgres) AppendEvent(ctx context.Context, e models.Event) error {
	meta, err := marshalOrNil(e.Metadata)
	if err != nil {
		return newStorageError("events", "append", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, type, workflow_id, actor, resource, timestamp,
		                     metadata, observed_at, trace_id, tenant_key, deployment_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.EventID, e.Type, e.WorkflowID, e.Actor, e.Resource, e.Timestamp,
		meta, e.ObservedAt, e.TraceID, e.TenantKey, e.DeploymentID)
	if err != nil {
		return newStorageError("events", "append", err)
	}
	return s.index.AppendEvent(ctx, e)
}

func (s *Postgres) AppendMetric(ctx context.Context, m models.Metric) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics (metric_id, resource_id, metric_name, value, timestamp, observed_at, tenant_key)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.MetricID, m.ResourceID, m.MetricName, m.Value, m.Timestamp, m.ObservedAt, m.TenantKey)
	if err != nil {
		return newStorageError("metrics", "append", err)
	}
	return s.index.AppendMetric(ctx, m)
}

func (s *Postgres) RecentEvents(ctx context.Context, n int) ([]models.Event, error) {
	return s.index.RecentEvents(ctx, n)
}

func (s *Postgres) RecentMetrics(ctx context.Context, n int) ([]models.Metric, error) {
	return s.index.RecentMetrics(ctx, n)
}

func (s *Postgres) EventWindow(ctx context.Context, from, to time.Time, f EventFilter) ([]models.Event, error) {
	return s.index.EventWindow(ctx, from, to, f)
}

func (s *Postgres) MetricWindow(ctx context.Context, from, to time.Time, f MetricFilter) ([]models.Metric, error) {
	return s.index.MetricWindow(ctx, from, to, f)
}

func (s *Postgres) HasRecord(ctx context.Context, id string) (bool, error) {
	return s.index.HasRecord(ctx, id)
}

// Reserve inserts the reservation row first — the durable step — and only
// then mirrors it into the index. A unique-violation on the insert means
// another submit holds the key.
func (s *Postgres) Reserve(ctx context.Context, key, eventID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (idempotency_key, first_seen_at, event_id)
		 VALUES ($1,$2,$3) ON CONFLICT (idempotency_key) DO NOTHING`,
		key, at, eventID)
	if err != nil {
		return newStorageError("idempotency", "reserve", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return newStorageError("idempotency", "reserve", err)
	}
	if n == 0 {
		return ErrDuplicateKey
	}
	return s.index.Reserve(ctx, key, eventID, at)
}

func (s *Postgres) Release(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE idempotency_key = $1`, key); err != nil {
		return newStorageError("idempotency", "release", err)
	}
	return s.index.Release(ctx, key)
}

func (s *Postgres) Lookup(ctx context.Context, key string) (models.IdempotencyRecord, bool, error) {
	return s.index.Lookup(ctx, key)
}

// Sweep releases reservations whose event never made it into the events
// log — the crash-recovery pass between reservation and append.
func (s *Postgres) Sweep(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM idempotency_keys k
		 WHERE NOT EXISTS (SELECT 1 FROM events e WHERE e.event_id = k.event_id)
		 RETURNING k.idempotency_key`)
	if err != nil {
		return 0, newStorageError("idempotency", "sweep", err)
	}
	defer rows.Close()
	released := 0
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return released, newStorageError("idempotency", "sweep", err)
		}
		if err := s.index.Release(ctx, key); err != nil {
			return released, err
		}
		released++
	}
	return released, rows.Err()
}

func (s *Postgres) AppendDLQ(ctx context.Context, r models.DLQRecord) error {
	env, err := json.Marshal(r.Envelope)
	if err != nil {
		return newStorageError("dlq", "append", err)
	}
	diag, err := marshalOrNil(r.Diagnostics)
	if err != nil {
		return newStorageError("dlq", "append", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dlq (id, envelope, reason_code, received_at, diagnostics)
		 VALUES ($1,$2,$3,$4,$5)`,
		r.ID, string(env), string(r.ReasonCode), r.ReceivedAt, diag)
	if err != nil {
		return newStorageError("dlq", "append", err)
	}
	return s.index.AppendDLQ(ctx, r)
}

func (s *Postgres) RecentDLQ(ctx context.Context, n int) ([]models.DLQRecord, error) {
	return s.index.RecentDLQ(ctx, n)
}

func (s *Postgres) DLQCounts(ctx context.Context) (map[models.ReasonCode]int, error) {
	return s.index.DLQCounts(ctx)
}

func (s *Postgres) AppendSealed(ctx context.Context, c models.Cycle, payload []byte) error {
	completed := c.StartedAt
	if c.CompletedAt != nil {
		completed = *c.CompletedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (cycle_id, started_at, completed_at, payload, cycle_sha256)
		 VALUES ($1,$2,$3,$4,$5)`,
		c.CycleID, c.StartedAt, completed, string(payload), c.CycleSHA256)
	if err != nil {
		return newStorageError("cycles", "append", err)
	}
	return s.index.AppendSealed(ctx, c, payload)
}

func (s *Postgres) GetCycle(ctx context.Context, cycleID string) (models.Cycle, []byte, error) {
	return s.index.GetCycle(ctx, cycleID)
}

func (s *Postgres) RecentCycles(ctx context.Context, n int) ([]models.Cycle, error) {
	return s.index.RecentCycles(ctx, n)
}

func (s *Postgres) SaveBaselines(ctx context.Context, profiles []models.BaselineProfile) error {
	for _, p := range profiles {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO baseline_snapshots (entity, metric, sample_count, mean, variance, active, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)
			 ON CONFLICT (entity, metric) DO UPDATE SET
			   sample_count = EXCLUDED.sample_count,
			   mean = EXCLUDED.mean,
			   variance = EXCLUDED.variance,
			   active = EXCLUDED.active,
			   updated_at = EXCLUDED.updated_at`,
			p.Key.Entity, p.Key.Metric, p.SampleCount, p.Mean, p.Variance, p.Active, p.UpdatedAt)
		if err != nil {
			return newStorageError("baselines", "save", err)
		}
	}
	return s.index.SaveBaselines(ctx, profiles)
}

func (s *Postgres) LoadBaselines(ctx context.Context) ([]models.BaselineProfile, error) {
	type row struct {
		Entity      string    `db:"entity"`
		Metric      string    `db:"metric"`
		SampleCount int       `db:"sample_count"`
		Mean        float64   `db:"mean"`
		Variance    float64   `db:"variance"`
		Active      bool      `db:"active"`
		UpdatedAt   time.Time `db:"updated_at"`
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT entity, metric, sample_count, mean, variance, active, updated_at
		 FROM baseline_snapshots ORDER BY entity, metric`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, newStorageError("baselines", "load", err)
	}
	out := make([]models.BaselineProfile, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.BaselineProfile{
			Key:         models.BaselineKey{Entity: r.Entity, Metric: r.Metric},
			SampleCount: r.SampleCount,
			Mean:        r.Mean,
			Variance:    r.Variance,
			Active:      r.Active,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return out, nil
}

// marshalOrNil binds a metadata map as a JSON string, or SQL NULL when
// empty. Strings bind untyped, so the server casts them to jsonb; []byte
// would bind as bytea and fail the cast.
func marshalOrNil(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
