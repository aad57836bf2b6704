// Package store implements the append-only observation store: events and
// metrics logs with windowed queries, the idempotency index, the dead-letter
// queue, the sealed-cycles log, and baseline snapshots.
//
// Two implementations share one contract: Memory holds everything in
// process (tests, and the query index), Postgres layers durable appends
// under the same in-memory index and rebuilds it by replaying the tables
// on startup.
package store

import (
	"context"
	"time"

	"github.com/coglab/cognition-engine/pkg/models"
)

// EventFilter narrows an event window scan. Zero values match everything.
type EventFilter struct {
	Type       string
	WorkflowID string
}

// MetricFilter narrows a metric window scan. Zero values match everything.
type MetricFilter struct {
	ResourceID string
	MetricName string
}

// ObservationStore is the append-only log of raw facts. Appends are durable
// before return; reads are monotonic — a record visible to one reader stays
// visible.
type ObservationStore interface {
	AppendEvent(ctx context.Context, e models.Event) error
	AppendMetric(ctx context.Context, m models.Metric) error

	// RecentEvents returns the most recent n events, newest first.
	RecentEvents(ctx context.Context, n int) ([]models.Event, error)
	RecentMetrics(ctx context.Context, n int) ([]models.Metric, error)

	EventWindow(ctx context.Context, from, to time.Time, f EventFilter) ([]models.Event, error)
	MetricWindow(ctx context.Context, from, to time.Time, f MetricFilter) ([]models.Metric, error)

	// HasRecord reports whether id names a stored event or metric. Used to
	// resolve evidence references.
	HasRecord(ctx context.Context, id string) (bool, error)
}

// IdempotencyIndex is the durable reservation record for ingestion keys.
// Reserve is atomic per key: the first caller wins, every later caller gets
// ErrDuplicateKey; Lookup returns the original record.
type IdempotencyIndex interface {
	Reserve(ctx context.Context, key, eventID string, at time.Time) error
	Release(ctx context.Context, key string) error
	Lookup(ctx context.Context, key string) (models.IdempotencyRecord, bool, error)

	// Sweep releases reservations with no matching stored event — the
	// recovery pass for a crash between reservation and append. Run once
	// at startup, before ingestion accepts traffic.
	Sweep(ctx context.Context) (released int, err error)
}

// DLQ is the append-only log of quarantined submissions.
type DLQ interface {
	AppendDLQ(ctx context.Context, r models.DLQRecord) error
	RecentDLQ(ctx context.Context, n int) ([]models.DLQRecord, error)
	DLQCounts(ctx context.Context) (map[models.ReasonCode]int, error)
}

// CycleLog is the sealed-cycles log, doubling as the audit trail. payload is
// the canonical JSON the content hash was computed over; GetCycle returns it
// byte-identical across process restarts.
type CycleLog interface {
	AppendSealed(ctx context.Context, c models.Cycle, payload []byte) error
	GetCycle(ctx context.Context, cycleID string) (models.Cycle, []byte, error)
	RecentCycles(ctx context.Context, n int) ([]models.Cycle, error)
}

// BaselineSnapshots persists adaptive-baseline profiles periodically and on
// shutdown, so recovery replays from snapshot plus recent metrics instead of
// from cold.
type BaselineSnapshots interface {
	SaveBaselines(ctx context.Context, profiles []models.BaselineProfile) error
	LoadBaselines(ctx context.Context) ([]models.BaselineProfile, error)
}

// Store is the full persistence surface the engine wires at startup.
type Store interface {
	ObservationStore
	IdempotencyIndex
	DLQ
	CycleLog
	BaselineSnapshots
}
