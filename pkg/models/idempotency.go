package models

import "time"

// IdempotencyRecord is unique by IdempotencyKey; reserved atomically before
// a C1 append and never produces two stored events with different ids for
// the same key.
type IdempotencyRecord struct {
	IdempotencyKey string    `json:"idempotency_key" db:"idempotency_key"`
	FirstSeenAt    time.Time `json:"first_seen_at" db:"first_seen_at"`
	EventID        string    `json:"event_id" db:"event_id"`
}
