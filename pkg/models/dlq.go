package models

import "time"

// ReasonCode is one of the three DLQ quarantine reasons.
type ReasonCode string

const (
	ReasonSchemaInvalid ReasonCode = "SCHEMA_INVALID"
	ReasonDuplicate     ReasonCode = "DUPLICATE"
	ReasonLateEvent     ReasonCode = "LATE_EVENT"
)

// DLQRecord is an append-only record of a quarantined ingestion submission.
type DLQRecord struct {
	ID          string         `json:"id" db:"id"`
	Envelope    Envelope       `json:"envelope" db:"-"`
	ReasonCode  ReasonCode     `json:"reason_code" db:"reason_code"`
	ReceivedAt  time.Time      `json:"received_at" db:"received_at"`
	Diagnostics map[string]any `json:"diagnostics,omitempty" db:"-"`
}

// IngestStatus is the aggregate counters backing GET /ingest/status.
type IngestStatus struct {
	Accepted            int                `json:"accepted"`
	QuarantinedByReason map[ReasonCode]int `json:"quarantined_by_reason"`
}
