// Package models defines the canonical domain records of the cognitive
// observability engine: the raw facts (Event, Metric), the ingestion
// envelope, and the findings a reasoning cycle produces.
package models

import "time"

// SeverityFieldKey is the metadata key an ingested event must never carry.
// Severity is computed downstream, never observed — see pkg/guard.
const SeverityFieldKey = "severity"

// Event is an immutable raw fact observed by ingestion. Events carry no
// severity or verdict; those are produced by detection agents and scoring
// engines, never by the event itself. Created by ingestion; never updated
// or deleted.
type Event struct {
	EventID      string         `json:"event_id" db:"event_id"`
	Type         string         `json:"type" db:"type"`
	WorkflowID   string         `json:"workflow_id,omitempty" db:"workflow_id"`
	Actor        string         `json:"actor" db:"actor"`
	Resource     string         `json:"resource,omitempty" db:"resource"`
	Timestamp    time.Time      `json:"timestamp" db:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty" db:"metadata"`
	ObservedAt   time.Time      `json:"observed_at" db:"observed_at"`
	TraceID      string         `json:"trace_id,omitempty" db:"trace_id"`
	TenantKey    string         `json:"tenant_key,omitempty" db:"tenant_key"`
	DeploymentID string         `json:"deployment_id,omitempty" db:"deployment_id"`
}
