package models

import "time"

// EnterpriseContext composes the tenant key and carries the optional
// deployment correlation id used by CodeAgent.
type EnterpriseContext struct {
	Org          string `json:"org" validate:"required"`
	Project      string `json:"project" validate:"required"`
	Env          string `json:"env" validate:"required"`
	DeploymentID string `json:"deployment_id,omitempty"`
}

// TenantKey composes the canonical tenant partition key.
func (e EnterpriseContext) TenantKey() string {
	return e.Org + ":" + e.Project + ":" + e.Env
}

// SourceSignature identifies the tool that produced the envelope.
type SourceSignature struct {
	ToolName string `json:"tool_name" validate:"required"`
	ToolType string `json:"tool_type" validate:"required"`
}

// NormalizedEvent is the category-tagged payload carried by an Envelope.
// Exactly one of EventPayload / MetricPayload is expected to be populated,
// selected by Category.
type NormalizedEvent struct {
	Category      string         `json:"category"` // "event" or "metric"
	EventPayload  *EventPayload  `json:"event_payload,omitempty"`
	MetricPayload *MetricPayload `json:"metric_payload,omitempty"`
}

// EventPayload is the category-specific payload for an event submission.
type EventPayload struct {
	Type       string         `json:"type"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Resource   string         `json:"resource,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MetricPayload is the category-specific payload for a metric submission.
type MetricPayload struct {
	ResourceID string  `json:"resource_id"`
	MetricName string  `json:"metric_name"`
	Value      float64 `json:"value"`
}

// Envelope is the external ingestion payload. All fields below
// `SourceSignature` are mandatory per spec; validation order in
// pkg/ingestion enforces this.
type Envelope struct {
	SchemaVersion     string            `json:"schema_version" validate:"required"`
	EventID           string            `json:"event_id" validate:"required"`
	IdempotencyKey    string            `json:"idempotency_key" validate:"required"`
	TraceID           string            `json:"trace_id" validate:"required"`
	EventSourceTS     time.Time         `json:"event_source_ts" validate:"required"`
	EnterpriseContext EnterpriseContext `json:"enterprise_context" validate:"required"`
	ActorContext      map[string]any    `json:"actor_context" validate:"required"`
	SourceSignature   SourceSignature   `json:"source_signature" validate:"required"`
	NormalizedEvent   NormalizedEvent   `json:"normalized_event" validate:"required"`
}
