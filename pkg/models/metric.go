package models

import "time"

// Metric is an immutable numeric sample observed by ingestion. Same
// lifecycle as Event: created once, never updated, never deleted.
type Metric struct {
	MetricID   string    `json:"metric_id" db:"metric_id"`
	ResourceID string    `json:"resource_id" db:"resource_id"`
	MetricName string    `json:"metric_name" db:"metric_name"`
	Value      float64   `json:"value" db:"value"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	ObservedAt time.Time `json:"observed_at" db:"observed_at"`
	TenantKey  string    `json:"tenant_key,omitempty" db:"tenant_key"`
}
