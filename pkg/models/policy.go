package models

import "time"

// Severity is the static severity band assigned to a Policy, distinct from
// the dynamic 0-10 SeverityScore computed per finding.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ViolationType distinguishes a policy-violating operation that completed
// (SILENT) from one that was blocked and surfaced an error (EXPLICIT).
type ViolationType string

const (
	ViolationSilent   ViolationType = "SILENT"
	ViolationExplicit ViolationType = "EXPLICIT"
)

// Policy is a static predicate evaluated by ComplianceAgent against every
// event. Loaded at startup from pkg/config; immutable at runtime.
type Policy struct {
	PolicyID  string   `json:"policy_id"`
	Predicate string   `json:"predicate"` // named predicate, see pkg/agents/compliance
	Severity  Severity `json:"severity"`
	Rationale string   `json:"rationale"`
}

// PolicyHit records a single policy evaluation match.
type PolicyHit struct {
	HitID         string        `json:"hit_id"`
	PolicyID      string        `json:"policy_id"`
	EventID       string        `json:"event_id"`
	ViolationType ViolationType `json:"violation_type"`
	Severity      Severity      `json:"severity"`
	EvidenceIDs   []string      `json:"evidence_ids"`
	Timestamp     time.Time     `json:"timestamp"`
}

// DedupeKey returns the (policy_id, event_id) identity PolicyHit must be
// unique by within a cycle.
func (h PolicyHit) DedupeKey() string {
	return h.PolicyID + "|" + h.EventID
}
