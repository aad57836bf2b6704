package config

import "github.com/coglab/cognition-engine/pkg/models"

// builtinPolicies are the five built-in predicates. User-defined
// policies from cognition.yaml merge over this set by id.
func builtinPolicies() []models.Policy {
	return []models.Policy{
		{
			PolicyID:  "NO_AFTER_HOURS_WRITE",
			Predicate: "after_hours_write",
			Severity:  models.SeverityMedium,
			Rationale: "Write operations outside business hours require justification.",
		},
		{
			PolicyID:  "NO_UNUSUAL_LOCATION",
			Predicate: "unusual_location",
			Severity:  models.SeverityMedium,
			Rationale: "Actor operated from a location outside its known set.",
		},
		{
			PolicyID:  "NO_UNCONTROLLED_SENSITIVE_ACCESS",
			Predicate: "uncontrolled_sensitive_access",
			Severity:  models.SeverityHigh,
			Rationale: "Sensitive resource accessed without a compensating control.",
		},
		{
			PolicyID:  "NO_SERVICE_ACCOUNT_DIRECT_WRITE",
			Predicate: "service_account_direct_write",
			Severity:  models.SeverityHigh,
			Rationale: "Service accounts must write through an approved automation path.",
		},
		{
			PolicyID:  "NO_SKIP_APPROVAL",
			Predicate: "skipped_approval",
			Severity:  models.SeverityCritical,
			Rationale: "A workflow step that requires approval executed without one.",
		},
	}
}

// RecommendationRule is one entry of the static cause-key → action map.
// Actions are selected from this table, never invented.
type RecommendationRule struct {
	CauseKey  string         `yaml:"cause_key"`
	Action    string         `yaml:"action"`
	Urgency   models.Urgency `yaml:"urgency"`
	Rationale string         `yaml:"rationale"`
	BaseRule  float64        `yaml:"base_rule"` // confidence component, see pkg/scoring
}

func builtinRecommendations() []RecommendationRule {
	return []RecommendationRule{
		{CauseKey: "resource_saturation", Action: "Throttle concurrent jobs", Urgency: models.UrgencyHigh, Rationale: "Sustained resource exhaustion precedes workflow delay.", BaseRule: 0.85},
		{CauseKey: "resource_drift", Action: "Schedule capacity review", Urgency: models.UrgencyMedium, Rationale: "Gradual resource drift threatens future SLA compliance.", BaseRule: 0.65},
		{CauseKey: "workflow_delay", Action: "Escalate to workflow owner", Urgency: models.UrgencyMedium, Rationale: "Step duration exceeded its SLA.", BaseRule: 0.70},
		{CauseKey: "missing_step", Action: "Halt workflow and page on-call", Urgency: models.UrgencyCritical, Rationale: "An expected step never ran.", BaseRule: 0.90},
		{CauseKey: "sequence_violation", Action: "Freeze workflow instance for review", Urgency: models.UrgencyHigh, Rationale: "Steps executed out of order.", BaseRule: 0.80},
		{CauseKey: "baseline_deviation", Action: "Open an investigation ticket", Urgency: models.UrgencyMedium, Rationale: "Metric deviated sharply from its learned baseline.", BaseRule: 0.60},
		{CauseKey: "silent_violation", Action: "Review access control policy", Urgency: models.UrgencyHigh, Rationale: "A policy-violating operation completed without error.", BaseRule: 0.75},
		{CauseKey: "explicit_violation", Action: "Notify compliance owner", Urgency: models.UrgencyMedium, Rationale: "A policy-violating operation was blocked.", BaseRule: 0.70},
		{CauseKey: "code_churn_risk", Action: "Require additional review on the change", Urgency: models.UrgencyMedium, Rationale: "High churn correlates with post-deploy incidents.", BaseRule: 0.55},
		{CauseKey: "code_coverage_regression", Action: "Block deploy pending test coverage", Urgency: models.UrgencyHigh, Rationale: "Coverage regressed below the required floor.", BaseRule: 0.75},
		{CauseKey: "code_hotspot_overlap", Action: "Pair-review the change with the hotspot owner", Urgency: models.UrgencyMedium, Rationale: "Change touches a file with a history of defects.", BaseRule: 0.60},
	}
}
