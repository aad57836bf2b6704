package models

import "time"

// CycleState is the cycle's two-state machine: OPEN → SEALED, no other
// transitions.
type CycleState string

const (
	CycleOpen   CycleState = "OPEN"
	CycleSealed CycleState = "SEALED"
)

// PhaseFailure records that a Phase-1 agent, or a Phase-2/3 agent, did not
// complete within its deadline or returned a non-guard error. Recorded as a
// cycle annotation; never fatal.
type PhaseFailure struct {
	Phase  string `json:"phase"` // "phase1", "forecast", "causal", "severity", "recommendation", "risk_index"
	Agent  string `json:"agent"`
	Reason string `json:"reason"`
}

// Cycle is the append-only-until-sealed artifact the Blackboard exclusively
// owns. Once CompletedAt is set, content is immutable and CycleSHA256 is
// stable.
type Cycle struct {
	CycleID     string     `json:"cycle_id"`
	State       CycleState `json:"state"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Anomalies       []Anomaly        `json:"anomalies"`
	PolicyHits      []PolicyHit      `json:"policy_hits"`
	RiskSignals     []RiskSignal     `json:"risk_signals"`
	CausalLinks     []CausalLink     `json:"causal_links"`
	SeverityScores  []SeverityScore  `json:"severity_scores"`
	Recommendations []Recommendation `json:"recommendations"`
	RiskIndex       *RiskIndex       `json:"risk_index,omitempty"`

	Failures []PhaseFailure `json:"failures,omitempty"`
	Degraded bool           `json:"degraded"`

	CycleSHA256 string `json:"cycle_sha256,omitempty"`
}

// CycleSummary is the small projection returned by POST /analysis/cycle —
// counts per section plus the degraded flag, distinct from the full sealed
// payload returned by the audit endpoints.
type CycleSummary struct {
	CycleID             string `json:"cycle_id"`
	AnomalyCount        int    `json:"anomaly_count"`
	PolicyHitCount      int    `json:"policy_hit_count"`
	RiskSignalCount     int    `json:"risk_signal_count"`
	CausalLinkCount     int    `json:"causal_link_count"`
	SeverityScoreCount  int    `json:"severity_score_count"`
	RecommendationCount int    `json:"recommendation_count"`
	Degraded            bool   `json:"degraded"`
}

// Summary projects a sealed or in-flight Cycle into its CycleSummary.
func (c *Cycle) Summary() CycleSummary {
	return CycleSummary{
		CycleID:             c.CycleID,
		AnomalyCount:        len(c.Anomalies),
		PolicyHitCount:      len(c.PolicyHits),
		RiskSignalCount:     len(c.RiskSignals),
		CausalLinkCount:     len(c.CausalLinks),
		SeverityScoreCount:  len(c.SeverityScores),
		RecommendationCount: len(c.Recommendations),
		Degraded:            c.Degraded,
	}
}
