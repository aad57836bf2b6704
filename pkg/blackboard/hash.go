package blackboard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/coglab/cognition-engine/pkg/models"
)

// hashableContent is the portion of a cycle the content hash covers: the
// findings themselves, in their sealed (sorted) order. Cycle identity and
// wall-clock fields stay outside the hash, so two cycles run over the same
// snapshot produce the same digest.
type hashableContent struct {
	Anomalies       []models.Anomaly        `json:"anomalies"`
	PolicyHits      []models.PolicyHit      `json:"policy_hits"`
	RiskSignals     []models.RiskSignal     `json:"risk_signals"`
	CausalLinks     []models.CausalLink     `json:"causal_links"`
	SeverityScores  []models.SeverityScore  `json:"severity_scores"`
	Recommendations []models.Recommendation `json:"recommendations"`
	RiskIndex       *models.RiskIndex       `json:"risk_index"`
}

// ComputeSHA computes the content hash of a cycle's sections. Struct
// fields marshal in declaration order and map keys marshal sorted, so the
// encoding is canonical.
func ComputeSHA(c *models.Cycle) (string, error) {
	content := hashableContent{
		Anomalies:       c.Anomalies,
		PolicyHits:      c.PolicyHits,
		RiskSignals:     c.RiskSignals,
		CausalLinks:     c.CausalLinks,
		SeverityScores:  c.SeverityScores,
		Recommendations: c.Recommendations,
		RiskIndex:       c.RiskIndex,
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cycle content: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// VerifySHA recomputes the content hash of a stored cycle payload and
// compares it against the recorded digest. Used by the audit endpoint.
func VerifySHA(payload []byte) (bool, error) {
	var c models.Cycle
	if err := json.Unmarshal(payload, &c); err != nil {
		return false, fmt.Errorf("failed to unmarshal cycle payload: %w", err)
	}
	recomputed, err := ComputeSHA(&c)
	if err != nil {
		return false, err
	}
	return recomputed == c.CycleSHA256, nil
}
