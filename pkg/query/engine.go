// Package query answers natural-language questions over recent sealed
// cycles. Answers are templated compositions of retrieved evidence; when
// retrieval comes back empty the engine refuses to claim anything.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/coglab/cognition-engine/pkg/models"
	"github.com/coglab/cognition-engine/pkg/store"
)

// retrievalDepth is how many sealed cycles back evidence is drawn from.
const retrievalDepth = 5

// topEvidence bounds the confidence average to the strongest items.
const topEvidence = 10

// Engine retrieves evidence from the sealed-cycles log. It holds no
// mutable state; every answer is recomputed from the log.
type Engine struct {
	cycles store.CycleLog
}

func New(cycles store.CycleLog) *Engine {
	return &Engine{cycles: cycles}
}

// intentKeywords drives classification. The first intent whose keyword
// list matches wins; order encodes specificity.
var intentKeywords = []struct {
	intent   models.QueryIntent
	keywords []string
}{
	{models.IntentCausal, []string{"why", "cause", "caused", "because", "root cause", "led to"}},
	{models.IntentPrediction, []string{"will", "predict", "forecast", "next", "going to", "expect"}},
	{models.IntentCompliance, []string{"policy", "compliance", "violation", "audit", "approval"}},
	{models.IntentWorkflow, []string{"workflow", "step", "pipeline", "sla", "delay"}},
	{models.IntentResource, []string{"cpu", "memory", "latency", "resource", "capacity", "saturation"}},
	{models.IntentRiskStatus, []string{"risk", "status", "health", "state", "how are"}},
}

// Classify maps a question to one of the seven intents.
func Classify(question string) models.QueryIntent {
	q := strings.ToLower(question)
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(q, kw) {
				return entry.intent
			}
		}
	}
	return models.IntentGeneral
}

// Answer classifies the question, retrieves matching evidence from the
// last sealed cycles, and composes a templated answer.
func (e *Engine) Answer(ctx context.Context, question string) (models.QueryAnswer, error) {
	intent := Classify(question)

	cycles, err := e.cycles.RecentCycles(ctx, retrievalDepth)
	if err != nil {
		return models.QueryAnswer{}, err
	}

	evidence := retrieve(intent, cycles)
	if len(evidence) == 0 {
		return models.QueryAnswer{
			Intent:      intent,
			Evidence:    []models.EvidenceItem{},
			Confidence:  0,
			Uncertainty: "no evidence",
		}, nil
	}

	sort.SliceStable(evidence, func(i, j int) bool {
		return evidence[i].Confidence > evidence[j].Confidence
	})

	return models.QueryAnswer{
		Intent:     intent,
		Answer:     compose(intent, evidence),
		Evidence:   evidence,
		Confidence: confidence(evidence),
	}, nil
}

// retrieve pulls the evidence items relevant to the intent out of the
// sealed cycles.
func retrieve(intent models.QueryIntent, cycles []models.Cycle) []models.EvidenceItem {
	var out []models.EvidenceItem
	for _, c := range cycles {
		switch intent {
		case models.IntentCausal:
			for _, l := range c.CausalLinks {
				out = append(out, models.EvidenceItem{
					Kind:       "causal_link", ID: l.LinkID, CycleID: c.CycleID,
					Confidence: l.Confidence, Summary: l.Reasoning,
				})
			}
		case models.IntentCompliance:
			for _, h := range c.PolicyHits {
				out = append(out, models.EvidenceItem{
					Kind:       "policy_hit", ID: h.HitID, CycleID: c.CycleID,
					Confidence: 1.0,
					Summary:    fmt.Sprintf("%s violation of %s", h.ViolationType, h.PolicyID),
				})
			}
		case models.IntentPrediction, models.IntentRiskStatus:
			for _, r := range c.RiskSignals {
				out = append(out, models.EvidenceItem{
					Kind:       "risk_signal", ID: "risk:" + r.Entity, CycleID: c.CycleID,
					Confidence: r.Confidence,
					Summary: fmt.Sprintf("%s projected %s within %s",
						r.Entity, r.ProjectedState, r.TimeHorizon),
				})
			}
		case models.IntentWorkflow:
			out = append(out, anomalyEvidence(c, isWorkflowAnomaly)...)
		case models.IntentResource:
			out = append(out, anomalyEvidence(c, isResourceAnomaly)...)
		case models.IntentGeneral:
			out = append(out, anomalyEvidence(c, func(string) bool { return true })...)
		}
	}
	return out
}

func anomalyEvidence(c models.Cycle, match func(anomalyType string) bool) []models.EvidenceItem {
	var out []models.EvidenceItem
	for _, a := range c.Anomalies {
		if !match(a.Type) {
			continue
		}
		out = append(out, models.EvidenceItem{
			Kind:       "anomaly", ID: a.AnomalyID, CycleID: c.CycleID,
			Confidence: a.Confidence,
			Summary:    fmt.Sprintf("%s on %s: %s", a.Type, a.Entity, a.Description),
		})
	}
	return out
}

func isWorkflowAnomaly(t string) bool {
	switch t {
	case models.AnomalyWorkflowDelay, models.AnomalyMissingStep, models.AnomalySequenceViolation:
		return true
	}
	return false
}

func isResourceAnomaly(t string) bool {
	switch t {
	case models.AnomalySustainedResourceCritical, models.AnomalySustainedResourceWarning,
		models.AnomalyResourceDrift, models.AnomalyBaselineDeviation:
		return true
	}
	return false
}

// confidence averages the strongest evidence and adds a small volume
// bonus for corroboration beyond three items.
func confidence(evidence []models.EvidenceItem) float64 {
	n := len(evidence)
	if n > topEvidence {
		n = topEvidence
	}
	var sum float64
	for _, item := range evidence[:n] {
		c := item.Confidence
		if c < 0 {
			c = 0
		}
		if c > 1 {
			c = 1
		}
		sum += c
	}
	mean := sum / float64(n)

	bonus := 0.01 * float64(len(evidence)-3)
	if bonus < 0 {
		bonus = 0
	}
	if bonus > 0.08 {
		bonus = 0.08
	}

	total := mean + bonus
	if total > 1 {
		total = 1
	}
	return total
}

// compose renders the templated answer body for the intent.
func compose(intent models.QueryIntent, evidence []models.EvidenceItem) string {
	var b strings.Builder
	switch intent {
	case models.IntentCausal:
		b.WriteString("Most likely causal chains, strongest first:")
	case models.IntentCompliance:
		b.WriteString("Policy findings in recent cycles:")
	case models.IntentPrediction:
		b.WriteString("Projected risk states:")
	case models.IntentRiskStatus:
		b.WriteString("Current risk picture:")
	case models.IntentWorkflow:
		b.WriteString("Workflow findings:")
	case models.IntentResource:
		b.WriteString("Resource findings:")
	default:
		b.WriteString("Findings across recent cycles:")
	}
	limit := len(evidence)
	if limit > 5 {
		limit = 5
	}
	for _, item := range evidence[:limit] {
		fmt.Fprintf(&b, "\n- %s (confidence %.2f)", item.Summary, item.Confidence)
	}
	return b.String()
}
