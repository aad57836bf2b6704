// Package causal infers cause→effect links between the cycle's findings.
// Matching is pattern-based against a known table, bounded by a temporal
// window with the cause strictly before the effect; confidence decays
// with temporal distance.
package causal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/coglab/cognition-engine/pkg/agents"
	"github.com/coglab/cognition-engine/pkg/models"
)

// pattern is one known cause→effect pairing with its base confidence.
type pattern struct {
	causeType  string
	effectType string
	base       float64
}

// effectRiskState marks patterns whose effect is a projected risk state
// rather than an anomaly or policy hit.
const effectRiskState = "AT_RISK"

// knownPatterns is the static inference table. Resource pressure delays
// workflows; a skipped step surfaces as a silent violation; ordering
// breaches precede at-risk projections.
var knownPatterns = []pattern{
	{models.AnomalySustainedResourceCritical, models.AnomalyWorkflowDelay, 0.85},
	{models.AnomalySustainedResourceWarning, models.AnomalyWorkflowDelay, 0.70},
	{models.AnomalyResourceDrift, models.AnomalyWorkflowDelay, 0.60},
	{models.AnomalyMissingStep, string(models.ViolationSilent), 0.90},
	{models.AnomalySequenceViolation, effectRiskState, 0.75},
}

// candidate is a normalized cause or effect with its timestamp and the
// evidence backing it.
type candidate struct {
	kind      string // anomaly type, violation type, or risk state
	id        string
	timestamp time.Time
	evidence  []string
}

// Agent is the Phase-3 causal detector.
type Agent struct {
	window time.Duration
}

// New builds the agent with the temporal matching window.
func New(windowSeconds float64) *Agent {
	return &Agent{window: time.Duration(windowSeconds * float64(time.Second))}
}

func (a *Agent) Name() string { return "causal" }

func (a *Agent) Run(ctx context.Context, cycleID string, snap agents.Snapshot, board agents.Board) error {
	anomalies, err := board.Anomalies(cycleID)
	if err != nil {
		return err
	}
	hits, err := board.PolicyHits(cycleID)
	if err != nil {
		return err
	}
	signals, err := board.RiskSignals(cycleID)
	if err != nil {
		return err
	}

	causes := make([]candidate, 0, len(anomalies))
	var effects []candidate
	for _, an := range anomalies {
		c := candidate{kind: an.Type, id: an.AnomalyID, timestamp: an.Timestamp, evidence: an.EvidenceIDs}
		causes = append(causes, c)
		if an.Type == models.AnomalyWorkflowDelay {
			effects = append(effects, c)
		}
	}
	for _, h := range hits {
		effects = append(effects, candidate{
			kind:      string(h.ViolationType),
			id:        h.HitID,
			timestamp: h.Timestamp,
			evidence:  h.EvidenceIDs,
		})
	}
	for _, s := range signals {
		if s.ProjectedState != models.RiskAtRisk {
			continue
		}
		// A projection has no timestamp of its own; it inherits the
		// latest moment of its evidence trail.
		ts := latestEvidenceTime(s.EvidenceIDs, anomalies, snap)
		effects = append(effects, candidate{
			kind:      effectRiskState,
			id:        "risk:" + s.Entity,
			timestamp: ts,
			evidence:  s.EvidenceIDs,
		})
	}

	sort.Slice(effects, func(i, j int) bool { return effects[i].id < effects[j].id })

	for _, effect := range effects {
		if err := ctx.Err(); err != nil {
			return err
		}
		link, found := a.bestLink(effect, causes)
		if !found {
			continue
		}
		if err := board.AppendCausalLink(ctx, cycleID, a.Name(), link); err != nil {
			return err
		}
	}
	return nil
}

// bestLink matches one effect against all cause candidates, keeping the
// highest-confidence link; ties break toward the smaller temporal
// distance.
func (a *Agent) bestLink(effect candidate, causes []candidate) (models.CausalLink, bool) {
	var (
		best     models.CausalLink
		bestDist time.Duration
		found    bool
	)
	for _, p := range knownPatterns {
		if p.effectType != effect.kind {
			continue
		}
		for _, cause := range causes {
			if cause.kind != p.causeType || cause.id == effect.id {
				continue
			}
			dist := effect.timestamp.Sub(cause.timestamp)
			if dist <= 0 || dist > a.window {
				continue
			}
			confidence := p.base * (1 - dist.Seconds()/a.window.Seconds()*0.3)
			if found && (confidence < best.Confidence ||
				(confidence == best.Confidence && dist >= bestDist)) {
				continue
			}
			evidence := mergeEvidence(cause.evidence, effect.evidence)
			best = models.CausalLink{
				LinkID:                  models.DeterministicID("causal_link", cause.id, effect.id),
				CauseType:               p.causeType,
				EffectType:              p.effectType,
				Confidence:              confidence,
				TemporalDistanceSeconds: dist.Seconds(),
				Reasoning: fmt.Sprintf("%s preceded %s by %.0fs, within the %.0fs causal window",
					p.causeType, p.effectType, dist.Seconds(), a.window.Seconds()),
				EvidenceIDs: evidence,
			}
			bestDist = dist
			found = true
		}
	}
	return best, found
}

func mergeEvidence(cause, effect []string) []string {
	set := make(map[string]struct{}, len(cause)+len(effect))
	for _, id := range cause {
		set[id] = struct{}{}
	}
	for _, id := range effect {
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// latestEvidenceTime finds the newest timestamp among the evidence ids,
// checking anomalies first, then the snapshot's raw records.
func latestEvidenceTime(evidenceIDs []string, anomalies []models.Anomaly, snap agents.Snapshot) time.Time {
	var latest time.Time
	ids := make(map[string]struct{}, len(evidenceIDs))
	for _, id := range evidenceIDs {
		ids[id] = struct{}{}
	}
	for _, an := range anomalies {
		for _, id := range an.EvidenceIDs {
			if _, ok := ids[id]; ok && an.Timestamp.After(latest) {
				latest = an.Timestamp
			}
		}
	}
	for _, e := range snap.Events {
		if _, ok := ids[e.EventID]; ok && e.Timestamp.After(latest) {
			latest = e.Timestamp
		}
	}
	for _, m := range snap.Metrics {
		if _, ok := ids[m.MetricID]; ok && m.Timestamp.After(latest) {
			latest = m.Timestamp
		}
	}
	if latest.IsZero() {
		latest = snap.TakenAt
	}
	return latest
}
