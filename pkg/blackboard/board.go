// Package blackboard implements the per-cycle artifact store: section
// ownership, append-only sections while a cycle is open, and immutable
// content-hashed artifacts after seal.
package blackboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coglab/cognition-engine/pkg/guard"
	"github.com/coglab/cognition-engine/pkg/models"
	"github.com/coglab/cognition-engine/pkg/store"
)

// Section names. Each open cycle records which agent owns which section;
// an append from a non-owning agent fails with ErrSectionViolation.
const (
	SectionAnomalies       = "anomalies"
	SectionPolicyHits      = "policy_hits"
	SectionRiskSignals     = "risk_signals"
	SectionCausalLinks     = "causal_links"
	SectionSeverityScores  = "severity_scores"
	SectionRecommendations = "recommendations"
	SectionRiskIndex       = "risk_index"
)

// defaultOwnership maps each section to the agents allowed to append to
// it. The anomalies section is shared by the Phase-1 detection agents;
// every other section has a single owner.
func defaultOwnership() map[string]map[string]bool {
	return map[string]map[string]bool{
		SectionAnomalies:       {"workflow": true, "resource": true, "baseline": true, "code": true},
		SectionPolicyHits:      {"compliance": true},
		SectionRiskSignals:     {"forecast": true},
		SectionCausalLinks:     {"causal": true},
		SectionSeverityScores:  {"severity": true},
		SectionRecommendations: {"recommendation": true},
		SectionRiskIndex:       {"risk_index": true},
	}
}

type openCycle struct {
	mu    sync.Mutex
	cycle *models.Cycle
}

// Blackboard owns Cycle objects exclusively. Open cycles live in memory;
// sealed cycles are persisted through the CycleLog and never mutate again.
type Blackboard struct {
	log       store.CycleLog
	obs       store.ObservationStore
	ownership map[string]map[string]bool
	now       func() time.Time

	mu   sync.RWMutex
	open map[string]*openCycle

	// artifactIDs holds finding ids from sealed cycles, so later cycles
	// can cite prior-cycle artifacts as evidence.
	artMu       sync.RWMutex
	artifactIDs map[string]struct{}
}

// New creates a Blackboard persisting sealed cycles through log and
// resolving event/metric evidence against obs.
func New(log store.CycleLog, obs store.ObservationStore) *Blackboard {
	b := &Blackboard{
		log:         log,
		obs:         obs,
		ownership:   defaultOwnership(),
		now:         time.Now,
		open:        make(map[string]*openCycle),
		artifactIDs: make(map[string]struct{}),
	}
	return b
}

// WithClock overrides the wall clock, for deterministic tests.
func (b *Blackboard) WithClock(now func() time.Time) *Blackboard {
	b.now = now
	return b
}

// StartCycle creates a new cycle in OPEN state and returns its id.
func (b *Blackboard) StartCycle(_ context.Context) string {
	c := &models.Cycle{
		CycleID:   uuid.New().String(),
		State:     models.CycleOpen,
		StartedAt: b.now().UTC(),
	}
	b.mu.Lock()
	b.open[c.CycleID] = &openCycle{cycle: c}
	b.mu.Unlock()
	return c.CycleID
}

func (b *Blackboard) get(cycleID string) (*openCycle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	oc, ok := b.open[cycleID]
	if !ok {
		return nil, ErrUnknownCycle
	}
	return oc, nil
}

func (b *Blackboard) checkAppend(ctx context.Context, oc *openCycle, section, agent string, evidenceIDs []string) error {
	if oc.cycle.State == models.CycleSealed {
		return ErrCycleSealed
	}
	allowed, ok := b.ownership[section]
	if !ok || !allowed[agent] {
		return fmt.Errorf("%w: agent %q may not append to %s", ErrSectionViolation, agent, section)
	}
	if v := guard.CheckEvidence(agent, evidenceIDs); v != nil {
		guard.Fatal(v)
		return v
	}
	for _, id := range evidenceIDs {
		if err := b.resolveEvidence(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (b *Blackboard) resolveEvidence(ctx context.Context, id string) error {
	ok, err := b.obs.HasRecord(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	b.artMu.RLock()
	_, ok = b.artifactIDs[id]
	b.artMu.RUnlock()
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrEvidenceUnresolved, id)
}

// AppendAnomaly appends a detection finding to the anomalies section.
func (b *Blackboard) AppendAnomaly(ctx context.Context, cycleID, agent string, a models.Anomaly) error {
	oc, err := b.get(cycleID)
	if err != nil {
		return err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if err := b.checkAppend(ctx, oc, SectionAnomalies, agent, a.EvidenceIDs); err != nil {
		return err
	}
	oc.cycle.Anomalies = append(oc.cycle.Anomalies, a)
	return nil
}

// AppendPolicyHit appends a compliance finding, deduplicating by
// (policy_id, event_id) within the cycle.
func (b *Blackboard) AppendPolicyHit(ctx context.Context, cycleID, agent string, h models.PolicyHit) error {
	oc, err := b.get(cycleID)
	if err != nil {
		return err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if err := b.checkAppend(ctx, oc, SectionPolicyHits, agent, h.EvidenceIDs); err != nil {
		return err
	}
	for _, existing := range oc.cycle.PolicyHits {
		if existing.DedupeKey() == h.DedupeKey() {
			return nil
		}
	}
	oc.cycle.PolicyHits = append(oc.cycle.PolicyHits, h)
	return nil
}

func (b *Blackboard) AppendRiskSignal(ctx context.Context, cycleID, agent string, r models.RiskSignal) error {
	oc, err := b.get(cycleID)
	if err != nil {
		return err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if err := b.checkAppend(ctx, oc, SectionRiskSignals, agent, r.EvidenceIDs); err != nil {
		return err
	}
	oc.cycle.RiskSignals = append(oc.cycle.RiskSignals, r)
	return nil
}

func (b *Blackboard) AppendCausalLink(ctx context.Context, cycleID, agent string, l models.CausalLink) error {
	oc, err := b.get(cycleID)
	if err != nil {
		return err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if err := b.checkAppend(ctx, oc, SectionCausalLinks, agent, l.EvidenceIDs); err != nil {
		return err
	}
	oc.cycle.CausalLinks = append(oc.cycle.CausalLinks, l)
	return nil
}

// AppendSeverityScore appends a scoring result. Severity scores are
// derived values, not findings, so they carry no evidence of their own.
func (b *Blackboard) AppendSeverityScore(_ context.Context, cycleID, agent string, s models.SeverityScore) error {
	oc, err := b.get(cycleID)
	if err != nil {
		return err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if oc.cycle.State == models.CycleSealed {
		return ErrCycleSealed
	}
	if allowed := b.ownership[SectionSeverityScores]; !allowed[agent] {
		return fmt.Errorf("%w: agent %q may not append to %s", ErrSectionViolation, agent, SectionSeverityScores)
	}
	oc.cycle.SeverityScores = append(oc.cycle.SeverityScores, s)
	return nil
}

func (b *Blackboard) AppendRecommendation(ctx context.Context, cycleID, agent string, r models.Recommendation) error {
	oc, err := b.get(cycleID)
	if err != nil {
		return err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if err := b.checkAppend(ctx, oc, SectionRecommendations, agent, r.EvidenceIDs); err != nil {
		return err
	}
	oc.cycle.Recommendations = append(oc.cycle.Recommendations, r)
	return nil
}

// SetRiskIndex records the per-cycle System Risk Index.
func (b *Blackboard) SetRiskIndex(_ context.Context, cycleID, agent string, idx models.RiskIndex) error {
	oc, err := b.get(cycleID)
	if err != nil {
		return err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if oc.cycle.State == models.CycleSealed {
		return ErrCycleSealed
	}
	if allowed := b.ownership[SectionRiskIndex]; !allowed[agent] {
		return fmt.Errorf("%w: agent %q may not append to %s", ErrSectionViolation, agent, SectionRiskIndex)
	}
	oc.cycle.RiskIndex = &idx
	return nil
}

// RecordFailure annotates the cycle with an agent failure and marks it
// degraded. Never fatal: a cycle may seal with partial detection.
func (b *Blackboard) RecordFailure(_ context.Context, cycleID string, f models.PhaseFailure) error {
	oc, err := b.get(cycleID)
	if err != nil {
		return err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if oc.cycle.State == models.CycleSealed {
		return ErrCycleSealed
	}
	oc.cycle.Failures = append(oc.cycle.Failures, f)
	oc.cycle.Degraded = true
	return nil
}

// Anomalies returns a copy of the cycle's anomalies section, for the
// Phase-2/3 agents and the scoring engines.
func (b *Blackboard) Anomalies(cycleID string) ([]models.Anomaly, error) {
	oc, err := b.get(cycleID)
	if err != nil {
		return nil, err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	out := make([]models.Anomaly, len(oc.cycle.Anomalies))
	copy(out, oc.cycle.Anomalies)
	return out, nil
}

func (b *Blackboard) PolicyHits(cycleID string) ([]models.PolicyHit, error) {
	oc, err := b.get(cycleID)
	if err != nil {
		return nil, err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	out := make([]models.PolicyHit, len(oc.cycle.PolicyHits))
	copy(out, oc.cycle.PolicyHits)
	return out, nil
}

func (b *Blackboard) RiskSignals(cycleID string) ([]models.RiskSignal, error) {
	oc, err := b.get(cycleID)
	if err != nil {
		return nil, err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	out := make([]models.RiskSignal, len(oc.cycle.RiskSignals))
	copy(out, oc.cycle.RiskSignals)
	return out, nil
}

func (b *Blackboard) CausalLinks(cycleID string) ([]models.CausalLink, error) {
	oc, err := b.get(cycleID)
	if err != nil {
		return nil, err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	out := make([]models.CausalLink, len(oc.cycle.CausalLinks))
	copy(out, oc.cycle.CausalLinks)
	return out, nil
}

func (b *Blackboard) Recommendations(cycleID string) ([]models.Recommendation, error) {
	oc, err := b.get(cycleID)
	if err != nil {
		return nil, err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	out := make([]models.Recommendation, len(oc.cycle.Recommendations))
	copy(out, oc.cycle.Recommendations)
	return out, nil
}

func (b *Blackboard) SeverityScores(cycleID string) ([]models.SeverityScore, error) {
	oc, err := b.get(cycleID)
	if err != nil {
		return nil, err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	out := make([]models.SeverityScore, len(oc.cycle.SeverityScores))
	copy(out, oc.cycle.SeverityScores)
	return out, nil
}

// CompleteCycle seals the cycle: sections are sorted into their canonical
// order, the content hash is computed, and the artifact is persisted. The
// OPEN → SEALED transition happens exactly once; a second call returns
// ErrCycleSealed.
func (b *Blackboard) CompleteCycle(ctx context.Context, cycleID string) (*models.Cycle, error) {
	oc, err := b.get(cycleID)
	if err != nil {
		return nil, err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()

	if oc.cycle.State == models.CycleSealed {
		return nil, ErrCycleSealed
	}
	oc.cycle.State = models.CycleSealed
	completed := b.now().UTC()
	oc.cycle.CompletedAt = &completed

	sortSections(oc.cycle)

	sha, err := ComputeSHA(oc.cycle)
	if err != nil {
		return nil, err
	}
	oc.cycle.CycleSHA256 = sha

	payload, err := json.Marshal(oc.cycle)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sealed cycle: %w", err)
	}

	if err := b.log.AppendSealed(ctx, *oc.cycle, payload); err != nil {
		return nil, err
	}

	b.registerArtifacts(oc.cycle)

	b.mu.Lock()
	delete(b.open, cycleID)
	b.mu.Unlock()

	slog.Info("cycle sealed",
		"cycle_id", cycleID,
		"anomalies", len(oc.cycle.Anomalies),
		"policy_hits", len(oc.cycle.PolicyHits),
		"degraded", oc.cycle.Degraded,
		"sha256", sha)

	sealed := *oc.cycle
	return &sealed, nil
}

func (b *Blackboard) registerArtifacts(c *models.Cycle) {
	b.artMu.Lock()
	defer b.artMu.Unlock()
	for _, a := range c.Anomalies {
		b.artifactIDs[a.AnomalyID] = struct{}{}
	}
	for _, h := range c.PolicyHits {
		b.artifactIDs[h.HitID] = struct{}{}
	}
	for _, l := range c.CausalLinks {
		b.artifactIDs[l.LinkID] = struct{}{}
	}
	for _, r := range c.Recommendations {
		b.artifactIDs[r.RecID] = struct{}{}
	}
}

// sortSections orders every section by content-stable keys so the sealed
// artifact does not depend on Phase-1 append interleaving.
func sortSections(c *models.Cycle) {
	sort.Slice(c.Anomalies, func(i, j int) bool {
		a, b := c.Anomalies[i], c.Anomalies[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.AnomalyID < b.AnomalyID
	})
	sort.Slice(c.PolicyHits, func(i, j int) bool {
		a, b := c.PolicyHits[i], c.PolicyHits[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.DedupeKey() < b.DedupeKey()
	})
	sort.Slice(c.RiskSignals, func(i, j int) bool {
		return c.RiskSignals[i].Entity < c.RiskSignals[j].Entity
	})
	sort.Slice(c.CausalLinks, func(i, j int) bool {
		return c.CausalLinks[i].LinkID < c.CausalLinks[j].LinkID
	})
	sort.Slice(c.SeverityScores, func(i, j int) bool {
		return c.SeverityScores[i].TargetID < c.SeverityScores[j].TargetID
	})
	sort.Slice(c.Recommendations, func(i, j int) bool {
		return c.Recommendations[i].RecID < c.Recommendations[j].RecID
	})
}

// LoadArtifacts re-registers finding ids from already-sealed cycles so
// prior-cycle artifact evidence keeps resolving after a restart. Run once
// at startup.
func (b *Blackboard) LoadArtifacts(ctx context.Context, n int) error {
	cycles, err := b.log.RecentCycles(ctx, n)
	if err != nil {
		return err
	}
	for i := range cycles {
		b.registerArtifacts(&cycles[i])
	}
	return nil
}

// GetCycle returns a sealed cycle and its byte-identical stored payload.
func (b *Blackboard) GetCycle(ctx context.Context, cycleID string) (models.Cycle, []byte, error) {
	c, payload, err := b.log.GetCycle(ctx, cycleID)
	if err != nil {
		return models.Cycle{}, nil, err
	}
	return c, payload, nil
}

// RecentCycles returns the n most recently started sealed cycles, newest
// first.
func (b *Blackboard) RecentCycles(ctx context.Context, n int) ([]models.Cycle, error) {
	return b.log.RecentCycles(ctx, n)
}
