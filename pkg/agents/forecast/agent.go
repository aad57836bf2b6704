// Package forecast projects a near-term risk state per affected entity
// from the cycle's detection output. Policy violations weigh double:
// a compliance breach degrades an entity faster than an anomaly.
package forecast

import (
	"context"
	"sort"
	"sync"

	"github.com/coglab/cognition-engine/pkg/agents"
	"github.com/coglab/cognition-engine/pkg/models"
)

// Agent is the Phase-2 risk forecaster. It reads the anomalies and policy
// hits appended before the Phase-1 barrier; the previous projection per
// entity becomes the next cycle's current state.
type Agent struct {
	mu        sync.Mutex
	lastState map[string]models.RiskState
}

func New() *Agent {
	return &Agent{lastState: make(map[string]models.RiskState)}
}

func (a *Agent) Name() string { return "forecast" }

type entityIssues struct {
	anomalies  int
	violations int
	evidence   map[string]struct{}
}

func (a *Agent) Run(ctx context.Context, cycleID string, snap agents.Snapshot, board agents.Board) error {
	anomalies, err := board.Anomalies(cycleID)
	if err != nil {
		return err
	}
	hits, err := board.PolicyHits(cycleID)
	if err != nil {
		return err
	}

	issues := make(map[string]*entityIssues)
	collect := func(entity string) *entityIssues {
		ei := issues[entity]
		if ei == nil {
			ei = &entityIssues{evidence: make(map[string]struct{})}
			issues[entity] = ei
		}
		return ei
	}

	for _, an := range anomalies {
		ei := collect(an.Entity)
		ei.anomalies++
		for _, id := range an.EvidenceIDs {
			ei.evidence[id] = struct{}{}
		}
	}
	for _, h := range hits {
		ei := collect(hitEntity(h, snap))
		ei.violations++
		for _, id := range h.EvidenceIDs {
			ei.evidence[id] = struct{}{}
		}
	}

	// The system-wide aggregate rolls every finding together: compliance
	// breaches on one resource and anomalies on another still degrade the
	// platform as a whole.
	if len(issues) > 0 {
		system := &entityIssues{evidence: make(map[string]struct{})}
		for _, an := range anomalies {
			system.anomalies++
			for _, id := range an.EvidenceIDs {
				system.evidence[id] = struct{}{}
			}
		}
		for _, h := range hits {
			system.violations++
			for _, id := range h.EvidenceIDs {
				system.evidence[id] = struct{}{}
			}
		}
		issues["system"] = system
	}

	entities := make([]string, 0, len(issues))
	for entity := range issues {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			return err
		}
		ei := issues[entity]
		signal := a.project(entity, ei)
		if err := board.AppendRiskSignal(ctx, cycleID, a.Name(), signal); err != nil {
			return err
		}
		a.mu.Lock()
		a.lastState[entity] = signal.ProjectedState
		a.mu.Unlock()
	}
	return nil
}

func (a *Agent) project(entity string, ei *entityIssues) models.RiskSignal {
	total := ei.anomalies + 2*ei.violations

	var projected models.RiskState
	switch {
	case total == 0:
		projected = models.RiskNormal
	case total == 1:
		projected = models.RiskDegraded
	case total <= 3:
		projected = models.RiskAtRisk
	case total <= 5:
		projected = models.RiskViolation
	default:
		projected = models.RiskIncident
	}

	var horizon string
	switch {
	case total <= 2:
		horizon = "15-30 min"
	case total <= 4:
		horizon = "10-15 min"
	default:
		horizon = "5-10 min"
	}

	confidence := 0.50 +
		min(0.30, 0.1*float64(ei.anomalies)) +
		min(0.20, 0.1*float64(ei.violations))
	if confidence > 0.95 {
		confidence = 0.95
	}

	evidence := make([]string, 0, len(ei.evidence))
	for id := range ei.evidence {
		evidence = append(evidence, id)
	}
	sort.Strings(evidence)

	a.mu.Lock()
	current, known := a.lastState[entity]
	a.mu.Unlock()
	if !known {
		current = models.RiskNormal
	}

	return models.RiskSignal{
		Entity:          entity,
		CurrentState:    current,
		ProjectedState:  projected,
		Confidence:      confidence,
		TimeHorizon:     horizon,
		EvidenceIDs:     evidence,
		AnomalyCount:    ei.anomalies,
		PolicyViolCount: ei.violations,
	}
}

// hitEntity resolves the entity a policy hit affects: the event's
// resource, falling back to its workflow, then its actor.
func hitEntity(h models.PolicyHit, snap agents.Snapshot) string {
	e, ok := snap.EventByID(h.EventID)
	if !ok {
		return "unattributed"
	}
	switch {
	case e.Resource != "":
		return e.Resource
	case e.WorkflowID != "":
		return e.WorkflowID
	case e.Actor != "":
		return e.Actor
	}
	return "unattributed"
}
