// Package coordinator drives the reasoning cycle: snapshot, Phase-1
// fan-out behind a barrier, sequential forecast and causal phases, the
// scoring engines, and the seal. Agent failures degrade the cycle, they
// never abort it.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coglab/cognition-engine/pkg/agents"
	"github.com/coglab/cognition-engine/pkg/blackboard"
	"github.com/coglab/cognition-engine/pkg/config"
	"github.com/coglab/cognition-engine/pkg/guard"
	"github.com/coglab/cognition-engine/pkg/models"
	"github.com/coglab/cognition-engine/pkg/scoring"
	"github.com/coglab/cognition-engine/pkg/store"
)

// Notifier publishes the cycle-sealed notification. Downstream rendering
// (UI, chat) subscribes outside the core.
type Notifier interface {
	Publish(ctx context.Context, eventType string, payload map[string]any)
}

// Coordinator owns the cycle schedule for one process. RunCycle is safe
// to call concurrently with ingestion; the two share nothing but the
// store's ordered-append interface.
type Coordinator struct {
	phase    config.PhaseConfig
	obs      store.ObservationStore
	board    *blackboard.Blackboard
	phase1   []agents.Agent
	forecast agents.Agent
	causal   agents.Agent

	severity    *scoring.SeverityEngine
	recommender *scoring.RecommendationEngine
	riskTracker *scoring.RiskIndexTracker

	notifier Notifier
	now      func() time.Time
}

// New wires the coordinator. The observation store is fenced before any
// cycle code sees it: a reasoning component that tries to append a raw
// fact halts the process.
func New(
	cfg *config.Config,
	obs store.ObservationStore,
	board *blackboard.Blackboard,
	phase1 []agents.Agent,
	forecast agents.Agent,
	causal agents.Agent,
	severity *scoring.SeverityEngine,
	recommender *scoring.RecommendationEngine,
	riskTracker *scoring.RiskIndexTracker,
	notifier Notifier,
) *Coordinator {
	return &Coordinator{
		phase:       cfg.Phase,
		obs:         guard.FenceObservations(obs, "coordinator"),
		board:       board,
		phase1:      phase1,
		forecast:    forecast,
		causal:      causal,
		severity:    severity,
		recommender: recommender,
		riskTracker: riskTracker,
		notifier:    notifier,
		now:         time.Now,
	}
}

// WithClock overrides the wall clock, for deterministic tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// RunCycle executes one full reasoning pass and returns the sealed cycle.
func (c *Coordinator) RunCycle(ctx context.Context) (*models.Cycle, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	cycleID := c.board.StartCycle(ctx)
	log := slog.With("cycle_id", cycleID)
	log.Info("cycle started", "events", len(snap.Events), "metrics", len(snap.Metrics))

	c.runPhase1(ctx, cycleID, snap)

	// Phases 2 and 3 run sequentially: each reads everything appended
	// before the Phase-1 barrier (and, for causal, Phase 2's output).
	c.runSequential(ctx, cycleID, snap, "forecast", c.forecast)
	c.runSequential(ctx, cycleID, snap, "causal", c.causal)

	if err := c.severity.Score(ctx, cycleID, c.board); err != nil {
		c.recordFailure(ctx, cycleID, "severity", c.severity.Name(), err)
	}
	if err := c.recommender.Recommend(ctx, cycleID, c.board); err != nil {
		c.recordFailure(ctx, cycleID, "recommendation", c.recommender.Name(), err)
	}

	c.updateRiskIndex(ctx, cycleID)

	sealed, err := c.board.CompleteCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to seal cycle %s: %w", cycleID, err)
	}

	if c.notifier != nil {
		summary := sealed.Summary()
		c.notifier.Publish(ctx, "cycle.sealed", map[string]any{
			"cycle_id":     sealed.CycleID,
			"cycle_sha256": sealed.CycleSHA256,
			"summary":      summary,
		})
	}
	return sealed, nil
}

// snapshot takes the consistent observation read that bounds the cycle.
func (c *Coordinator) snapshot(ctx context.Context) (agents.Snapshot, error) {
	events, err := c.obs.RecentEvents(ctx, c.phase.CycleObservationEvents)
	if err != nil {
		return agents.Snapshot{}, err
	}
	metrics, err := c.obs.RecentMetrics(ctx, c.phase.CycleObservationMetrics)
	if err != nil {
		return agents.Snapshot{}, err
	}
	return agents.NewSnapshot(c.now().UTC(), events, metrics), nil
}

// runPhase1 fans the detection agents out over a bounded worker pool and
// waits for all of them — the Phase-1 barrier. A failed or timed-out
// agent's output is already partial on the board only if it appended
// before failing; its failure is annotated and the cycle continues.
func (c *Coordinator) runPhase1(ctx context.Context, cycleID string, snap agents.Snapshot) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.phase.Phase1Workers)

	for _, agent := range c.phase1 {
		g.Go(func() error {
			agentCtx, cancel := context.WithTimeout(gctx, c.phase.Phase1Deadline)
			defer cancel()

			if err := agent.Run(agentCtx, cycleID, snap, c.board); err != nil {
				c.recordFailure(ctx, cycleID, "phase1", agent.Name(), err)
			}
			// Failures are annotations, not errors: returning non-nil
			// would cancel sibling agents through gctx.
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) runSequential(ctx context.Context, cycleID string, snap agents.Snapshot, phase string, agent agents.Agent) {
	agentCtx, cancel := context.WithTimeout(ctx, c.phase.Phase1Deadline)
	defer cancel()
	if err := agent.Run(agentCtx, cycleID, snap, c.board); err != nil {
		c.recordFailure(ctx, cycleID, phase, agent.Name(), err)
	}
}

func (c *Coordinator) updateRiskIndex(ctx context.Context, cycleID string) {
	anomalies, err := c.board.Anomalies(cycleID)
	if err != nil {
		c.recordFailure(ctx, cycleID, "risk_index", c.riskTracker.Name(), err)
		return
	}
	hits, err := c.board.PolicyHits(cycleID)
	if err != nil {
		c.recordFailure(ctx, cycleID, "risk_index", c.riskTracker.Name(), err)
		return
	}
	idx := c.riskTracker.Update(anomalies, hits)
	if err := c.board.SetRiskIndex(ctx, cycleID, c.riskTracker.Name(), idx); err != nil {
		c.recordFailure(ctx, cycleID, "risk_index", c.riskTracker.Name(), err)
	}
}

func (c *Coordinator) recordFailure(ctx context.Context, cycleID, phase, agent string, cause error) {
	slog.Warn("agent failed; cycle degraded",
		"cycle_id", cycleID, "phase", phase, "agent", agent, "error", cause)
	failure := models.PhaseFailure{Phase: phase, Agent: agent, Reason: cause.Error()}
	if err := c.board.RecordFailure(ctx, cycleID, failure); err != nil {
		slog.Error("failed to annotate cycle failure", "cycle_id", cycleID, "error", err)
	}
}

// RiskTracker exposes the tracker for the API's risk endpoints.
func (c *Coordinator) RiskTracker() *scoring.RiskIndexTracker {
	return c.riskTracker
}
