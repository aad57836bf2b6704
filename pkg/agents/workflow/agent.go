// Package workflow detects workflow-shaped anomalies: steps that blow
// their SLA, steps missing from the expected sequence, and steps executed
// out of order.
package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/coglab/cognition-engine/pkg/agents"
	"github.com/coglab/cognition-engine/pkg/models"
)

// Metadata keys the agent reads off workflow events. Events produced by
// workflow engines carry the step name, its position in the definition,
// and the measured duration against its SLA.
const (
	keyStep     = "step"
	keyStepIdx  = "step_index"
	keyDuration = "duration_seconds"
	keySLA      = "sla_seconds"
)

// Agent is the Phase-1 workflow detector. Stateless across cycles: every
// run re-derives per-workflow step progressions from the snapshot.
type Agent struct{}

func New() *Agent { return &Agent{} }

func (a *Agent) Name() string { return "workflow" }

func (a *Agent) Run(ctx context.Context, cycleID string, snap agents.Snapshot, board agents.Board) error {
	// Per-workflow progression state, built in snapshot order.
	type progression struct {
		maxIndex     int
		maxIndexSeen bool
		lastEventID  string
		seenIndexes  map[int]string // step_index → event_id
	}
	workflows := make(map[string]*progression)

	for _, e := range snap.Events {
		if e.WorkflowID == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		duration, hasDuration := agents.Numeric(e.Metadata[keyDuration])
		sla, hasSLA := agents.Numeric(e.Metadata[keySLA])
		if hasDuration && hasSLA && sla > 0 && duration > sla {
			if err := board.AppendAnomaly(ctx, cycleID, a.Name(), a.delayAnomaly(e, duration, sla)); err != nil {
				return err
			}
		}

		idx, hasIdx := agents.Numeric(e.Metadata[keyStepIdx])
		if !hasIdx {
			continue
		}
		stepIndex := int(idx)

		w := workflows[e.WorkflowID]
		if w == nil {
			w = &progression{seenIndexes: make(map[int]string)}
			workflows[e.WorkflowID] = w
		}

		if w.maxIndexSeen && stepIndex < w.maxIndex {
			anomaly := a.sequenceAnomaly(e, w.lastEventID, stepIndex, w.maxIndex)
			if err := board.AppendAnomaly(ctx, cycleID, a.Name(), anomaly); err != nil {
				return err
			}
		}

		// A gap below the newly observed index means an expected step
		// never ran before this one started.
		if w.maxIndexSeen && stepIndex > w.maxIndex+1 {
			for missing := w.maxIndex + 1; missing < stepIndex; missing++ {
				if _, seen := w.seenIndexes[missing]; seen {
					continue
				}
				anomaly := a.missingStepAnomaly(e, w.lastEventID, missing)
				if err := board.AppendAnomaly(ctx, cycleID, a.Name(), anomaly); err != nil {
					return err
				}
			}
		}

		w.seenIndexes[stepIndex] = e.EventID
		if !w.maxIndexSeen || stepIndex > w.maxIndex {
			w.maxIndex = stepIndex
			w.maxIndexSeen = true
		}
		w.lastEventID = e.EventID
	}
	return nil
}

func (a *Agent) delayAnomaly(e models.Event, duration, sla float64) models.Anomaly {
	overage := (duration - sla) / sla
	if overage > 1 {
		overage = 1
	}
	confidence := 0.70 + 0.25*overage
	if confidence > 0.95 {
		confidence = 0.95
	}
	step, _ := e.Metadata[keyStep].(string)
	return models.Anomaly{
		AnomalyID:   models.DeterministicID("anomaly", models.AnomalyWorkflowDelay, e.WorkflowID, e.EventID),
		Type:        models.AnomalyWorkflowDelay,
		Entity:      e.WorkflowID,
		Confidence:  confidence,
		Agent:       a.Name(),
		EvidenceIDs: []string{e.EventID},
		Description: fmt.Sprintf("step %s ran %.0fs against a %.0fs SLA", step, duration, sla),
		Metadata: map[string]any{
			"step":             step,
			"duration_seconds": duration,
			"sla_seconds":      sla,
		},
		Timestamp: e.Timestamp,
	}
}

func (a *Agent) sequenceAnomaly(e models.Event, prevEventID string, observed, previous int) models.Anomaly {
	evidence := []string{e.EventID}
	if prevEventID != "" && prevEventID != e.EventID {
		evidence = append(evidence, prevEventID)
	}
	return models.Anomaly{
		AnomalyID:   models.DeterministicID("anomaly", models.AnomalySequenceViolation, e.WorkflowID, e.EventID),
		Type:        models.AnomalySequenceViolation,
		Entity:      e.WorkflowID,
		Confidence:  0.85,
		Agent:       a.Name(),
		EvidenceIDs: evidence,
		Description: fmt.Sprintf("step index %d observed after index %d", observed, previous),
		Metadata: map[string]any{
			"observed_index": observed,
			"previous_index": previous,
		},
		Timestamp: e.Timestamp,
	}
}

func (a *Agent) missingStepAnomaly(e models.Event, prevEventID string, missingIndex int) models.Anomaly {
	evidence := []string{e.EventID}
	if prevEventID != "" && prevEventID != e.EventID {
		evidence = append(evidence, prevEventID)
	}
	return models.Anomaly{
		AnomalyID: models.DeterministicID("anomaly", models.AnomalyMissingStep,
			e.WorkflowID, e.EventID, strconv.Itoa(missingIndex)),
		Type:        models.AnomalyMissingStep,
		Entity:      e.WorkflowID,
		Confidence:  0.95,
		Agent:       a.Name(),
		EvidenceIDs: evidence,
		Description: fmt.Sprintf("expected step at index %d never ran before the next step started", missingIndex),
		Metadata: map[string]any{
			"missing_index": missingIndex,
		},
		Timestamp: e.Timestamp,
	}
}
