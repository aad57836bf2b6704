// Package agents defines the contract shared by every reasoning agent:
// the observation snapshot an agent reads, the blackboard surface it
// appends to, and the Agent interface the coordinator schedules.
package agents

import (
	"context"
	"sort"
	"time"

	"github.com/coglab/cognition-engine/pkg/models"
)

// Snapshot is the consistent read of recent observations taken at cycle
// start. Later-arriving data is not visible to the cycle. Events and
// metrics are ordered chronologically, oldest first.
type Snapshot struct {
	TakenAt time.Time
	Events  []models.Event
	Metrics []models.Metric
}

// NewSnapshot normalizes the given records into chronological order.
func NewSnapshot(takenAt time.Time, events []models.Event, metrics []models.Metric) Snapshot {
	es := make([]models.Event, len(events))
	copy(es, events)
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].ObservedAt.Equal(es[j].ObservedAt) {
			return es[i].Timestamp.Before(es[j].Timestamp)
		}
		return es[i].ObservedAt.Before(es[j].ObservedAt)
	})
	ms := make([]models.Metric, len(metrics))
	copy(ms, metrics)
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].ObservedAt.Equal(ms[j].ObservedAt) {
			return ms[i].Timestamp.Before(ms[j].Timestamp)
		}
		return ms[i].ObservedAt.Before(ms[j].ObservedAt)
	})
	return Snapshot{TakenAt: takenAt, Events: es, Metrics: ms}
}

// EventByID looks an event up in the snapshot.
func (s Snapshot) EventByID(id string) (models.Event, bool) {
	for _, e := range s.Events {
		if e.EventID == id {
			return e, true
		}
	}
	return models.Event{}, false
}

// Board is the blackboard surface agents write through and the Phase-2/3
// agents read prior sections from. Appends outside the agent's designated
// section fail.
type Board interface {
	AppendAnomaly(ctx context.Context, cycleID, agent string, a models.Anomaly) error
	AppendPolicyHit(ctx context.Context, cycleID, agent string, h models.PolicyHit) error
	AppendRiskSignal(ctx context.Context, cycleID, agent string, r models.RiskSignal) error
	AppendCausalLink(ctx context.Context, cycleID, agent string, l models.CausalLink) error

	Anomalies(cycleID string) ([]models.Anomaly, error)
	PolicyHits(cycleID string) ([]models.PolicyHit, error)
	RiskSignals(cycleID string) ([]models.RiskSignal, error)
}

// Agent is one reasoning step in the cycle. Run must be deterministic for
// a given snapshot and internal state, must finish before ctx's deadline,
// and must never write to the observation store.
type Agent interface {
	Name() string
	Run(ctx context.Context, cycleID string, snap Snapshot, board Board) error
}
