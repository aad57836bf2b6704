package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coglab/cognition-engine/pkg/models"
)

// Memory is the in-process implementation of Store. It is the whole store
// for unit tests and the query index inside Postgres. All slices are
// append-only and read back in insertion order, which the single append
// lock makes a total order; observed_at plays no part in it.
type Memory struct {
	mu      sync.RWMutex
	events  []models.Event
	metrics []models.Metric
	ids     map[string]struct{} // event_id ∪ metric_id, for evidence resolution

	idemMu sync.Mutex
	idem   map[string]models.IdempotencyRecord

	dlqMu     sync.Mutex
	dlq       []models.DLQRecord
	dlqCounts map[models.ReasonCode]int

	cycleMu    sync.RWMutex
	cycles     map[string]sealedCycle
	cycleOrder []string // cycle ids ordered by started_at, ties by cycle_id

	baseMu    sync.Mutex
	baselines map[models.BaselineKey]models.BaselineProfile
}

type sealedCycle struct {
	cycle   models.Cycle
	payload []byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		ids:       make(map[string]struct{}),
		idem:      make(map[string]models.IdempotencyRecord),
		dlqCounts: make(map[models.ReasonCode]int),
		cycles:    make(map[string]sealedCycle),
		baselines: make(map[models.BaselineKey]models.BaselineProfile),
	}
}

func (s *Memory) AppendEvent(_ context.Context, e models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	s.ids[e.EventID] = struct{}{}
	return nil
}

func (s *Memory) AppendMetric(_ context.Context, m models.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
	s.ids[m.MetricID] = struct{}{}
	return nil
}

func (s *Memory) RecentEvents(_ context.Context, n int) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastReversed(s.events, n), nil
}

func (s *Memory) RecentMetrics(_ context.Context, n int) ([]models.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastReversed(s.metrics, n), nil
}

// lastReversed returns the trailing n elements of log, newest first.
func lastReversed[T any](log []T, n int) []T {
	if n <= 0 || len(log) == 0 {
		return nil
	}
	if n > len(log) {
		n = len(log)
	}
	out := make([]T, 0, n)
	for i := len(log) - 1; i >= len(log)-n; i-- {
		out = append(out, log[i])
	}
	return out
}

func (s *Memory) EventWindow(_ context.Context, from, to time.Time, f EventFilter) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, e := range s.events {
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.WorkflowID != "" && e.WorkflowID != f.WorkflowID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Memory) MetricWindow(_ context.Context, from, to time.Time, f MetricFilter) ([]models.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Metric
	for _, m := range s.metrics {
		if m.Timestamp.Before(from) || m.Timestamp.After(to) {
			continue
		}
		if f.ResourceID != "" && m.ResourceID != f.ResourceID {
			continue
		}
		if f.MetricName != "" && m.MetricName != f.MetricName {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Memory) HasRecord(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok, nil
}

func (s *Memory) Reserve(_ context.Context, key, eventID string, at time.Time) error {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	if _, held := s.idem[key]; held {
		return ErrDuplicateKey
	}
	s.idem[key] = models.IdempotencyRecord{
		IdempotencyKey: key,
		FirstSeenAt:    at,
		EventID:        eventID,
	}
	return nil
}

func (s *Memory) Release(_ context.Context, key string) error {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	delete(s.idem, key)
	return nil
}

func (s *Memory) Lookup(_ context.Context, key string) (models.IdempotencyRecord, bool, error) {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	rec, ok := s.idem[key]
	return rec, ok, nil
}

func (s *Memory) Sweep(ctx context.Context) (int, error) {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	released := 0
	for key, rec := range s.idem {
		ok, err := s.HasRecord(ctx, rec.EventID)
		if err != nil {
			return released, err
		}
		if !ok {
			delete(s.idem, key)
			released++
		}
	}
	return released, nil
}

func (s *Memory) AppendDLQ(_ context.Context, r models.DLQRecord) error {
	s.dlqMu.Lock()
	defer s.dlqMu.Unlock()
	s.dlq = append(s.dlq, r)
	s.dlqCounts[r.ReasonCode]++
	return nil
}

func (s *Memory) RecentDLQ(_ context.Context, n int) ([]models.DLQRecord, error) {
	s.dlqMu.Lock()
	defer s.dlqMu.Unlock()
	return lastReversed(s.dlq, n), nil
}

func (s *Memory) DLQCounts(_ context.Context) (map[models.ReasonCode]int, error) {
	s.dlqMu.Lock()
	defer s.dlqMu.Unlock()
	out := make(map[models.ReasonCode]int, len(s.dlqCounts))
	for k, v := range s.dlqCounts {
		out[k] = v
	}
	return out, nil
}

func (s *Memory) AppendSealed(_ context.Context, c models.Cycle, payload []byte) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	if _, exists := s.cycles[c.CycleID]; exists {
		return newStorageError("cycles", "append", ErrAppendFailed)
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)
	s.cycles[c.CycleID] = sealedCycle{cycle: c, payload: stored}
	s.cycleOrder = append(s.cycleOrder, c.CycleID)
	sort.SliceStable(s.cycleOrder, func(i, j int) bool {
		a, b := s.cycles[s.cycleOrder[i]], s.cycles[s.cycleOrder[j]]
		if a.cycle.StartedAt.Equal(b.cycle.StartedAt) {
			return a.cycle.CycleID < b.cycle.CycleID
		}
		return a.cycle.StartedAt.Before(b.cycle.StartedAt)
	})
	return nil
}

func (s *Memory) GetCycle(_ context.Context, cycleID string) (models.Cycle, []byte, error) {
	s.cycleMu.RLock()
	defer s.cycleMu.RUnlock()
	sc, ok := s.cycles[cycleID]
	if !ok {
		return models.Cycle{}, nil, ErrNotFound
	}
	return sc.cycle, sc.payload, nil
}

func (s *Memory) RecentCycles(_ context.Context, n int) ([]models.Cycle, error) {
	s.cycleMu.RLock()
	defer s.cycleMu.RUnlock()
	ids := lastReversed(s.cycleOrder, n)
	out := make([]models.Cycle, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.cycles[id].cycle)
	}
	return out, nil
}

func (s *Memory) SaveBaselines(_ context.Context, profiles []models.BaselineProfile) error {
	s.baseMu.Lock()
	defer s.baseMu.Unlock()
	for _, p := range profiles {
		s.baselines[p.Key] = p
	}
	return nil
}

func (s *Memory) LoadBaselines(_ context.Context) ([]models.BaselineProfile, error) {
	s.baseMu.Lock()
	defer s.baseMu.Unlock()
	out := make([]models.BaselineProfile, 0, len(s.baselines))
	for _, p := range s.baselines {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Entity == out[j].Key.Entity {
			return out[i].Key.Metric < out[j].Key.Metric
		}
		return out[i].Key.Entity < out[j].Key.Entity
	})
	return out, nil
}
