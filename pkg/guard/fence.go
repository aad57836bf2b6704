package guard

import (
	"context"
	"time"

	"github.com/coglab/cognition-engine/pkg/models"
	"github.com/coglab/cognition-engine/pkg/store"
)

// ObservationFence wraps an ObservationStore with the append side fenced
// off. The coordinator hands this view to anything running inside a cycle,
// so a buggy agent that tries to write a raw fact hits the guard instead
// of the log.
type ObservationFence struct {
	inner store.ObservationStore
	owner string
}

// FenceObservations returns a read-only view of the store for the named
// component.
func FenceObservations(inner store.ObservationStore, owner string) *ObservationFence {
	return &ObservationFence{inner: inner, owner: owner}
}

func (f *ObservationFence) AppendEvent(context.Context, models.Event) error {
	Fatal(&Violation{Invariant: ErrAgentCannotEmitEvents, Component: f.owner, Detail: "AppendEvent through fence"})
	return ErrAgentCannotEmitEvents
}

func (f *ObservationFence) AppendMetric(context.Context, models.Metric) error {
	Fatal(&Violation{Invariant: ErrAgentCannotEmitEvents, Component: f.owner, Detail: "AppendMetric through fence"})
	return ErrAgentCannotEmitEvents
}

func (f *ObservationFence) RecentEvents(ctx context.Context, n int) ([]models.Event, error) {
	return f.inner.RecentEvents(ctx, n)
}

func (f *ObservationFence) RecentMetrics(ctx context.Context, n int) ([]models.Metric, error) {
	return f.inner.RecentMetrics(ctx, n)
}

func (f *ObservationFence) EventWindow(ctx context.Context, from, to time.Time, flt store.EventFilter) ([]models.Event, error) {
	return f.inner.EventWindow(ctx, from, to, flt)
}

func (f *ObservationFence) MetricWindow(ctx context.Context, from, to time.Time, flt store.MetricFilter) ([]models.Metric, error) {
	return f.inner.MetricWindow(ctx, from, to, flt)
}

func (f *ObservationFence) HasRecord(ctx context.Context, id string) (bool, error) {
	return f.inner.HasRecord(ctx, id)
}
