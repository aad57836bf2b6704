// Package scenario injects deterministic event and metric sequences
// through the real ingestion pipeline, for tests and demos. Idempotency
// keys derive from the scenario name and step index, so replaying a
// scenario is a no-op instead of a duplicate storm.
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/coglab/cognition-engine/pkg/ingestion"
)

// Step is one submission at a fixed offset from the scenario base time.
// Exactly one of Event / Metric is set.
type Step struct {
	Offset time.Duration
	Event  *ingestion.RawEvent
	Metric *ingestion.RawMetric
}

// Scenario is a named, replayable submission sequence anchored at Base.
type Scenario struct {
	Name  string
	Base  time.Time
	Steps []Step
}

// Report summarizes one injection run.
type Report struct {
	Accepted    int
	Quarantined int
	EventIDs    []string
	MetricIDs   []string
}

// Injector drives scenarios through the ingestion pipeline.
type Injector struct {
	pipeline *ingestion.Pipeline
}

func New(pipeline *ingestion.Pipeline) *Injector {
	return &Injector{pipeline: pipeline}
}

// Inject replays the scenario in step order. Steps with an already-seen
// idempotency key quarantine as duplicates, which the report counts but
// does not treat as failure.
func (i *Injector) Inject(ctx context.Context, s Scenario) (Report, error) {
	var report Report
	for idx, step := range s.Steps {
		key := fmt.Sprintf("scenario:%s:%d", s.Name, idx)
		ts := s.Base.Add(step.Offset)

		var (
			res ingestion.Result
			err error
		)
		switch {
		case step.Event != nil:
			ev := *step.Event
			ev.IdempotencyKey = key
			ev.Timestamp = ts
			res, err = i.pipeline.SubmitRawEvent(ctx, ev)
		case step.Metric != nil:
			m := *step.Metric
			m.IdempotencyKey = key
			m.Timestamp = ts
			res, err = i.pipeline.SubmitRawMetric(ctx, m)
		default:
			return report, fmt.Errorf("scenario %s step %d has no payload", s.Name, idx)
		}
		if err != nil {
			return report, fmt.Errorf("scenario %s step %d: %w", s.Name, idx, err)
		}
		if res.Accepted {
			report.Accepted++
			report.EventIDs = append(report.EventIDs, res.EventID)
			if res.MetricID != "" {
				report.MetricIDs = append(report.MetricIDs, res.MetricID)
			}
		} else {
			report.Quarantined++
		}
	}
	return report, nil
}

// SustainedCPUCascade is the canonical demo: a climbing CPU series on one
// VM followed by a workflow step that blows its SLA.
func SustainedCPUCascade(base time.Time) Scenario {
	values := []float64{72, 88, 93, 95, 96}
	steps := make([]Step, 0, len(values)+1)
	for i, v := range values {
		steps = append(steps, Step{
			Offset: time.Duration(i) * 10 * time.Second,
			Metric: &ingestion.RawMetric{
				ResourceID: "vm_2",
				MetricName: "cpu_percent",
				Value:      v,
			},
		})
	}
	steps = append(steps, Step{
		Offset: time.Duration(len(values)) * 10 * time.Second,
		Event: &ingestion.RawEvent{
			Type:       "WORKFLOW_STEP",
			WorkflowID: "wf_deploy",
			Actor:      "orchestrator",
			Metadata: map[string]any{
				"step":             "DEPLOY",
				"step_index":       2,
				"duration_seconds": 250,
				"sla_seconds":      120,
			},
		},
	})
	return Scenario{Name: "sustained-cpu-cascade", Base: base, Steps: steps}
}

// SilentCompliance exercises the after-hours write and skipped approval
// predicates in one cycle.
func SilentCompliance(base time.Time) Scenario {
	night := time.Date(base.Year(), base.Month(), base.Day(), 2, 17, 0, 0, time.UTC)
	return Scenario{
		Name: "silent-compliance",
		Base: night,
		Steps: []Step{
			{
				Event: &ingestion.RawEvent{
					Type:     "ACCESS_WRITE",
					Actor:    "svc_bot",
					Resource: "config",
					Metadata: map[string]any{"operation": "write"},
				},
			},
			{
				Offset: 30 * time.Second,
				Event: &ingestion.RawEvent{
					Type:       "APPROVAL_SKIPPED",
					Actor:      "svc_bot",
					WorkflowID: "wf1",
					Metadata:   map[string]any{"approval_skipped": true},
				},
			},
		},
	}
}
