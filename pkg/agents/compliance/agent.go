// Package compliance evaluates every snapshot event against the loaded
// policy set. A predicate match on an operation that completed anyway is a
// silent violation; a match on a blocked operation is explicit.
package compliance

import (
	"context"
	"strings"

	"github.com/coglab/cognition-engine/pkg/agents"
	"github.com/coglab/cognition-engine/pkg/guard"
	"github.com/coglab/cognition-engine/pkg/models"
)

// Business hours bound the after-hours predicate: writes outside
// [startHour, endHour) trip NO_AFTER_HOURS_WRITE.
const (
	businessStartHour = 8
	businessEndHour   = 18
)

// predicate evaluates one policy rule against an event.
type predicate func(e models.Event) bool

// Agent is the Phase-1 compliance detector. Policies are loaded once at
// construction and immutable at runtime; policy access from any other
// component is a guard violation.
type Agent struct {
	policies   []models.Policy
	predicates map[string]predicate
}

func New(policies []models.Policy) *Agent {
	if v := guard.CheckPolicyAccess("compliance"); v != nil {
		guard.Fatal(v)
	}
	return &Agent{
		policies: policies,
		predicates: map[string]predicate{
			"after_hours_write":             afterHoursWrite,
			"unusual_location":              unusualLocation,
			"uncontrolled_sensitive_access": uncontrolledSensitiveAccess,
			"service_account_direct_write":  serviceAccountDirectWrite,
			"skipped_approval":              skippedApproval,
		},
	}
}

func (a *Agent) Name() string { return "compliance" }

func (a *Agent) Run(ctx context.Context, cycleID string, snap agents.Snapshot, board agents.Board) error {
	seen := make(map[string]bool)
	for _, e := range snap.Events {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, policy := range a.policies {
			pred, known := a.predicates[policy.Predicate]
			if !known || !pred(e) {
				continue
			}
			hit := models.PolicyHit{
				HitID:         models.DeterministicID("policy_hit", policy.PolicyID, e.EventID),
				PolicyID:      policy.PolicyID,
				EventID:       e.EventID,
				ViolationType: violationType(e),
				Severity:      policy.Severity,
				EvidenceIDs:   []string{e.EventID},
				Timestamp:     e.Timestamp,
			}
			if seen[hit.DedupeKey()] {
				continue
			}
			seen[hit.DedupeKey()] = true
			if err := board.AppendPolicyHit(ctx, cycleID, a.Name(), hit); err != nil {
				return err
			}
		}
	}
	return nil
}

// violationType distinguishes an operation that completed despite the
// predicate match (SILENT) from one that was blocked (EXPLICIT).
func violationType(e models.Event) models.ViolationType {
	status, _ := e.Metadata["status"].(string)
	switch strings.ToLower(status) {
	case "blocked", "denied", "error", "failed":
		return models.ViolationExplicit
	}
	return models.ViolationSilent
}

func isWrite(e models.Event) bool {
	if strings.Contains(strings.ToUpper(e.Type), "WRITE") {
		return true
	}
	op, _ := e.Metadata["operation"].(string)
	return strings.EqualFold(op, "write")
}

func afterHoursWrite(e models.Event) bool {
	if !isWrite(e) {
		return false
	}
	hour := e.Timestamp.Hour()
	return hour < businessStartHour || hour >= businessEndHour
}

func unusualLocation(e models.Event) bool {
	loc, ok := e.Metadata["location"].(string)
	if !ok || loc == "" {
		return false
	}
	known, ok := e.Metadata["known_locations"].([]any)
	if !ok {
		return false
	}
	for _, k := range known {
		if s, ok := k.(string); ok && strings.EqualFold(s, loc) {
			return false
		}
	}
	return true
}

func uncontrolledSensitiveAccess(e models.Event) bool {
	sensitivity, _ := e.Metadata["sensitivity"].(string)
	switch strings.ToLower(sensitivity) {
	case "sensitive", "high", "restricted":
	default:
		return false
	}
	if ref, ok := e.Metadata["approval_ref"].(string); ok && ref != "" {
		return false
	}
	if ctl, ok := e.Metadata["control"].(string); ok && ctl != "" {
		return false
	}
	return true
}

// serviceAccountDirectWrite fires only when instrumentation explicitly
// reports the write as direct; a bare write event does not imply the
// access path.
func serviceAccountDirectWrite(e models.Event) bool {
	if !isWrite(e) {
		return false
	}
	if !strings.HasPrefix(e.Actor, "svc_") && !strings.HasPrefix(e.Actor, "svc-") {
		return false
	}
	via, _ := e.Metadata["via"].(string)
	return strings.EqualFold(via, "direct")
}

func skippedApproval(e models.Event) bool {
	if strings.EqualFold(e.Type, "APPROVAL_SKIPPED") {
		return true
	}
	skipped, _ := e.Metadata["approval_skipped"].(bool)
	return skipped
}
