// Package guard enforces the engine's runtime invariants. A guard
// violation means a bug is about to corrupt the audit trail, so it is
// fatal: the process halts rather than continue with inconsistent state.
package guard

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/coglab/cognition-engine/pkg/models"
)

var (
	// ErrEvidenceRequired: a finding (anomaly, policy hit, risk signal,
	// causal link, recommendation) was produced without evidence ids.
	ErrEvidenceRequired = errors.New("evidence required")

	// ErrAgentCannotEmitEvents: a reasoning agent attempted to write to
	// the observation store. Only ingestion writes raw facts.
	ErrAgentCannotEmitEvents = errors.New("agent cannot emit events")

	// ErrIsolationViolation: a component read or wrote policies outside
	// its designated access path.
	ErrIsolationViolation = errors.New("isolation violation")

	// ErrEventMustBeRawFact: an event arrived at ingestion carrying a
	// severity field. Severity is computed downstream, never observed.
	ErrEventMustBeRawFact = errors.New("event must be a raw fact")
)

// Violation carries the invariant that failed and where.
type Violation struct {
	Invariant error
	Component string
	Detail    string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("guard violation in %s: %v (%s)", v.Component, v.Invariant, v.Detail)
}

func (v *Violation) Unwrap() error {
	return v.Invariant
}

// exit is swappable so tests can observe Fatal without dying.
var exit = os.Exit

// Fatal logs the violation and halts the process. Guard violations bypass
// normal error handling: there is no recovery path that preserves audit
// integrity.
func Fatal(v *Violation) {
	slog.Error("fatal guard violation",
		"invariant", v.Invariant.Error(),
		"component", v.Component,
		"detail", v.Detail)
	exit(1)
}

// CheckEvidence validates that a finding carries at least one well-formed
// evidence id.
func CheckEvidence(component string, evidenceIDs []string) *Violation {
	if len(evidenceIDs) == 0 {
		return &Violation{Invariant: ErrEvidenceRequired, Component: component, Detail: "empty evidence_ids"}
	}
	for _, id := range evidenceIDs {
		if id == "" {
			return &Violation{Invariant: ErrEvidenceRequired, Component: component, Detail: "blank evidence id"}
		}
	}
	return nil
}

// CheckRawFact validates that an incoming event payload carries no
// severity field.
func CheckRawFact(component string, metadata map[string]any) *Violation {
	if _, ok := metadata[models.SeverityFieldKey]; ok {
		return &Violation{Invariant: ErrEventMustBeRawFact, Component: component, Detail: "severity present in event metadata"}
	}
	return nil
}

// CheckPolicyAccess validates that only the compliance agent and the
// configuration loader touch policy definitions. Scoring and explanation
// code must never read or mutate them.
func CheckPolicyAccess(component string) *Violation {
	switch component {
	case "compliance", "config":
		return nil
	}
	return &Violation{Invariant: ErrIsolationViolation, Component: component, Detail: "policy access denied"}
}
