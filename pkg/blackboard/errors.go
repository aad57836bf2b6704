package blackboard

import "errors"

var (
	// ErrCycleSealed is returned by any append against a sealed cycle.
	ErrCycleSealed = errors.New("cycle sealed")

	// ErrUnknownCycle is returned when the cycle id names no open or
	// sealed cycle.
	ErrUnknownCycle = errors.New("unknown cycle")

	// ErrSectionViolation is returned when an agent appends to a section
	// it does not own.
	ErrSectionViolation = errors.New("section violation")

	// ErrEvidenceUnresolved is returned when an evidence id names no
	// stored event, metric, or prior-cycle artifact.
	ErrEvidenceUnresolved = errors.New("evidence id does not resolve")
)
