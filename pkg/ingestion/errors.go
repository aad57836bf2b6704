package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaInvalid covers missing mandatory fields, an unaccepted
	// schema major version, and malformed category payloads.
	ErrSchemaInvalid = errors.New("schema invalid")

	// ErrLateEvent is returned when event_source_ts falls outside the
	// configured skew window.
	ErrLateEvent = errors.New("event outside skew window")

	// ErrCategoryInvalid covers a category payload that fails its
	// category-specific checks. Surfaced to the DLQ as SCHEMA_INVALID —
	// the three reason codes are a closed set.
	ErrCategoryInvalid = errors.New("category payload invalid")
)

// ValidationError carries the failing gate and field for the caller's
// diagnostics.
type ValidationError struct {
	Gate  string // "schema", "skew", "category"
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s gate: field %q: %v", e.Gate, e.Field, e.Err)
	}
	return fmt.Sprintf("%s gate: %v", e.Gate, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(gate, field string, err error) *ValidationError {
	return &ValidationError{Gate: gate, Field: field, Err: err}
}
