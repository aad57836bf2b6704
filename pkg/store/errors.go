package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a cycle or record id does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned by Reserve when the idempotency key is
	// already held.
	ErrDuplicateKey = errors.New("idempotency key already reserved")

	// ErrAppendFailed wraps a failed durable append. Callers retry with
	// bounded backoff; persistent failure suspends ingestion.
	ErrAppendFailed = errors.New("append failed")

	// ErrIndexCorrupt indicates the in-memory index disagrees with the
	// durable log and a replay is required.
	ErrIndexCorrupt = errors.New("index corrupt")
)

// StorageError wraps a storage failure with the log it occurred on.
type StorageError struct {
	Log string // "events", "metrics", "dlq", "cycles", "idempotency", "baselines"
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error on %s log during %s: %v", e.Log, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func newStorageError(log, op string, err error) *StorageError {
	return &StorageError{Log: log, Op: op, Err: err}
}
