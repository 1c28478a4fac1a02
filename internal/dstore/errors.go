// ABOUTME: Error taxonomy for the data-store collection.
// ABOUTME: Mirrors the container's recovery policy: corruption/processing errors propagate, consistency errors are dropped, usage/not-found are returned, transient errors are logged only.

package dstore

import (
	"errors"
	"fmt"
)

// Sentinel causes wrapped by the typed errors below.
var (
	ErrDuplicateDataStore = errors.New("duplicate data store id on remote attach")
	ErrMalformedAlias     = errors.New("malformed alias message")
	ErrNoContext          = errors.New("no context for addressed data store")
	ErrDeleted            = errors.New("context is deleted")
	ErrUnknownMessageType = errors.New("unknown container message type")
	ErrAttachAckMismatch  = errors.New("local attach ack without pending entry")
	ErrGCDuringAttaching  = errors.New("gc data collection attempted while a context is attaching")
)

// DataCorruptionError is fatal to the container: the inbound op stream
// disagrees with this collection's invariants in a way that cannot be
// reconciled locally.
type DataCorruptionError struct {
	Op  string
	Err error
}

func (e *DataCorruptionError) Error() string {
	return fmt.Sprintf("data corruption during %s: %v", e.Op, e.Err)
}

func (e *DataCorruptionError) Unwrap() error { return e.Err }

func newDataCorruption(op string, err error) error {
	return &DataCorruptionError{Op: op, Err: err}
}

// DataProcessingError is fatal to processing the current op or summary and
// is surfaced to the runtime; it is not a programmer error.
type DataProcessingError struct {
	Op  string
	Err error
}

func (e *DataProcessingError) Error() string {
	return fmt.Sprintf("data processing error during %s: %v", e.Op, e.Err)
}

func (e *DataProcessingError) Unwrap() error { return e.Err }

func newDataProcessing(op string, err error) error {
	return &DataProcessingError{Op: op, Err: err}
}

// InternalConsistencyError indicates a programmer error: an invariant that
// should never be observable from valid inputs was violated.
type InternalConsistencyError struct {
	Op  string
	Err error
}

func (e *InternalConsistencyError) Error() string {
	return fmt.Sprintf("internal consistency violation during %s: %v", e.Op, e.Err)
}

func (e *InternalConsistencyError) Unwrap() error { return e.Err }

func newInternalConsistency(op string, err error) error {
	return &InternalConsistencyError{Op: op, Err: err}
}

// UsageError is returned to the caller when it passed something the API
// cannot accept.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return fmt.Sprintf("usage error: %v", e.Err) }
func (e *UsageError) Unwrap() error { return e.Err }

func newUsage(err error) error { return &UsageError{Err: err} }

// NotFoundError is returned to the caller for requests against a data store
// that does not exist or has been deleted; the request router turns this
// into a 404-shaped response.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %s", e.Path) }

func newNotFound(path string) error { return &NotFoundError{Path: path} }

// TransientError is swallowed after being logged: a signal addressed to an
// unknown remote store, or a delete-sweep entry for an already-deleted
// store.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func newTransient(op string, err error) error { return &TransientError{Op: op, Err: err} }
