package store

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable indicates the database could not be reached:
	// a connection failed to open or a query failed to even start.
	// Safe to retry after backoff; never retried internally.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrUniqueKeyViolation is the internal signal raised by the statement
	// layer when the dialect recognizes a unique-constraint violation. It is
	// consumed entirely inside the engine's commit path and never surfaced
	// to callers.
	ErrUniqueKeyViolation = errors.New("unique key violation")

	// ErrDuplicateCommit indicates a commit attempt that is a retry of an
	// already-persisted commit. Callers may treat this as "already applied".
	ErrDuplicateCommit = errors.New("duplicate commit")

	// ErrConcurrency indicates another writer won the same
	// (stream, commitSequence) slot first. Callers are expected to reload
	// the stream and retry with a fresh revision.
	ErrConcurrency = errors.New("concurrent write detected")

	// ErrDisposed indicates an operation was invoked after Close.
	ErrDisposed = errors.New("engine already disposed")

	// ErrInvalidArgument indicates input rejected before any database call.
	ErrInvalidArgument = errors.New("invalid argument")
)

// StorageError wraps any storage failure that is not one of the typed
// conditions above. It is always fatal to the call that produced it and
// retry safety is unknown.
type StorageError struct {
	// Op names the failing operation.
	Op string

	// Err is the underlying failure.
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError classifies err for the given operation. Errors already
// carrying one of the typed conditions pass through unchanged so the
// classification done at the statement boundary is preserved.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrUniqueKeyViolation) ||
		errors.Is(err, ErrDuplicateCommit) ||
		errors.Is(err, ErrConcurrency) ||
		errors.Is(err, ErrDisposed) ||
		errors.Is(err, ErrInvalidArgument) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
