package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	// Forgetting an already-forgotten memory reports this; it is not fatal.
	ErrNotFound = errors.New("memory not found")

	// ErrSweepRunning is returned by an on-demand sweep trigger when a
	// sweep is already in flight. The trigger is a no-op in that case.
	ErrSweepRunning = errors.New("sweep already running")
)

// ValidationError reports malformed input. It is raised before any
// external call and is never worth retrying.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// EmbeddingError reports a failure of the embedding provider.
type EmbeddingError struct {
	// Mismatch is true when the provider returned a vector whose
	// dimensionality differs from the store's configured dimension.
	// This is a configuration problem, not a transient outage.
	Mismatch bool
	Err      error
}

func (e *EmbeddingError) Error() string {
	if e.Mismatch {
		return fmt.Sprintf("embedding dimension mismatch: %v", e.Err)
	}
	return fmt.Sprintf("embedding unavailable: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexError reports a failure of the vector index. Transient; the
// caller layer may retry with backoff. The engine itself does not
// retry beyond its single bounded attempt.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("vector index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

func indexErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &IndexError{Op: op, Err: err}
}
