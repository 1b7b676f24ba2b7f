package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the store and engine. Callers match with
// errors.Is; wrapping with fmt.Errorf("...: %w", ...) preserves the match.
var (
	// ErrNotFound means an id did not resolve to a live memory, cluster,
	// or relationship endpoint.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict means an optimistic update lost the race.
	// Recoverable: re-read and retry.
	ErrVersionConflict = errors.New("version conflict")

	// ErrCapacityExceeded signals tier or quota backpressure.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrDependencyUnavailable means the similarity oracle or storage
	// backend is unreachable. Retryable; semantic search degrades to
	// filter-only rather than failing the whole query.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// ValidationError reports a malformed field on input. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
