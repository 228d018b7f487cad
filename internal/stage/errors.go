package stage

import (
	"errors"
	"fmt"
)

// ErrBatchClosed is returned by ingestion when the target reading has
// already left PENDING; the batch window no longer accepts data.
var ErrBatchClosed = errors.New("batch closed to further ingestion")

// ValidationError rejects an ingestion request before any state change.
// Field names the first offending input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
