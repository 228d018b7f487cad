package types

import "fmt"

// ExternalError wraps a failure from an external collaborator (storage pin,
// narrative generation) with a retryability classification.
type ExternalError struct {
	Service  string
	Op       string
	Category FailureCategory
	Err      error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying.
func (e *ExternalError) Retryable() bool {
	return e.Category != FailurePermanent
}
