package stage

import (
	"errors"
	"math"
	"time"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

const maxBackoffSeconds = 3600

// DefaultRetryPolicy returns the default retry configuration for external
// calls made from a stage.
func DefaultRetryPolicy() types.RetryPolicy {
	return types.RetryPolicy{
		MaxAttempts:       3,
		BackoffSeconds:    5,
		BackoffMultiplier: 2.0,
	}
}

// CalculateBackoff returns the wait duration for a given attempt number.
// Uses exponential backoff: base * multiplier^(attempt-1).
func CalculateBackoff(policy types.RetryPolicy, attempt int) time.Duration {
	if attempt <= 1 {
		return time.Duration(policy.BackoffSeconds) * time.Second
	}
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	backoff := float64(policy.BackoffSeconds) * math.Pow(multiplier, float64(attempt-1))
	if backoff > maxBackoffSeconds {
		backoff = maxBackoffSeconds
	}
	return time.Duration(backoff) * time.Second
}

// IsRetryable reports whether another attempt at a failed external call
// could succeed. Permanent failures and unclassified errors are final.
func IsRetryable(err error) bool {
	var ext *types.ExternalError
	if errors.As(err, &ext) {
		return ext.Retryable()
	}
	return false
}
