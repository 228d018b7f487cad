package stage

import (
	"context"

	"github.com/clearsky-systems/clearsky/internal/metrics"
	"github.com/clearsky-systems/clearsky/internal/narrative"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// generateNarrative calls the narrative service with a bounded retry
// budget. Permanent failures stop immediately.
func generateNarrative(ctx context.Context, deps *Deps, policy types.RetryPolicy, stageName string, req narrative.Request) (*narrative.Result, error) {
	log := deps.logger().With("stage", stageName)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		metrics.GenerationsTotal.Add(1)
		res, err := deps.Narrator.Generate(ctx, req)
		if err == nil {
			return res, nil
		}
		metrics.GenerationsFailed.Add(1)
		lastErr = err

		if !IsRetryable(err) || attempt == policy.MaxAttempts {
			break
		}
		metrics.RetriesScheduled.Add(1)
		backoff := CalculateBackoff(policy, attempt)
		log.Warn("generation retrying", "attempt", attempt, "backoff", backoff.String(), "error", err)
		if err := sleepFor(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}
