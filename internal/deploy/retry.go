package deploy

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
	"github.com/ObjectivityLtd/PSCI/internal/logfields"
	"github.com/ObjectivityLtd/PSCI/internal/metrics"
)

// RetryPolicy defines retry behavior for failed steps.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	IsRetryable func(error) bool
}

// DefaultRetryPolicy provides sensible defaults: 3 attempts, exponential
// backoff starting at 1s. Classified errors carry their own retryability;
// anything else retries only when it reports Temporary().
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     time.Second,
		IsRetryable: func(err error) bool {
			if classified, ok := errors.AsClassified(err); ok {
				return classified.CanRetry()
			}
			var tempErr interface{ Temporary() bool }
			return stderrors.As(err, &tempErr) && tempErr.Temporary()
		},
	}
}

// withRetry wraps a step with retry logic according to the policy.
func withRetry(step Step, policy RetryPolicy, rec metrics.Recorder) Step {
	if policy.MaxAttempts <= 1 {
		return step
	}
	run := step.Run
	step.Run = func(ctx context.Context) ([]string, error) {
		var lastErr error
		var allWarnings []string
		for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
			warnings, err := run(ctx)
			allWarnings = append(allWarnings, warnings...)
			if err == nil {
				return allWarnings, nil
			}
			lastErr = err
			if policy.IsRetryable == nil || !policy.IsRetryable(err) {
				slog.Warn("Non-retryable step error",
					logfields.Step(step.Name),
					logfields.Error(err))
				return allWarnings, err
			}
			if attempt < policy.MaxAttempts {
				backoff := policy.Backoff * time.Duration(1<<uint(attempt-1))
				slog.Info("Retrying step after failure",
					logfields.Step(step.Name),
					slog.Int("attempt", attempt),
					slog.Duration("backoff", backoff),
					logfields.Error(err))
				rec.IncRetry(step.Name)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return allWarnings, ctx.Err()
				}
			}
		}
		slog.Error("Step failed after retries",
			logfields.Step(step.Name),
			slog.Int("attempts", policy.MaxAttempts),
			logfields.Error(lastErr))
		rec.IncRetryExhausted(step.Name)
		return allWarnings, errors.DeployError("step failed after retries").
			WithCause(lastErr).
			WithContext("step", step.Name).
			WithContext("attempts", policy.MaxAttempts).
			Build()
	}
	return step
}
