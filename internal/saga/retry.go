package saga

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/deltran/coordinator/internal/errs"
	"github.com/deltran/coordinator/internal/resilience"
)

// retryWithResult runs fn under config's backoff policy, retrying only
// errors classified Transient (§4.5, §7) and carrying the successful
// result back to the caller. internal/resilience.RetryContext can't be
// reused directly here: its retry predicate matches a fixed
// RetryableErrors list via errors.Is and returns no result value, while a
// saga step both produces a value on success and must retry by
// Classification rather than by sentinel identity. The backoff math below
// mirrors resilience.RetryConfig's calculateDelay/addJitter exactly, just
// duplicated locally since those helpers are unexported.
func retryWithResult(ctx context.Context, config *resilience.RetryConfig, fn func(context.Context) (any, error)) (any, int, error) {
	if config == nil {
		config = resilience.DefaultRetryConfig(nil)
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, attempts, ctx.Err()
		default:
		}

		attempts++
		result, err := fn(ctx)
		if err == nil {
			return result, attempts, nil
		}
		lastErr = err

		if !errs.IsTransient(err) {
			return nil, attempts, err
		}
		if attempt >= config.MaxAttempts {
			break
		}

		delay := retryDelay(attempt, config)
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return nil, attempts, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, attempts, lastErr
}

func retryDelay(attempt int, config *resilience.RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	if config.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
		if delay < 0 {
			delay = 0
		}
	}
	return time.Duration(delay)
}
