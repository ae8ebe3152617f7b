package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// ErrMaxRetriesExceeded is returned once a RetryConfig's attempts are
// exhausted without a successful call.
var ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

// RetryConfig is the saga step retry policy (§4.5, §6): exponential
// backoff with a base delay, growth factor, cap, and a bounded number of
// additional attempts beyond the first. Trimmed from the teacher's three
// interchangeable backoff strategies (exponential/linear/constant) to the
// one the orchestrator's retry.* config knobs actually name.
type RetryConfig struct {
	// MaxAttempts is additional attempts after the first call (0 = no retries).
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool

	// RetryableErrors restricts retry to errors matching errors.Is against
	// this list. If empty, every error is retried. The saga orchestrator
	// does not use this list: its own retry loop retries only errors that
	// errs.IsTransient accepts.
	RetryableErrors []error

	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the saga orchestrator's step retry policy:
// base 1s, factor 2, cap 30s, 3 attempts beyond the first.
func DefaultRetryConfig(logger *zap.Logger) *RetryConfig {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Info("retrying after error",
				zap.Int("attempt", attempt),
				zap.Error(err),
				zap.Duration("delay", delay),
			)
		},
	}
}

// RetryContext executes fn, retrying on retryable errors per config.
func RetryContext(ctx context.Context, fn func(context.Context) error, config *RetryConfig) error {
	if config == nil {
		config = DefaultRetryConfig(nil)
	}

	var lastErr error

	for attempt := 0; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err, config.RetryableErrors) {
			return err
		}
		if attempt >= config.MaxAttempts {
			break
		}

		delay := calculateDelay(attempt, config)
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

func calculateDelay(attempt int, config *RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	if config.Jitter {
		delay = addJitter(delay)
	}
	return time.Duration(delay)
}

func addJitter(delay float64) float64 {
	jitter := delay * 0.25
	d := delay + (rand.Float64()*2-1)*jitter
	if d < 0 {
		return 0
	}
	return d
}

func isRetryable(err error, retryableErrors []error) bool {
	if len(retryableErrors) == 0 {
		return true
	}
	for _, retryErr := range retryableErrors {
		if errors.Is(err, retryErr) {
			return true
		}
	}
	return false
}

// RetryContextWithCircuitBreaker runs fn through cb on every attempt,
// aborting immediately (no retry) when the breaker itself is open: an open
// breaker means the downstream is already known-bad, and burning retry
// attempts against it only delays failing the saga step.
func RetryContextWithCircuitBreaker(ctx context.Context, fn func(context.Context) error, config *RetryConfig, cb *CircuitBreaker) error {
	if config == nil {
		config = DefaultRetryConfig(nil)
	}

	var lastErr error

	for attempt := 0; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := cb.ExecuteContext(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
			return err
		}
		if !isRetryable(err, config.RetryableErrors) {
			return err
		}
		if attempt >= config.MaxAttempts {
			break
		}

		delay := calculateDelay(attempt, config)
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}
