package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerWithRetry(t *testing.T) {
	cb := NewCircuitBreaker(DefaultConfig("test-service", nil))
	retryConfig := &RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}

	callCount := 0
	testErr := errors.New("test error")

	fn := func(ctx context.Context) error {
		callCount++
		if callCount <= 2 {
			return testErr
		}
		return nil
	}

	err := RetryContextWithCircuitBreaker(context.Background(), fn, retryConfig, cb)
	if err != nil {
		t.Errorf("expected success after retries, got error: %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls (1 initial + 2 retries), got %d", callCount)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected circuit breaker to be closed, got %s", cb.State())
	}
}

func TestCircuitBreakerOpensOnFailures(t *testing.T) {
	config := &Config{
		Name:        "test-failing-service",
		MaxRequests: 1,
		Interval:    1 * time.Second,
		Timeout:     100 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	cb := NewCircuitBreaker(config)
	testErr := errors.New("persistent error")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return testErr })
	}

	if cb.State() != StateOpen {
		t.Errorf("expected circuit breaker to be open, got %s", cb.State())
	}

	err := cb.Execute(func() error {
		t.Error("function should not be executed when circuit is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	config := &Config{
		Name:        "test-recovery-service",
		MaxRequests: 2,
		Interval:    1 * time.Second,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	}

	cb := NewCircuitBreaker(config)
	testErr := errors.New("error")

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return testErr })
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected circuit breaker to be open")
	}

	time.Sleep(60 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("expected success in half-open, got %v", err)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("expected success, got %v", err)
	}

	if cb.State() != StateClosed {
		t.Errorf("expected circuit breaker to be closed, got %s", cb.State())
	}
}

func TestRetryExponentialBackoff(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		delay := calculateDelay(tt.attempt, config)
		if delay != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, delay)
		}
	}
}

func TestRetryWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := &RetryConfig{
		MaxAttempts:  10,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}

	callCount := 0
	testErr := errors.New("test error")

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := RetryContext(ctx, func(ctx context.Context) error {
		callCount++
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return testErr
		}
	}, config)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if callCount > 2 {
		t.Errorf("expected at most 2 calls before cancellation, got %d", callCount)
	}
}

func TestCircuitBreakerManager(t *testing.T) {
	manager := NewCircuitBreakerManager(nil)

	cb1 := manager.Get("service1", nil)
	if cb1 == nil {
		t.Fatal("expected circuit breaker, got nil")
	}
	cb2 := manager.Get("service1", nil)
	if cb1 != cb2 {
		t.Error("expected same circuit breaker instance")
	}
	cb3 := manager.Get("service2", nil)
	if cb1 == cb3 {
		t.Error("expected different circuit breaker instances")
	}

	all := manager.GetAll()
	if len(all) != 2 {
		t.Errorf("expected 2 circuit breakers, got %d", len(all))
	}

	_ = cb1.Execute(func() error { return errors.New("error") })
	if cb1.Counts().TotalFailures == 0 {
		t.Error("expected failure count > 0")
	}

	manager.Reset("service1")
	if cb1.Counts().TotalFailures != 0 {
		t.Error("expected failure count to be reset to 0")
	}

	_ = cb3.Execute(func() error { return errors.New("error") })
	manager.ResetAll()
	if cb3.Counts().TotalFailures != 0 {
		t.Error("expected all circuit breakers to be reset")
	}
}

func TestRetryableErrors(t *testing.T) {
	retryableErr := errors.New("retryable error")
	nonRetryableErr := errors.New("non-retryable error")

	config := &RetryConfig{
		MaxAttempts:     2,
		InitialDelay:    10 * time.Millisecond,
		MaxDelay:        100 * time.Millisecond,
		Multiplier:      2.0,
		RetryableErrors: []error{retryableErr},
	}

	callCount := 0
	err := RetryContext(context.Background(), func(ctx context.Context) error {
		callCount++
		return nonRetryableErr
	}, config)
	if !errors.Is(err, nonRetryableErr) {
		t.Errorf("expected non-retryable error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call (no retries), got %d", callCount)
	}

	callCount = 0
	err = RetryContext(context.Background(), func(ctx context.Context) error {
		callCount++
		if callCount <= 2 {
			return retryableErr
		}
		return nil
	}, config)
	if err != nil {
		t.Errorf("expected success after retries, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls (1 initial + 2 retries), got %d", callCount)
	}
}

func BenchmarkCircuitBreakerExecute(b *testing.B) {
	cb := NewCircuitBreaker(DefaultConfig("benchmark-service", nil))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cb.Execute(func() error { return nil })
	}
}

func BenchmarkRetryContext(b *testing.B) {
	config := &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
	}

	callCount := 0
	fn := func(ctx context.Context) error {
		callCount++
		if callCount%2 == 0 {
			return errors.New("error")
		}
		return nil
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = RetryContext(context.Background(), fn, config)
	}
}
