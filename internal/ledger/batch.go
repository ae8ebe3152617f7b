package ledger

import (
	"sync"
	"time"

	"github.com/deltran/coordinator/internal/domain"
)

// EventBatcher accumulates domain events and submits them in bounded-size
// or bounded-time batches, grounded on the teacher's
// gateway-go/internal/ledger/client.go Batch (the same maxSize/timeout
// auto-flush shape), generalized from the teacher's ledger.Event to
// domain.DomainEvent so any aggregate's outbox drain can feed it rather than
// only ledger-specific events.
type EventBatcher struct {
	mu       sync.Mutex
	events   []domain.DomainEvent
	maxSize  int
	timeout  time.Duration
	submitFn func([]domain.DomainEvent) error
	timer    *time.Timer
}

// NewEventBatcher creates a batcher that flushes when it reaches maxSize
// events or timeout elapses since the last Add, whichever comes first.
func NewEventBatcher(maxSize int, timeout time.Duration, submitFn func([]domain.DomainEvent) error) *EventBatcher {
	b := &EventBatcher{
		events:   make([]domain.DomainEvent, 0, maxSize),
		maxSize:  maxSize,
		timeout:  timeout,
		submitFn: submitFn,
	}
	b.timer = time.AfterFunc(timeout, func() {
		_ = b.flush()
	})
	return b
}

// Add appends an event, flushing immediately if the batch is now full.
func (b *EventBatcher) Add(event domain.DomainEvent) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	full := len(b.events) >= b.maxSize
	b.mu.Unlock()

	if full {
		return b.flush()
	}
	b.timer.Reset(b.timeout)
	return nil
}

func (b *EventBatcher) flush() error {
	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return nil
	}
	events := b.events
	b.events = make([]domain.DomainEvent, 0, b.maxSize)
	b.mu.Unlock()

	return b.submitFn(events)
}

// Close stops the flush timer and submits any remaining buffered events.
func (b *EventBatcher) Close() error {
	b.timer.Stop()
	return b.flush()
}
