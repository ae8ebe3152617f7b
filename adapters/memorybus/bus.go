// Package memorybus is an in-memory ports.EventPublisher, standing in for
// the teacher's NATS JetStream bus (internal/bus: Producer.publish,
// deduplication via a Nats-Msg-Id header, DLQ for failures) without a real
// broker — message brokers are a Non-goal. It preserves the two properties
// that matter to callers: published events for one aggregate are delivered
// in emission order, and replaying an already-delivered event is a no-op.
package memorybus

import (
	"context"
	"sync"

	"github.com/deltran/coordinator/internal/domain"
)

// Bus is an in-process, in-memory event bus. Publish is synchronous:
// subscribers run inline on the publishing goroutine, mirroring the
// teacher's JetStream publish-then-ack round trip without the network hop.
type Bus struct {
	mu          sync.Mutex
	subscribers []func(domain.DomainEvent)
	dispatched  map[string]bool // EventID -> delivered, for at-least-once dedup
	dlq         []deadLetter
}

type deadLetter struct {
	event  domain.DomainEvent
	reason string
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{dispatched: map[string]bool{}}
}

// Subscribe registers handler to receive every event published from this
// point on. It takes the same lock as Publish, so it may be called
// concurrently with Publish, but not from inside a subscriber (the lock is
// not reentrant).
func (b *Bus) Subscribe(handler func(domain.DomainEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, handler)
}

// Publish delivers events to every subscriber in order, per aggregate.
// Events already delivered (matched by EventID) are skipped rather than
// redelivered, the in-memory analogue of the teacher's Nats-Msg-Id
// deduplication header.
func (b *Bus) Publish(ctx context.Context, events []domain.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range events {
		if b.dispatched[e.EventID] {
			continue
		}
		for _, sub := range b.subscribers {
			sub(e)
		}
		b.dispatched[e.EventID] = true
	}
	return nil
}

// PublishToDLQ records a failed event for later inspection, mirroring the
// teacher's Producer.PublishToDLQ. The in-memory bus never retries DLQ
// entries automatically; a caller inspects DeadLetters and decides.
func (b *Bus) PublishToDLQ(event domain.DomainEvent, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dlq = append(b.dlq, deadLetter{event: event, reason: reason})
}

// DeadLetters returns a snapshot of every event sent to the dead-letter
// queue so far.
func (b *Bus) DeadLetters() []domain.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.DomainEvent, len(b.dlq))
	for i, d := range b.dlq {
		out[i] = d.event
	}
	return out
}
