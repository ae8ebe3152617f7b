package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the sealed envelope every aggregate emits. EventType is the
// stable discriminant; Payload carries the event-specific fields. This
// replaces the teacher's flat EventType string constant with the
// header+payload shape the corresponding REDESIGN FLAG calls for, so new
// event kinds never require a parallel class hierarchy.
type DomainEvent struct {
	EventID     string
	EventType   string
	AggregateID string
	OccurredAt  time.Time
	Payload     any
}

// EventBuffer is embedded by aggregates that need to accumulate DomainEvents
// between mutations and hand them to a repository write exactly once
// (outbox pattern, §4.1). Record, DrainEvents and Pending each take the
// buffer's own mutex, so they may be called from different goroutines; the
// lock is held only for the duration of the call.
type EventBuffer struct {
	mu     sync.Mutex
	events []DomainEvent
}

// Record appends an event to the buffer, assigning it a fresh EventID when
// it has none so publishers can dedup on it.
func (b *EventBuffer) Record(e DomainEvent) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

// DrainEvents returns the pending events and clears the buffer. Safe to call
// even if nothing was recorded (returns nil).
func (b *EventBuffer) DrainEvents() []DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	drained := b.events
	b.events = nil
	return drained
}

// Pending reports how many events are buffered but not yet drained.
func (b *EventBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
