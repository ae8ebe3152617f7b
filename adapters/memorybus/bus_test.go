package memorybus

import (
	"context"
	"testing"

	"github.com/deltran/coordinator/internal/domain"
)

func TestPublishDeliversInOrder(t *testing.T) {
	b := New()
	var received []string
	b.Subscribe(func(e domain.DomainEvent) { received = append(received, e.EventType) })

	events := []domain.DomainEvent{
		{EventID: "1", EventType: "A"},
		{EventID: "2", EventType: "B"},
		{EventID: "3", EventType: "C"},
	}
	if err := b.Publish(context.Background(), events); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(received) != 3 || received[0] != "A" || received[1] != "B" || received[2] != "C" {
		t.Fatalf("expected in-order delivery A,B,C, got %v", received)
	}
}

func TestPublishSkipsAlreadyDeliveredEvent(t *testing.T) {
	b := New()
	count := 0
	b.Subscribe(func(e domain.DomainEvent) { count++ })

	event := domain.DomainEvent{EventID: "dup-1", EventType: "A"}
	if err := b.Publish(context.Background(), []domain.DomainEvent{event}); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	if err := b.Publish(context.Background(), []domain.DomainEvent{event}); err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one delivery for a replayed event, got %d", count)
	}
}

func TestPublishToDLQRecordsFailure(t *testing.T) {
	b := New()
	event := domain.DomainEvent{EventID: "1", EventType: "A"}
	b.PublishToDLQ(event, "handler unavailable")

	dead := b.DeadLetters()
	if len(dead) != 1 || dead[0].EventID != "1" {
		t.Fatalf("expected one dead letter for event 1, got %v", dead)
	}
}
