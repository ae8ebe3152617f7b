package domain

import (
	"fmt"
	"time"
)

// PaymentStatus is the Payment aggregate's lifecycle state (§3). Transitions
// are monotonic: INITIATED -> VALIDATED -> CLEARING -> COMPLETED, or to
// FAILED from any non-terminal state, or to HELD from INITIATED/VALIDATED
// (a HELD payment may still move to CLEARING or FAILED).
type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "INITIATED"
	PaymentValidated PaymentStatus = "VALIDATED"
	PaymentClearing  PaymentStatus = "CLEARING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentHeld      PaymentStatus = "HELD"
)

// IsTerminal reports whether status admits no further transition.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

// PaymentType distinguishes the payment rails a routing rule may key on.
type PaymentType string

const (
	PaymentTypeEFT       PaymentType = "EFT"
	PaymentTypeRTGS      PaymentType = "RTGS"
	PaymentTypeInstant   PaymentType = "INSTANT"
	PaymentTypeBatch     PaymentType = "BATCH"
)

// Payment is the root aggregate created by the initiation API (§3).
type Payment struct {
	EventBuffer

	PaymentId          PaymentId
	Tenant             TenantContext
	SourceAccount      AccountNumber
	DestinationAccount AccountNumber
	Amount             Money
	Reference          string
	Type               PaymentType
	Priority           int
	Status             PaymentStatus
	StatusReason       string
	InitiatedBy        string
	InitiatedAt        time.Time
	IdempotencyKey     string
}

// NewPayment constructs a Payment in status INITIATED, enforcing amount > 0
// and source != destination (§3 invariants). It emits a PaymentInitiated
// domain event.
func NewPayment(
	id PaymentId,
	tenant TenantContext,
	source, destination AccountNumber,
	amount Money,
	reference string,
	ptype PaymentType,
	priority int,
	initiatedBy string,
	idempotencyKey string,
	now time.Time,
) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payment: amount must be positive, got %s", amount)
	}
	if source.Equal(destination) {
		return nil, fmt.Errorf("payment: source and destination accounts must differ")
	}

	p := &Payment{
		PaymentId:          id,
		Tenant:             tenant,
		SourceAccount:      source,
		DestinationAccount: destination,
		Amount:             amount,
		Reference:          reference,
		Type:               ptype,
		Priority:           priority,
		Status:             PaymentInitiated,
		InitiatedBy:        initiatedBy,
		InitiatedAt:        now,
		IdempotencyKey:     idempotencyKey,
	}

	p.Record(DomainEvent{
		EventType:   "PaymentInitiated",
		AggregateID: id.String(),
		OccurredAt:  now,
		Payload:     PaymentInitiatedPayload{PaymentId: id, Tenant: tenant, Amount: amount},
	})

	return p, nil
}

// PaymentInitiatedPayload is the payload of a PaymentInitiated event.
type PaymentInitiatedPayload struct {
	PaymentId PaymentId
	Tenant    TenantContext
	Amount    Money
}

// transition moves the payment to newStatus, rejecting non-monotonic moves
// and any move out of a terminal status.
func (p *Payment) transition(newStatus PaymentStatus, now time.Time, eventType string, payload any) error {
	if p.Status.IsTerminal() {
		return fmt.Errorf("payment %s: cannot transition from terminal status %s", p.PaymentId, p.Status)
	}

	allowed := map[PaymentStatus][]PaymentStatus{
		PaymentInitiated: {PaymentValidated, PaymentFailed, PaymentHeld},
		PaymentValidated:  {PaymentClearing, PaymentFailed, PaymentHeld},
		PaymentClearing:   {PaymentCompleted, PaymentFailed},
		PaymentHeld:       {PaymentClearing, PaymentFailed},
	}

	ok := false
	for _, next := range allowed[p.Status] {
		if next == newStatus {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("payment %s: illegal transition %s -> %s", p.PaymentId, p.Status, newStatus)
	}

	p.Status = newStatus
	p.Record(DomainEvent{
		EventType:   eventType,
		AggregateID: p.PaymentId.String(),
		OccurredAt:  now,
		Payload:     payload,
	})
	return nil
}

// MarkValidated transitions INITIATED -> VALIDATED.
func (p *Payment) MarkValidated(now time.Time) error {
	return p.transition(PaymentValidated, now, "PaymentValidated", nil)
}

// MarkClearing transitions VALIDATED|HELD -> CLEARING.
func (p *Payment) MarkClearing(now time.Time) error {
	return p.transition(PaymentClearing, now, "PaymentClearing", nil)
}

// MarkCompleted transitions CLEARING -> COMPLETED.
func (p *Payment) MarkCompleted(now time.Time) error {
	return p.transition(PaymentCompleted, now, "PaymentCompleted", nil)
}

// MarkFailed transitions any non-terminal status -> FAILED with a reason.
func (p *Payment) MarkFailed(reason string, now time.Time) error {
	if err := p.transition(PaymentFailed, now, "PaymentFailed", PaymentFailedPayload{Reason: reason}); err != nil {
		return err
	}
	p.StatusReason = reason
	return nil
}

// MarkHeld transitions INITIATED|VALIDATED -> HELD with a reason.
func (p *Payment) MarkHeld(reason string, now time.Time) error {
	if err := p.transition(PaymentHeld, now, "PaymentHeld", PaymentHeldPayload{Reason: reason}); err != nil {
		return err
	}
	p.StatusReason = reason
	return nil
}

// PaymentFailedPayload is the payload of a PaymentFailed event.
type PaymentFailedPayload struct {
	Reason string
}

// PaymentHeldPayload is the payload of a PaymentHeld event.
type PaymentHeldPayload struct {
	Reason string
}
