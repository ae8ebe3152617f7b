package ledger

import (
	"time"

	"github.com/deltran/coordinator/internal/domain"
)

// TransactionEvent is the append-only audit trail kept alongside a
// Transaction's domain events: each state transition appends one with a
// monotonically increasing Sequence (§4.4).
type TransactionEvent struct {
	Sequence   int
	EventType  string
	OccurredAt time.Time
}

// TransactionCreatedPayload is the DomainEvent payload for TransactionCreated.
type TransactionCreatedPayload struct {
	TransactionID domain.TransactionId
	PaymentID     domain.PaymentId
	DebitAccount  domain.AccountNumber
	CreditAccount domain.AccountNumber
	Amount        domain.Money
}

// TransactionStatusPayload is the DomainEvent payload for a plain state
// transition (processing started, cleared, completed).
type TransactionStatusPayload struct {
	TransactionID domain.TransactionId
	Status        Status
}

// TransactionFailedPayload is the DomainEvent payload for TransactionFailed.
type TransactionFailedPayload struct {
	TransactionID domain.TransactionId
	Reason        string
}
