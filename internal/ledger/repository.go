package ledger

import "context"

// Repository is the persistence seam a saga's ledger steps call through.
// Declared here (not in internal/ports) because its Transaction return type
// belongs to this package; internal/ports stays free of a ledger import by
// only naming the generic ClearingSubmission shape a ClearingAdapter needs.
type Repository interface {
	// Save persists txn, draining and forwarding its buffered domain events
	// atomically with the write (outbox pattern, §4.1). Save must call
	// txn.CheckBalance before accepting the write (§4.4).
	Save(ctx context.Context, txn *Transaction) error
	FindByID(ctx context.Context, id string) (*Transaction, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*Transaction, error)
}
