// Package ports declares every boundary the coordinator core depends on or
// offers (§6). The core never imports a concrete backend — only these
// interfaces — so any BankservAfrica/SAMOS/PayShap adapter, Postgres/Redis
// repository or Service-Bus/Kafka publisher can be plugged in without the
// core changing.
package ports

import (
	"context"
	"time"

	"github.com/deltran/coordinator/internal/domain"
)

// ValidationRulesPort loads the ordered rule set for a tenant/business unit.
// The concrete rule type is defined by the validation package; ports stays
// free of a dependency on it by using `any` and letting callers type-assert,
// mirroring how the routing rules port below is kept generic.
type ValidationRulesPort interface {
	Load(ctx context.Context, tenant domain.TenantContext) (any, error)
}

// RoutingRulesPort loads ACTIVE routing rules effective at `at` for a
// tenant/business unit (§4.3 step 1).
type RoutingRulesPort interface {
	LoadActive(ctx context.Context, tenant domain.TenantContext, at time.Time) (any, error)
}

// AccountAdapter reserves and releases funds against an external ledger or
// core banking system. Both operations are idempotent on (sagaId, stepId).
type AccountAdapter interface {
	Reserve(ctx context.Context, account domain.AccountNumber, amount domain.Money, sagaID, stepID string) error
	Release(ctx context.Context, account domain.AccountNumber, amount domain.Money, sagaID, stepID string) error
}

// ClearingAdapter submits a transaction to an external clearing system and
// can reverse a prior submission. Idempotent on (sagaId, stepId).
type ClearingAdapter interface {
	Submit(ctx context.Context, txn ClearingSubmission, sagaID, stepID string) (clearingReference string, err error)
	Reverse(ctx context.Context, clearingReference string, sagaID, stepID string) error
}

// ClearingSubmission is the subset of Transaction data a ClearingAdapter
// needs to submit a payment; kept separate from the ledger package's
// Transaction type so ports has no dependency on it.
type ClearingSubmission struct {
	TransactionID  string
	PaymentID      string
	ClearingSystem string
	DebitAccount   domain.AccountNumber
	CreditAccount  domain.AccountNumber
	Amount         domain.Money
}

// SettlementResult is the outcome of waiting for settlement.
type SettlementResult struct {
	Settled   bool
	Reference string
	Reason    string
}

// SettlementPort waits for (or cancels waiting for) settlement of a prior
// clearing submission.
type SettlementPort interface {
	WaitFor(ctx context.Context, clearingReference string, timeout time.Duration) (SettlementResult, error)
	Cancel(ctx context.Context, clearingReference string) error
}

// NotificationPort delivers a best-effort notification about a payment
// event. Failure never fails the saga step that triggers it.
type NotificationPort interface {
	Send(ctx context.Context, paymentID string, event string, data map[string]any) error
}

// EventPublisher delivers domain events at-least-once; consumers dedup by
// EventID. Implementations must preserve per-aggregate emission order.
type EventPublisher interface {
	Publish(ctx context.Context, events []domain.DomainEvent) error
}

// StaleVersionError is returned by a Repository's Save when the caller's
// expected version no longer matches the stored version (optimistic
// concurrency, §5).
type StaleVersionError struct {
	AggregateID     string
	ExpectedVersion int
	ActualVersion   int
}

func (e *StaleVersionError) Error() string {
	return "stale version for " + e.AggregateID
}

// NotFoundError is returned when a Repository.Load target does not exist, or
// exists under a different tenant than the caller's TenantContext (tenant
// isolation is enforced as a not-found, never leaked as a permission error).
type NotFoundError struct {
	AggregateID string
}

func (e *NotFoundError) Error() string {
	return "not found: " + e.AggregateID
}
