// Package ledger implements the Transaction & Ledger Core (§4.4): an
// in-process double-entry aggregate that replaces the teacher's gRPC stub
// to an external ledger service with a real Transaction/LedgerEntry pair and
// an explicit state machine. Grounded on
// gateway-go/internal/ledger/client.go for the package shape (a Client-like
// seam the saga orchestrator calls through) but with the gRPC plumbing
// (google.golang.org/grpc, grpc.Dial) dropped: the core must stay
// transport-agnostic, so Repository (repository.go) is the
// replacement seam a concrete store implements.
package ledger

import (
	"fmt"
	"time"

	"github.com/deltran/coordinator/internal/domain"
)

// EntryType distinguishes a LedgerEntry's side of the double entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// LedgerEntry is one immutable posting against an account (§3). balanceAfter
// always equals balanceBefore adjusted by amount according to entryType.
type LedgerEntry struct {
	EntryID         string
	TransactionID   domain.TransactionId
	Account         domain.AccountNumber
	EntryType       EntryType
	Amount          domain.Money
	BalanceBefore   domain.Money
	BalanceAfter    domain.Money
	EntryDate       time.Time
}

// signedAmount returns the entry's amount signed so that summing every
// entry on a transaction yields zero (§4.4 double-entry invariant).
func (e LedgerEntry) signedAmount() domain.Money {
	if e.EntryType == EntryDebit {
		return e.Amount.Negate()
	}
	return e.Amount
}

// Transaction is the aggregate a saga's CreateTransaction step opens and
// drives through CLEARING to a terminal state (§4.4).
type Transaction struct {
	domain.EventBuffer

	TransactionID      domain.TransactionId
	PaymentID          domain.PaymentId
	Tenant             domain.TenantContext
	DebitAccount       domain.AccountNumber
	CreditAccount      domain.AccountNumber
	Amount             domain.Money
	Status             Status
	ClearingSystem     string
	ClearingReference  string
	LedgerEntries      []LedgerEntry
	Events             []TransactionEvent
	nextSequence       int
}

// NewTransaction opens a Transaction in CREATED, enforcing debit != credit
// and amount > 0, then materializes exactly one DEBIT and one CREDIT
// LedgerEntry summing to zero (§4.4). Balances are tracked per-account only
// within this transaction (balanceBefore is always zero here); a real
// ledger store is responsible for carrying forward running balances.
func NewTransaction(
	id domain.TransactionId,
	paymentID domain.PaymentId,
	tenant domain.TenantContext,
	debitAccount, creditAccount domain.AccountNumber,
	amount domain.Money,
	now time.Time,
) (*Transaction, error) {
	if debitAccount.Equal(creditAccount) {
		return nil, fmt.Errorf("ledger: debit and credit accounts must differ")
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("ledger: amount must be positive, got %s", amount)
	}

	zero := domain.Zero(amount.Currency)
	debitEntry := LedgerEntry{
		EntryID:       string(id) + "-debit",
		TransactionID: id,
		Account:       debitAccount,
		EntryType:     EntryDebit,
		Amount:        amount,
		BalanceBefore: zero,
		EntryDate:     now,
	}
	debitBalance, err := zero.Sub(amount)
	if err != nil {
		return nil, err
	}
	debitEntry.BalanceAfter = debitBalance

	creditEntry := LedgerEntry{
		EntryID:       string(id) + "-credit",
		TransactionID: id,
		Account:       creditAccount,
		EntryType:     EntryCredit,
		Amount:        amount,
		BalanceBefore: zero,
		EntryDate:     now,
	}
	creditBalance, err := zero.Add(amount)
	if err != nil {
		return nil, err
	}
	creditEntry.BalanceAfter = creditBalance

	txn := &Transaction{
		TransactionID: id,
		PaymentID:     paymentID,
		Tenant:        tenant,
		DebitAccount:  debitAccount,
		CreditAccount: creditAccount,
		Amount:        amount,
		Status:        StatusCreated,
		LedgerEntries: []LedgerEntry{debitEntry, creditEntry},
	}

	if err := txn.checkBalance(); err != nil {
		return nil, err
	}

	txn.appendEvent("TransactionCreated", now, TransactionCreatedPayload{
		TransactionID: id,
		PaymentID:     paymentID,
		DebitAccount:  debitAccount,
		CreditAccount: creditAccount,
		Amount:        amount,
	})

	return txn, nil
}

// checkBalance verifies the double-entry invariant: the signed sum of every
// ledger entry on this transaction is zero. Checked before construction
// returns and again whenever a repository would accept a write (§4.4).
func (t *Transaction) checkBalance() error {
	if len(t.LedgerEntries) == 0 {
		return nil
	}
	sum := domain.Zero(t.Amount.Currency)
	for _, entry := range t.LedgerEntries {
		var err error
		sum, err = sum.Add(entry.signedAmount())
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
	}
	if !sum.IsZero() {
		return fmt.Errorf("ledger: double-entry invariant violated, signed sum is %s", sum)
	}
	return nil
}

// CheckBalance is the exported form of checkBalance: a repository must call
// it before accepting any write of this aggregate (§4.4).
func (t *Transaction) CheckBalance() error { return t.checkBalance() }

func (t *Transaction) appendEvent(eventType string, now time.Time, payload any) {
	t.nextSequence++
	t.Events = append(t.Events, TransactionEvent{
		Sequence:   t.nextSequence,
		EventType:  eventType,
		OccurredAt: now,
	})
	t.Record(domain.DomainEvent{
		EventType:   eventType,
		AggregateID: t.TransactionID.String(),
		OccurredAt:  now,
		Payload:     payload,
	})
}
