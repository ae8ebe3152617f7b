package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/deltran/coordinator/internal/domain"
)

func mustTxnID(t *testing.T, s string) domain.TransactionId {
	t.Helper()
	id, err := domain.NewTransactionId(s)
	if err != nil {
		t.Fatalf("NewTransactionId(%q): %v", s, err)
	}
	return id
}

func mustPaymentID(t *testing.T, s string) domain.PaymentId {
	t.Helper()
	id, err := domain.NewPaymentId(s)
	if err != nil {
		t.Fatalf("NewPaymentId(%q): %v", s, err)
	}
	return id
}

func mustAccount(t *testing.T, s string) domain.AccountNumber {
	t.Helper()
	a, err := domain.NewAccountNumber(s)
	if err != nil {
		t.Fatalf("NewAccountNumber(%q): %v", s, err)
	}
	return a
}

func mustMoney(t *testing.T, amount, currency string) domain.Money {
	t.Helper()
	m, err := domain.NewMoney(amount, currency)
	if err != nil {
		t.Fatalf("NewMoney(%q, %q): %v", amount, currency, err)
	}
	return m
}

func newTestTransaction(t *testing.T) *Transaction {
	t.Helper()
	txn, err := NewTransaction(
		mustTxnID(t, "txn-1"),
		mustPaymentID(t, "pay-1"),
		domain.TenantContext{TenantID: "t1", BusinessUnitID: "bu1"},
		mustAccount(t, "US00000001"),
		mustAccount(t, "US00000002"),
		mustMoney(t, "1000.00", "USD"),
		time.Now(),
	)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	return txn
}

func TestNewTransactionMaterializesBalancedEntries(t *testing.T) {
	txn := newTestTransaction(t)
	if len(txn.LedgerEntries) != 2 {
		t.Fatalf("expected exactly 2 ledger entries, got %d", len(txn.LedgerEntries))
	}
	if err := txn.CheckBalance(); err != nil {
		t.Errorf("expected balanced entries, got %v", err)
	}

	var debits, credits int
	for _, e := range txn.LedgerEntries {
		switch e.EntryType {
		case EntryDebit:
			debits++
		case EntryCredit:
			credits++
		}
	}
	if debits != 1 || credits != 1 {
		t.Errorf("expected exactly 1 debit and 1 credit, got %d debits, %d credits", debits, credits)
	}
}

func TestNewTransactionRejectsSameAccount(t *testing.T) {
	acct := mustAccount(t, "US00000001")
	_, err := NewTransaction(
		mustTxnID(t, "txn-2"),
		mustPaymentID(t, "pay-2"),
		domain.TenantContext{TenantID: "t1"},
		acct, acct,
		mustMoney(t, "100.00", "USD"),
		time.Now(),
	)
	if err == nil {
		t.Fatal("expected an error for debit == credit account")
	}
}

func TestNewTransactionRejectsNonPositiveAmount(t *testing.T) {
	_, err := NewTransaction(
		mustTxnID(t, "txn-3"),
		mustPaymentID(t, "pay-3"),
		domain.TenantContext{TenantID: "t1"},
		mustAccount(t, "US00000001"),
		mustAccount(t, "US00000002"),
		mustMoney(t, "0.00", "USD"),
		time.Now(),
	)
	if err == nil {
		t.Fatal("expected an error for non-positive amount")
	}
}

func TestTransactionEmitsOneEventPerTransition(t *testing.T) {
	txn := newTestTransaction(t)
	now := time.Now()

	if err := txn.StartProcessing(now); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	if err := txn.MarkCleared(now, "FEDWIRE", "ref-123"); err != nil {
		t.Fatalf("MarkCleared: %v", err)
	}
	if err := txn.Complete(now); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	events := txn.DrainEvents()
	if len(events) != 4 { // created + processing + cleared + completed
		t.Fatalf("expected 4 domain events, got %d", len(events))
	}
	if len(txn.Events) != 4 {
		t.Fatalf("expected 4 TransactionEvents, got %d", len(txn.Events))
	}
	for i, e := range txn.Events {
		if e.Sequence != i+1 {
			t.Errorf("expected sequence %d, got %d", i+1, e.Sequence)
		}
	}
}

func TestTransactionStateMachineRejectsInvalidTransitions(t *testing.T) {
	txn := newTestTransaction(t)
	now := time.Now()

	if err := txn.MarkCleared(now, "FEDWIRE", "ref"); err == nil {
		t.Fatal("expected error transitioning CREATED -> CLEARING directly")
	}
	var invalidErr *InvalidStateTransition
	if err := txn.Complete(now); !errors.As(err, &invalidErr) {
		t.Fatalf("expected *InvalidStateTransition, got %v", err)
	}
}

func TestTransactionFailRejectedFromTerminalState(t *testing.T) {
	txn := newTestTransaction(t)
	now := time.Now()
	_ = txn.StartProcessing(now)
	_ = txn.MarkCleared(now, "FEDWIRE", "ref")
	if err := txn.Complete(now); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if err := txn.Fail(now, "late failure"); err == nil {
		t.Fatal("expected Fail to be rejected from a terminal state")
	}
}

func TestTransactionFailFromNonTerminalState(t *testing.T) {
	txn := newTestTransaction(t)
	now := time.Now()
	_ = txn.StartProcessing(now)

	if err := txn.Fail(now, "clearing system unreachable"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if txn.Status != StatusFailed {
		t.Errorf("expected FAILED, got %s", txn.Status)
	}
}
