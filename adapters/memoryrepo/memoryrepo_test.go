package memoryrepo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/deltran/coordinator/internal/domain"
	"github.com/deltran/coordinator/internal/ledger"
	"github.com/deltran/coordinator/internal/ports"
	"github.com/deltran/coordinator/internal/saga"
)

// fakeBus is a minimal ports.EventPublisher recording every Publish call,
// used to observe whether events arrived individually or batched.
type fakeBus struct {
	mu        sync.Mutex
	published [][]domain.DomainEvent
}

func (b *fakeBus) Publish(ctx context.Context, events []domain.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, events)
	return nil
}

func (b *fakeBus) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func newTestTransaction(t *testing.T, paymentID string) *ledger.Transaction {
	t.Helper()
	txnID, err := domain.NewTransactionId("txn-" + paymentID)
	if err != nil {
		t.Fatal(err)
	}
	pid, err := domain.NewPaymentId(paymentID)
	if err != nil {
		t.Fatal(err)
	}
	debit, _ := domain.NewAccountNumber("12345678901")
	credit, _ := domain.NewAccountNumber("98765432101")
	amount, _ := domain.NewMoney("10.00", "ZAR")
	tenant := domain.TenantContext{TenantID: "T1", BusinessUnitID: "B1"}
	txn, err := ledger.NewTransaction(txnID, pid, tenant, debit, credit, amount, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return txn
}

func TestSagaRepositorySaveRejectsStaleVersion(t *testing.T) {
	repo := NewSagaRepository(nil)
	sagaID, err := domain.NewSagaId("saga-1")
	if err != nil {
		t.Fatal(err)
	}
	s := &saga.SagaInstance{SagaID: sagaID, Status: saga.StatusStarted}
	if err := repo.Save(context.Background(), s); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	stale := &saga.SagaInstance{SagaID: sagaID, Status: saga.StatusInProgress, Version: 0}
	err = repo.Save(context.Background(), stale)
	if err == nil {
		t.Fatal("expected a stale-version error on the second Save with an outdated Version")
	}
	var staleErr *ports.StaleVersionError
	if !asStaleVersionError(err, &staleErr) {
		t.Fatalf("expected *ports.StaleVersionError, got %T: %v", err, err)
	}
}

func asStaleVersionError(err error, target **ports.StaleVersionError) bool {
	if e, ok := err.(*ports.StaleVersionError); ok {
		*target = e
		return true
	}
	return false
}

func TestSagaRepositoryFindNonTerminal(t *testing.T) {
	repo := NewSagaRepository(nil)
	running, _ := domain.NewSagaId("saga-running")
	done, _ := domain.NewSagaId("saga-done")

	if err := repo.Save(context.Background(), &saga.SagaInstance{SagaID: running, Status: saga.StatusInProgress}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(context.Background(), &saga.SagaInstance{SagaID: done, Status: saga.StatusCompleted}); err != nil {
		t.Fatal(err)
	}

	nonTerminal, err := repo.FindNonTerminal(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(nonTerminal) != 1 || nonTerminal[0].SagaID != running {
		t.Fatalf("expected exactly the running saga, got %v", nonTerminal)
	}
}

func TestPaymentRepositoryReserveIdempotencyKeyIsFirstWriteWins(t *testing.T) {
	repo := NewPaymentRepository(nil)
	tenant := domain.TenantContext{TenantID: "T1", BusinessUnitID: "B1"}
	first, _ := domain.NewPaymentId("pay-1")
	second, _ := domain.NewPaymentId("pay-2")

	existing, already, err := repo.ReserveIdempotencyKey(context.Background(), tenant, "K-1", first)
	if err != nil || already {
		t.Fatalf("expected the first reservation to succeed, got existing=%v already=%v err=%v", existing, already, err)
	}

	existing, already, err = repo.ReserveIdempotencyKey(context.Background(), tenant, "K-1", second)
	if err != nil {
		t.Fatal(err)
	}
	if !already || existing != first {
		t.Fatalf("expected the replay to report the original paymentId %s, got existing=%s already=%v", first, existing, already)
	}
}

func TestPaymentRepositoryFindSagaIDNotFound(t *testing.T) {
	repo := NewPaymentRepository(nil)
	unknown, _ := domain.NewPaymentId("pay-unknown")
	if _, err := repo.FindSagaID(context.Background(), unknown); err == nil {
		t.Fatal("expected a not-found error for an unregistered paymentId")
	}
}

func testPayment(t *testing.T) *domain.Payment {
	t.Helper()
	id, _ := domain.NewPaymentId("pay-1")
	source, _ := domain.NewAccountNumber("12345678901")
	dest, _ := domain.NewAccountNumber("98765432101")
	amount, _ := domain.NewMoney("100.00", "ZAR")
	tenant := domain.TenantContext{TenantID: "T1", BusinessUnitID: "B1"}
	p, err := domain.NewPayment(id, tenant, source, dest, amount, "r", domain.PaymentTypeEFT, 0, "api", "K-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPaymentRepositorySaveAndFindPaymentRoundTrips(t *testing.T) {
	bus := &fakeBus{}
	repo := NewPaymentRepository(bus)
	p := testPayment(t)

	if err := repo.SavePayment(context.Background(), p); err != nil {
		t.Fatalf("SavePayment: %v", err)
	}
	if bus.callCount() != 1 {
		t.Fatalf("expected the PaymentInitiated event to be published once, got %d calls", bus.callCount())
	}

	found, err := repo.FindPayment(context.Background(), p.PaymentId)
	if err != nil {
		t.Fatalf("FindPayment: %v", err)
	}
	if found.Status != domain.PaymentInitiated {
		t.Fatalf("expected INITIATED, got %s", found.Status)
	}

	if err := found.MarkValidated(time.Now()); err != nil {
		t.Fatal(err)
	}
	if stored, _ := repo.FindPayment(context.Background(), p.PaymentId); stored.Status != domain.PaymentInitiated {
		t.Fatalf("expected the stored copy to be unaffected by mutating a FindPayment result, got %s", stored.Status)
	}
}

func TestPaymentRepositoryFindPaymentNotFound(t *testing.T) {
	repo := NewPaymentRepository(nil)
	unknown, _ := domain.NewPaymentId("pay-unknown")
	if _, err := repo.FindPayment(context.Background(), unknown); err == nil {
		t.Fatal("expected a not-found error for an unregistered paymentId")
	}
}

func TestTransactionRepositoryBatchesEventsUntilMaxSize(t *testing.T) {
	bus := &fakeBus{}
	repo := NewTransactionRepository(bus)

	for i := 0; i < batchMaxSize-1; i++ {
		txn := newTestTransaction(t, "pay-batch")
		txn.TransactionID, _ = domain.NewTransactionId("txn-batch-" + string(rune('a'+i)))
		if err := repo.Save(context.Background(), txn); err != nil {
			t.Fatal(err)
		}
	}
	if bus.callCount() != 0 {
		t.Fatalf("expected no Publish calls before the batch fills, got %d", bus.callCount())
	}

	last := newTestTransaction(t, "pay-batch")
	last.TransactionID, _ = domain.NewTransactionId("txn-batch-last")
	if err := repo.Save(context.Background(), last); err != nil {
		t.Fatal(err)
	}
	if bus.callCount() != 1 {
		t.Fatalf("expected exactly one Publish call once the batch reached maxSize, got %d", bus.callCount())
	}
}

func TestTransactionRepositoryCloseFlushesRemainingEvents(t *testing.T) {
	bus := &fakeBus{}
	repo := NewTransactionRepository(bus)

	txn := newTestTransaction(t, "pay-flush")
	if err := repo.Save(context.Background(), txn); err != nil {
		t.Fatal(err)
	}
	if bus.callCount() != 0 {
		t.Fatalf("expected the single event to still be buffered, got %d Publish calls", bus.callCount())
	}

	if err := repo.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if bus.callCount() != 1 {
		t.Fatalf("expected Close to flush the buffered event, got %d Publish calls", bus.callCount())
	}
}

func TestTransactionRepositoryWithNilBusCloseIsNoop(t *testing.T) {
	repo := NewTransactionRepository(nil)
	txn := newTestTransaction(t, "pay-nil-bus")
	if err := repo.Save(context.Background(), txn); err != nil {
		t.Fatal(err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close on a nil-bus repository should be a no-op, got %v", err)
	}
}
