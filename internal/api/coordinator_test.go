package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/deltran/coordinator/internal/domain"
	"github.com/deltran/coordinator/internal/ledger"
	"github.com/deltran/coordinator/internal/ports"
	"github.com/deltran/coordinator/internal/resilience"
	"github.com/deltran/coordinator/internal/routing"
	"github.com/deltran/coordinator/internal/saga"
	"github.com/deltran/coordinator/internal/validation"
)

// memPaymentRepo and memSagaRepo are in-memory fakes for this package's
// tests, mirroring internal/saga's orchestrator_test.go style (optimistic
// concurrency, a plain map, no external infra).

type memPaymentRepo struct {
	mu       sync.Mutex
	byKey    map[string]domain.PaymentId   // tenantID+"/"+key -> paymentID
	sagas    map[string]domain.SagaId      // paymentID -> sagaID
	payments map[string]*domain.Payment    // paymentID -> Payment
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{
		byKey:    map[string]domain.PaymentId{},
		sagas:    map[string]domain.SagaId{},
		payments: map[string]*domain.Payment{},
	}
}

func (r *memPaymentRepo) SavePayment(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment.DrainEvents()
	cp := *payment
	r.payments[payment.PaymentId.String()] = &cp
	return nil
}

func (r *memPaymentRepo) findPayment(paymentID domain.PaymentId) (*domain.Payment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[paymentID.String()]
	return p, ok
}

func (r *memPaymentRepo) ReserveIdempotencyKey(ctx context.Context, tenant domain.TenantContext, key string, paymentID domain.PaymentId) (domain.PaymentId, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := tenant.TenantID + "/" + key
	if existing, ok := r.byKey[k]; ok {
		return existing, true, nil
	}
	r.byKey[k] = paymentID
	return "", false, nil
}

func (r *memPaymentRepo) SavePaymentSaga(ctx context.Context, paymentID domain.PaymentId, sagaID domain.SagaId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sagas[paymentID.String()] = sagaID
	return nil
}

func (r *memPaymentRepo) FindSagaID(ctx context.Context, paymentID domain.PaymentId) (domain.SagaId, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sagaID, ok := r.sagas[paymentID.String()]
	if !ok {
		return "", &ports.NotFoundError{AggregateID: paymentID.String()}
	}
	return sagaID, nil
}

type memSagaRepo struct {
	mu   sync.Mutex
	byID map[string]*saga.SagaInstance
}

func newMemSagaRepo() *memSagaRepo { return &memSagaRepo{byID: map[string]*saga.SagaInstance{}} }

func (r *memSagaRepo) Save(ctx context.Context, s *saga.SagaInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[s.SagaID.String()]
	if ok && existing.Version != s.Version {
		return &ports.StaleVersionError{AggregateID: s.SagaID.String(), ExpectedVersion: s.Version, ActualVersion: existing.Version}
	}
	s.Version++
	s.DrainEvents()
	cp := *s
	cp.Steps = append([]saga.SagaStep(nil), s.Steps...)
	r.byID[s.SagaID.String()] = &cp
	return nil
}

func (r *memSagaRepo) FindByID(ctx context.Context, id string) (*saga.SagaInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, &ports.NotFoundError{AggregateID: id}
	}
	cp := *s
	cp.Steps = append([]saga.SagaStep(nil), s.Steps...)
	return &cp, nil
}

func (r *memSagaRepo) FindNonTerminal(ctx context.Context) ([]*saga.SagaInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*saga.SagaInstance
	for _, s := range r.byID {
		if !s.Status.IsTerminal() {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeAccounts struct {
	mu       sync.Mutex
	reserved map[string]bool
}

func newFakeAccounts() *fakeAccounts { return &fakeAccounts{reserved: map[string]bool{}} }

func (f *fakeAccounts) Reserve(ctx context.Context, account domain.AccountNumber, amount domain.Money, sagaID, stepID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved[sagaID+stepID] = true
	return nil
}

func (f *fakeAccounts) Release(ctx context.Context, account domain.AccountNumber, amount domain.Money, sagaID, stepID string) error {
	return nil
}

type fakeClearing struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeClearing) Submit(ctx context.Context, txn ports.ClearingSubmission, sagaID, stepID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "CLR-REF-1", nil
}

func (f *fakeClearing) Reverse(ctx context.Context, clearingReference string, sagaID, stepID string) error {
	return nil
}

type fakeSettlement struct{}

func (fakeSettlement) WaitFor(ctx context.Context, clearingReference string, timeout time.Duration) (ports.SettlementResult, error) {
	return ports.SettlementResult{Settled: true, Reference: clearingReference}, nil
}

func (fakeSettlement) Cancel(ctx context.Context, clearingReference string) error { return nil }

type fakeNotification struct{}

func (fakeNotification) Send(ctx context.Context, paymentID, event string, data map[string]any) error {
	return nil
}

type fakeValidationRules struct{}

func (fakeValidationRules) Load(ctx context.Context, tenant domain.TenantContext) (any, error) {
	return validation.RuleContext{SupportedCurrencies: []string{"ZAR", "USD"}, MinAmount: "0.01", MaxAmount: "100000"}, nil
}

type fakeRoutingRules struct{}

func (fakeRoutingRules) LoadActive(ctx context.Context, tenant domain.TenantContext, at time.Time) (any, error) {
	return []routing.RoutingRule{}, nil
}

// holdRoutingRules always returns a single active HOLD_PAYMENT rule, used
// to exercise the routing-held path through InitiatePayment/GetPayment.
type holdRoutingRules struct{}

func (holdRoutingRules) LoadActive(ctx context.Context, tenant domain.TenantContext, at time.Time) (any, error) {
	return []routing.RoutingRule{
		{
			ID:       "rule-hold-1",
			RuleName: "manual-review",
			Tenant:   tenant,
			Status:   routing.RuleActive,
			Priority: 1,
			Actions: []routing.RoutingAction{
				{ActionType: routing.ActionHoldPayment, Parameters: map[string]string{"reason": "manual review required"}},
			},
		},
	}, nil
}

type fakeLedgerRepo struct {
	mu    sync.Mutex
	saved map[string]*ledger.Transaction
}

func newFakeLedgerRepo() *fakeLedgerRepo { return &fakeLedgerRepo{saved: map[string]*ledger.Transaction{}} }

func (r *fakeLedgerRepo) Save(ctx context.Context, txn *ledger.Transaction) error {
	if err := txn.CheckBalance(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[txn.TransactionID.String()] = txn
	txn.DrainEvents()
	return nil
}

func (r *fakeLedgerRepo) FindByID(ctx context.Context, id string) (*ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved[id], nil
}

func (r *fakeLedgerRepo) FindByPaymentID(ctx context.Context, paymentID string) (*ledger.Transaction, error) {
	return nil, nil
}

func testCoordinator(t *testing.T) (*Coordinator, *memSagaRepo) {
	t.Helper()
	coord, sagas, _ := testCoordinatorWithRouting(t, fakeRoutingRules{})
	return coord, sagas
}

func testCoordinatorWithRouting(t *testing.T, rules ports.RoutingRulesPort) (*Coordinator, *memSagaRepo, *memPaymentRepo) {
	t.Helper()
	sagas := newMemSagaRepo()
	payments := newMemPaymentRepo()
	deps := saga.PaymentProcessingDeps{
		ValidationRules: fakeValidationRules{},
		Validation:      validation.NewEngine(validation.DefaultRules()),
		RoutingRules:    rules,
		Routing:         routing.NewEngine(time.Second, "DEFAULT_CLEARING"),
		Accounts:        newFakeAccounts(),
		Ledger:          newFakeLedgerRepo(),
		Clearing:        &fakeClearing{},
		Settlement:      fakeSettlement{},
		Notification:    fakeNotification{},
	}
	retryCfg := &resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	orch := saga.NewOrchestrator(sagas, retryCfg, nil)
	now := time.Now()
	coord := NewCoordinator(payments, sagas, orch, deps, Config{MaxInFlightPerTenant: 4, AdmissionWait: 50 * time.Millisecond}, nil, func() time.Time { return now })
	return coord, sagas, payments
}

func scenario1Request(t *testing.T) PaymentRequest {
	t.Helper()
	source, err := domain.NewAccountNumber("12345678901")
	if err != nil {
		t.Fatal(err)
	}
	dest, err := domain.NewAccountNumber("98765432101")
	if err != nil {
		t.Fatal(err)
	}
	amount, err := domain.NewMoney("1000.00", "ZAR")
	if err != nil {
		t.Fatal(err)
	}
	return PaymentRequest{
		SourceAccount:      source,
		DestinationAccount: dest,
		Amount:             amount,
		Type:               domain.PaymentTypeEFT,
		Reference:          "Invoice 42",
		Tenant:             domain.TenantContext{TenantID: "T1", BusinessUnitID: "B1"},
		IdempotencyKey:     "K-1",
	}
}

func waitForTerminal(t *testing.T, sagas *memSagaRepo, sagaID domain.SagaId) *saga.SagaInstance {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s, err := sagas.FindByID(context.Background(), sagaID.String())
		if err == nil && s.Status.IsTerminal() {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("saga %s did not reach a terminal status in time", sagaID)
	return nil
}

func TestInitiatePaymentHappyPathCompletes(t *testing.T) {
	coord, sagas := testCoordinator(t)
	paymentID, err := coord.InitiatePayment(context.Background(), scenario1Request(t))
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}

	sagaID, err := coord.payments.FindSagaID(context.Background(), paymentID)
	if err != nil {
		t.Fatalf("FindSagaID: %v", err)
	}
	final := waitForTerminal(t, sagas, sagaID)
	if final.Status != saga.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", final.Status, final.FailureReason)
	}

	status, err := coord.GetPayment(context.Background(), paymentID)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if status.Status != PaymentStatusCompleted {
		t.Fatalf("expected payment status COMPLETED, got %s", status.Status)
	}
}

func TestInitiatePaymentIsIdempotentOnKey(t *testing.T) {
	coord, sagas := testCoordinator(t)
	req := scenario1Request(t)

	first, err := coord.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("first InitiatePayment: %v", err)
	}
	second, err := coord.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("second InitiatePayment: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical paymentId for a replayed idempotencyKey, got %s and %s", first, second)
	}

	sagaID, err := coord.payments.FindSagaID(context.Background(), first)
	if err != nil {
		t.Fatalf("FindSagaID: %v", err)
	}
	waitForTerminal(t, sagas, sagaID)

	sagas.mu.Lock()
	count := len(sagas.byID)
	sagas.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one saga for a replayed request, found %d", count)
	}
}

func TestInitiatePaymentRejectsValidationFailureViaCompensation(t *testing.T) {
	coord, sagas := testCoordinator(t)
	req := scenario1Request(t)
	req.Reference = ""
	req.IdempotencyKey = "K-reject"

	paymentID, err := coord.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	sagaID, err := coord.payments.FindSagaID(context.Background(), paymentID)
	if err != nil {
		t.Fatalf("FindSagaID: %v", err)
	}
	final := waitForTerminal(t, sagas, sagaID)
	if final.Status != saga.StatusCompensated {
		t.Fatalf("expected COMPENSATED for a validation rejection, got %s", final.Status)
	}

	status, err := coord.GetPayment(context.Background(), paymentID)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if status.Status != PaymentStatusFailed {
		t.Fatalf("expected externally-visible FAILED for a compensated saga, got %s", status.Status)
	}
	if status.Reason == "" {
		t.Fatal("expected a non-empty failure reason")
	}
}

func TestInitiatePaymentEnforcesPerTenantBackpressure(t *testing.T) {
	coord, _ := testCoordinator(t)
	coord.maxInFlight = 1
	coord.admissionWait = 20 * time.Millisecond

	slot := coord.slotFor("T1")
	slot.sem <- struct{}{}
	defer func() { <-slot.sem }()

	req := scenario1Request(t)
	req.IdempotencyKey = "K-backpressure"
	if _, err := coord.InitiatePayment(context.Background(), req); err != ErrTooManyInFlight {
		t.Fatalf("expected ErrTooManyInFlight, got %v", err)
	}
}

func TestInitiatePaymentHeldByRoutingSurfacesHeldStatus(t *testing.T) {
	coord, sagas, payments := testCoordinatorWithRouting(t, holdRoutingRules{})
	req := scenario1Request(t)
	req.IdempotencyKey = "K-hold"

	paymentID, err := coord.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	sagaID, err := coord.payments.FindSagaID(context.Background(), paymentID)
	if err != nil {
		t.Fatalf("FindSagaID: %v", err)
	}
	final := waitForTerminal(t, sagas, sagaID)
	if !final.Held {
		t.Fatalf("expected the saga to be flagged Held, got status %s reason %q", final.Status, final.FailureReason)
	}

	status, err := coord.GetPayment(context.Background(), paymentID)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if status.Status != PaymentStatusHeld {
		t.Fatalf("expected externally-visible HELD, got %s", status.Status)
	}
	if status.DecisionReason != "manual review required" {
		t.Fatalf("expected the routing decision reason to surface, got %q", status.DecisionReason)
	}

	p, ok := payments.findPayment(paymentID)
	if !ok {
		t.Fatal("expected the Payment aggregate to have been saved")
	}
	if p.Status != domain.PaymentHeld {
		t.Fatalf("expected the Payment aggregate to be synced to HELD, got %s", p.Status)
	}
}
