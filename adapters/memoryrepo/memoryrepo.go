// Package memoryrepo provides in-memory implementations of the
// saga.Repository, ledger.Repository, and api.PaymentRepository
// persistence seams. SagaRepository enforces the optimistic per-aggregate
// version CAS the orchestrator relies on (§5) — a real store backs this
// with a row version column or a Redis SETNX lock the way the teacher's
// resilience.IdempotencyManager does; persistence backends are a Non-goal
// here, so the CAS lives in a guarded map instead. TransactionRepository
// and PaymentRepository do no version check: each save overwrites the
// stored aggregate.
package memoryrepo

import (
	"context"
	"sync"
	"time"

	"github.com/deltran/coordinator/internal/domain"
	"github.com/deltran/coordinator/internal/ledger"
	"github.com/deltran/coordinator/internal/ports"
	"github.com/deltran/coordinator/internal/saga"
)

// batchMaxSize and batchTimeout bound how long a ledger event can sit
// unpublished: the batch is published once it holds batchMaxSize events or
// batchTimeout after the last Save, whichever comes first, and
// TransactionRepository.Close flushes whatever is still buffered.
const (
	batchMaxSize = 20
	batchTimeout = 2 * time.Second
)

// SagaRepository is an in-memory saga.Repository.
type SagaRepository struct {
	mu   sync.Mutex
	byID map[string]*saga.SagaInstance
	bus  ports.EventPublisher // optional; nil is valid (events just aren't forwarded)
}

// NewSagaRepository builds a SagaRepository. bus may be nil.
func NewSagaRepository(bus ports.EventPublisher) *SagaRepository {
	return &SagaRepository{byID: map[string]*saga.SagaInstance{}, bus: bus}
}

func (r *SagaRepository) Save(ctx context.Context, s *saga.SagaInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[s.SagaID.String()]
	if ok && existing.Version != s.Version {
		return &ports.StaleVersionError{AggregateID: s.SagaID.String(), ExpectedVersion: s.Version, ActualVersion: existing.Version}
	}
	s.Version++
	events := s.DrainEvents()

	cp := *s
	cp.Steps = append([]saga.SagaStep(nil), s.Steps...)
	r.byID[s.SagaID.String()] = &cp

	if r.bus != nil && len(events) > 0 {
		return r.bus.Publish(ctx, events)
	}
	return nil
}

func (r *SagaRepository) FindByID(ctx context.Context, id string) (*saga.SagaInstance, error) {
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

func (r *SagaRepository) FindNonTerminal(ctx context.Context) ([]*saga.SagaInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*saga.SagaInstance
	for _, s := range r.byID {
		if !s.Status.IsTerminal() {
			cp := *s
			cp.Steps = append([]saga.SagaStep(nil), s.Steps...)
			out = append(out, &cp)
		}
	}
	return out, nil
}

// TransactionRepository is an in-memory ledger.Repository. Outbox events
// drain through an EventBatcher rather than straight to bus.Publish, so a
// burst of ledger writes (a batch clearing run, a recovery sweep) submits
// as a handful of batched Publish calls instead of one per transaction.
type TransactionRepository struct {
	mu          sync.Mutex
	byID        map[string]*ledger.Transaction
	byPaymentID map[string]string // paymentID -> transactionID
	bus         ports.EventPublisher
	batcher     *ledger.EventBatcher
}

// NewTransactionRepository builds a TransactionRepository. bus may be nil,
// in which case events are dropped rather than batched (matching
// SagaRepository and PaymentRepository's nil-bus convention).
func NewTransactionRepository(bus ports.EventPublisher) *TransactionRepository {
	r := &TransactionRepository{
		byID:        map[string]*ledger.Transaction{},
		byPaymentID: map[string]string{},
		bus:         bus,
	}
	if bus != nil {
		r.batcher = ledger.NewEventBatcher(batchMaxSize, batchTimeout, func(events []domain.DomainEvent) error {
			return bus.Publish(context.Background(), events)
		})
	}
	return r
}

func (r *TransactionRepository) Save(ctx context.Context, txn *ledger.Transaction) error {
	if err := txn.CheckBalance(); err != nil {
		return err
	}
	r.mu.Lock()
	events := txn.DrainEvents()
	r.byID[txn.TransactionID.String()] = txn
	r.byPaymentID[txn.PaymentID.String()] = txn.TransactionID.String()
	r.mu.Unlock()

	if r.batcher == nil {
		return nil
	}
	for _, e := range events {
		if err := r.batcher.Add(e); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes any events still buffered in the batcher. Call it during
// shutdown so a partially-filled batch is not lost.
func (r *TransactionRepository) Close() error {
	if r.batcher == nil {
		return nil
	}
	return r.batcher.Close()
}

func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.byID[id]
	if !ok {
		return nil, &ports.NotFoundError{AggregateID: id}
	}
	return txn, nil
}

func (r *TransactionRepository) FindByPaymentID(ctx context.Context, paymentID string) (*ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPaymentID[paymentID]
	if !ok {
		return nil, &ports.NotFoundError{AggregateID: paymentID}
	}
	return r.byID[id], nil
}

// PaymentRepository is an in-memory implementation of internal/api's
// PaymentRepository seam: idempotency-key dedup, a paymentId->sagaId index,
// and the Payment aggregate store.
type PaymentRepository struct {
	mu       sync.Mutex
	byKey    map[string]domain.PaymentId      // tenantId+"/"+key -> paymentId
	sagas    map[string]domain.SagaId         // paymentId -> sagaId
	payments map[string]*domain.Payment       // paymentId -> Payment
	bus      ports.EventPublisher             // optional; nil is valid
}

// NewPaymentRepository builds an empty PaymentRepository. bus may be nil.
func NewPaymentRepository(bus ports.EventPublisher) *PaymentRepository {
	return &PaymentRepository{
		byKey:    map[string]domain.PaymentId{},
		sagas:    map[string]domain.SagaId{},
		payments: map[string]*domain.Payment{},
		bus:      bus,
	}
}

func (r *PaymentRepository) SavePayment(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	events := payment.DrainEvents()
	cp := *payment
	r.payments[payment.PaymentId.String()] = &cp
	r.mu.Unlock()

	if r.bus != nil && len(events) > 0 {
		return r.bus.Publish(ctx, events)
	}
	return nil
}

func (r *PaymentRepository) FindPayment(ctx context.Context, paymentID domain.PaymentId) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[paymentID.String()]
	if !ok {
		return nil, &ports.NotFoundError{AggregateID: paymentID.String()}
	}
	cp := *p
	return &cp, nil
}

func (r *PaymentRepository) ReserveIdempotencyKey(ctx context.Context, tenant domain.TenantContext, key string, paymentID domain.PaymentId) (domain.PaymentId, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := tenant.TenantID + "/" + key
	if existing, ok := r.byKey[k]; ok {
		return existing, true, nil
	}
	r.byKey[k] = paymentID
	return "", false, nil
}

func (r *PaymentRepository) SavePaymentSaga(ctx context.Context, paymentID domain.PaymentId, sagaID domain.SagaId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sagas[paymentID.String()] = sagaID
	return nil
}

func (r *PaymentRepository) FindSagaID(ctx context.Context, paymentID domain.PaymentId) (domain.SagaId, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sagaID, ok := r.sagas[paymentID.String()]
	if !ok {
		return "", &ports.NotFoundError{AggregateID: paymentID.String()}
	}
	return sagaID, nil
}
