// Package api implements the Coordinator facade: the inbound port
// (InitiatePayment, GetPayment, CancelPayment, §6) sitting above the five
// leaf components. It owns idempotency-key deduplication and per-tenant
// in-flight backpressure (§5), grounded on the teacher's
// server.Server.workers/queue worker-pool shape
// (gateway-go/internal/server/server.go), generalized from one global
// queue to one bounded semaphore per tenant.
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deltran/coordinator/internal/domain"
	"github.com/deltran/coordinator/internal/saga"
)

// ErrTooManyInFlight is returned when a tenant's in-flight saga count is
// already at its configured bound and no slot frees up within the
// admission wait (§5's age-bounded eviction, simplified to a bounded wait
// rather than a literal aging queue).
var ErrTooManyInFlight = errors.New("TOO_MANY_IN_FLIGHT")

// ErrAlreadyTerminal is returned by CancelPayment once the underlying saga
// has reached COMPLETED (§6: "Only valid before a saga reaches COMPLETED").
var ErrAlreadyTerminal = errors.New("payment already completed, cannot cancel")

// PaymentRequest is what InitiatePayment accepts (§6).
type PaymentRequest struct {
	SourceAccount      domain.AccountNumber
	DestinationAccount domain.AccountNumber
	Amount             domain.Money
	Type               domain.PaymentType
	Reference          string
	Tenant             domain.TenantContext
	IdempotencyKey     string
	Priority           int
}

// PaymentStatus is what GetPayment returns (§6, §7): the orchestrator never
// leaks low-level errors, so status is one of the payment-facing states
// with `reason` drawn from the saga's failureReason.
type PaymentStatus struct {
	PaymentId      domain.PaymentId
	Status         string
	Reason         string
	DecisionReason string
	ClearingSystem string
}

const (
	PaymentStatusInitiated = "INITIATED"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusHeld      = "HELD"
)

// PaymentRepository is the idempotency and payment->saga lookup seam the
// Coordinator persists through. Declared locally for the same reason as
// ledger.Repository and saga.Repository: its return types are this
// package's own.
type PaymentRepository interface {
	// ReserveIdempotencyKey atomically associates key with paymentID the
	// first time it is seen for tenant, or reports the paymentID already
	// associated with it. Implementations must make this check-and-set
	// atomic: concurrent InitiatePayment calls with the same key must not
	// both observe "first time".
	ReserveIdempotencyKey(ctx context.Context, tenant domain.TenantContext, key string, paymentID domain.PaymentId) (existing domain.PaymentId, alreadyExists bool, err error)
	SavePaymentSaga(ctx context.Context, paymentID domain.PaymentId, sagaID domain.SagaId) error
	FindSagaID(ctx context.Context, paymentID domain.PaymentId) (domain.SagaId, error)
	// SavePayment persists the Payment aggregate's current state (§3), the
	// source of the monotonic INITIATED->VALIDATED->CLEARING->COMPLETED (or
	// ->FAILED/HELD) state machine the saga's own step results drive.
	SavePayment(ctx context.Context, payment *domain.Payment) error
}

// tenantSlot is a per-tenant bounded semaphore admitting at most
// maxInFlight concurrently running sagas for that tenant.
type tenantSlot struct {
	sem chan struct{}
}

// Coordinator is the Coordinator facade.
type Coordinator struct {
	payments      PaymentRepository
	sagas         saga.Repository
	orchestrator  *saga.Orchestrator
	deps          saga.PaymentProcessingDeps
	logger        *zap.Logger
	now           func() time.Time
	maxInFlight   int
	admissionWait time.Duration

	mu      sync.Mutex
	tenants map[string]*tenantSlot
	cancels map[string]context.CancelFunc // sagaId -> cancel
}

// Config bundles the Coordinator's tunables, matching the §6 environment
// knobs `saga.maxInFlightPerTenant` and a bounded admission wait standing
// in for the age-bounded eviction queue.
type Config struct {
	MaxInFlightPerTenant int
	AdmissionWait        time.Duration
}

// DefaultConfig returns maxInFlightPerTenant=64 per §6.
func DefaultConfig() Config {
	return Config{MaxInFlightPerTenant: 64, AdmissionWait: 2 * time.Second}
}

// NewCoordinator builds a Coordinator. now defaults to time.Now.
func NewCoordinator(payments PaymentRepository, sagas saga.Repository, orchestrator *saga.Orchestrator, deps saga.PaymentProcessingDeps, cfg Config, logger *zap.Logger, now func() time.Time) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	if cfg.MaxInFlightPerTenant <= 0 {
		cfg.MaxInFlightPerTenant = 64
	}
	if cfg.AdmissionWait <= 0 {
		cfg.AdmissionWait = 2 * time.Second
	}
	return &Coordinator{
		payments:      payments,
		sagas:         sagas,
		orchestrator:  orchestrator,
		deps:          deps,
		logger:        logger,
		now:           now,
		maxInFlight:   cfg.MaxInFlightPerTenant,
		admissionWait: cfg.AdmissionWait,
		tenants:       map[string]*tenantSlot{},
		cancels:       map[string]context.CancelFunc{},
	}
}

func (c *Coordinator) slotFor(tenantID string) *tenantSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.tenants[tenantID]
	if !ok {
		s = &tenantSlot{sem: make(chan struct{}, c.maxInFlight)}
		c.tenants[tenantID] = s
	}
	return s
}

// InitiatePayment starts a PAYMENT_PROCESSING saga for req and returns its
// PaymentId. Idempotent on req.IdempotencyKey: a repeated call with the same
// key returns the original PaymentId without starting a new saga (§6, §8).
func (c *Coordinator) InitiatePayment(ctx context.Context, req PaymentRequest) (domain.PaymentId, error) {
	slot := c.slotFor(req.Tenant.TenantID)
	admitCtx, cancelAdmit := context.WithTimeout(ctx, c.admissionWait)
	defer cancelAdmit()
	select {
	case slot.sem <- struct{}{}:
	case <-admitCtx.Done():
		return "", ErrTooManyInFlight
	}
	admitted := true
	defer func() {
		if admitted {
			<-slot.sem
		}
	}()

	candidateID, err := domain.NewPaymentId(uuid.New().String())
	if err != nil {
		return "", err
	}
	existing, alreadyExists, err := c.payments.ReserveIdempotencyKey(ctx, req.Tenant, req.IdempotencyKey, candidateID)
	if err != nil {
		return "", err
	}
	if alreadyExists {
		return existing, nil
	}
	paymentID := candidateID
	now := c.now()

	payment, err := domain.NewPayment(paymentID, req.Tenant, req.SourceAccount, req.DestinationAccount, req.Amount, req.Reference, req.Type, req.Priority, "coordinator", req.IdempotencyKey, now)
	if err != nil {
		return "", err
	}
	if err := c.payments.SavePayment(ctx, payment); err != nil {
		return "", err
	}

	txnID, err := domain.NewTransactionId(uuid.New().String())
	if err != nil {
		return "", err
	}

	paymentReq := saga.PaymentRequest{
		PaymentId:          paymentID,
		TransactionID:      txnID,
		Tenant:             req.Tenant,
		SourceAccount:      req.SourceAccount,
		DestinationAccount: req.DestinationAccount,
		Amount:             req.Amount,
		Reference:          req.Reference,
		Type:               req.Type,
		Priority:           req.Priority,
	}
	template := saga.NewPaymentProcessingTemplate(c.deps, paymentReq)

	sagaInstance, err := c.orchestrator.StartSaga(ctx, template, req.Tenant, req.Reference, req.IdempotencyKey, now)
	if err != nil {
		return "", err
	}
	if err := c.payments.SavePaymentSaga(ctx, paymentID, sagaInstance.SagaID); err != nil {
		return "", err
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels[sagaInstance.SagaID.String()] = cancelRun
	c.mu.Unlock()

	// The saga now runs on its own goroutine, which owns releasing the
	// admission slot when it finishes; the deferred release above must not
	// also fire for this call.
	admitted = false

	go func() {
		defer func() {
			<-slot.sem
			c.mu.Lock()
			delete(c.cancels, sagaInstance.SagaID.String())
			c.mu.Unlock()
			cancelRun()
		}()
		if err := c.orchestrator.Run(runCtx, sagaInstance, template, c.now); err != nil {
			c.logger.Error("saga run failed",
				zap.String("sagaId", sagaInstance.SagaID.String()),
				zap.String("paymentId", paymentID.String()),
				zap.Error(err),
			)
			return
		}
		if err := syncPaymentStatus(payment, sagaInstance, c.now()); err != nil {
			c.logger.Error("payment aggregate sync failed",
				zap.String("sagaId", sagaInstance.SagaID.String()),
				zap.String("paymentId", paymentID.String()),
				zap.Error(err),
			)
			return
		}
		if err := c.payments.SavePayment(runCtx, payment); err != nil {
			c.logger.Error("payment aggregate save failed",
				zap.String("sagaId", sagaInstance.SagaID.String()),
				zap.String("paymentId", paymentID.String()),
				zap.Error(err),
			)
		}
	}()

	return paymentID, nil
}

// GetPayment surfaces the current payment status, mapping the saga's
// internal lifecycle onto the payment-facing taxonomy (§7: "the orchestrator
// never leaks low-level errors to callers").
func (c *Coordinator) GetPayment(ctx context.Context, paymentID domain.PaymentId) (PaymentStatus, error) {
	sagaID, err := c.payments.FindSagaID(ctx, paymentID)
	if err != nil {
		return PaymentStatus{}, err
	}
	s, err := c.sagas.FindByID(ctx, sagaID.String())
	if err != nil {
		return PaymentStatus{}, err
	}
	return mapPaymentStatus(paymentID, s), nil
}

// mapPaymentStatus maps a saga's internal lifecycle onto the payment-facing
// taxonomy (§7): a COMPENSATED or cancelled-mid-flight saga appears as FAILED
// with its failureReason; a saga the orchestrator flagged Held (a routing
// HOLD_PAYMENT outcome, §4.3 step 5) appears as HELD with its
// decisionReason instead, regardless of which terminal saga Status it
// eventually reaches once compensation finishes.
func mapPaymentStatus(paymentID domain.PaymentId, s *saga.SagaInstance) PaymentStatus {
	status := PaymentStatus{PaymentId: paymentID, Reason: s.FailureReason}
	switch {
	case s.Held:
		status.Status = PaymentStatusHeld
		status.DecisionReason = s.FailureReason
	case s.Status == saga.StatusCompleted:
		status.Status = PaymentStatusCompleted
	case s.Status == saga.StatusFailed, s.Status == saga.StatusCompensated, s.Status == saga.StatusCompensating:
		status.Status = PaymentStatusFailed
	default:
		status.Status = PaymentStatusInitiated
	}
	return status
}

// syncPaymentStatus replays the Payment aggregate's lifecycle to match the
// terminal state the saga actually reached, driven by which steps actually
// completed rather than assumed: Payment's transitions are monotonic (§3),
// so MarkValidated/MarkClearing are only called for steps that really ran.
func syncPaymentStatus(payment *domain.Payment, s *saga.SagaInstance, now time.Time) error {
	if stepCompleted(s, "validate") {
		if err := payment.MarkValidated(now); err != nil {
			return err
		}
	}
	if stepCompleted(s, "create-transaction") {
		if err := payment.MarkClearing(now); err != nil {
			return err
		}
	}
	switch {
	case s.Held:
		return payment.MarkHeld(s.FailureReason, now)
	case s.Status == saga.StatusCompleted:
		return payment.MarkCompleted(now)
	case s.Status == saga.StatusFailed, s.Status == saga.StatusCompensated, s.Status == saga.StatusCompensating:
		return payment.MarkFailed(s.FailureReason, now)
	default:
		return nil
	}
}

func stepCompleted(s *saga.SagaInstance, stepID string) bool {
	for _, step := range s.Steps {
		if step.StepID == stepID {
			return step.Status == saga.StepCompleted
		}
	}
	return false
}

// CancelPayment requests cancellation of a running saga. Valid only before
// the saga reaches COMPLETED (§6); cancelling an already-compensating or
// already-terminal-failed saga is a no-op ack. reason is not persisted
// directly: cancellation surfaces as ctx.Err() inside the running step,
// which becomes the saga's own FailureReason once failSaga records it.
// Cancellation works by cancelling the saga's run context: the
// orchestrator's retry loop observes ctx.Done() between attempts and
// returns ctx.Err(), an Unclassified error, which is not retried and is not
// an InvariantViolation, so the saga enters COMPENSATING rather than
// aborting without cleanup.
func (c *Coordinator) CancelPayment(ctx context.Context, paymentID domain.PaymentId, reason string) error {
	sagaID, err := c.payments.FindSagaID(ctx, paymentID)
	if err != nil {
		return err
	}
	s, err := c.sagas.FindByID(ctx, sagaID.String())
	if err != nil {
		return err
	}
	if s.Status == saga.StatusCompleted {
		return ErrAlreadyTerminal
	}
	if s.Status.IsTerminal() || s.Status == saga.StatusCompensating {
		return nil
	}

	c.mu.Lock()
	cancel, ok := c.cancels[sagaID.String()]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	c.logger.Info("cancelling saga",
		zap.String("sagaId", sagaID.String()),
		zap.String("paymentId", paymentID.String()),
		zap.String("reason", reason),
	)
	cancel()
	return nil
}
