package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deltran/coordinator/internal/domain"
	"github.com/deltran/coordinator/internal/errs"
	"github.com/deltran/coordinator/internal/ledger"
	"github.com/deltran/coordinator/internal/ports"
	"github.com/deltran/coordinator/internal/routing"
	"github.com/deltran/coordinator/internal/validation"
)

// ErrPaymentHeld marks a routing decision that held the payment rather than
// approving or rejecting it outright (§4.3 step 5: "HOLD_PAYMENT sets
// held=true with decisionReason"). It is wrapped as a Permanent step
// failure like a rejection — the saga still compensates the same way — but
// the orchestrator records it separately on SagaInstance.Held so a held
// payment surfaces as HELD rather than FAILED (§7).
var ErrPaymentHeld = errors.New("payment held by routing decision")

// PaymentProcessingDeps wires the ports and engines the PAYMENT_PROCESSING
// template's eight steps call through (§4.5). The step bodies below are
// adapted from the teacher's
// gateway-go/internal/orchestration.TransactionOrchestrator.ProcessTransfer
// linear step sequence (compliance -> risk -> liquidity -> obligation ->
// token -> notify), re-pointed onto this core's five components.
type PaymentProcessingDeps struct {
	ValidationRules ports.ValidationRulesPort
	Validation      *validation.Engine
	RoutingRules    ports.RoutingRulesPort
	Routing         *routing.Engine
	Accounts        ports.AccountAdapter
	Ledger          ledger.Repository
	Clearing        ports.ClearingAdapter
	Settlement      ports.SettlementPort
	Notification    ports.NotificationPort
	Now             func() time.Time
}

// PaymentRequest is the input a PAYMENT_PROCESSING saga is instantiated
// from — the same shape InitiatePayment accepts (§6).
type PaymentRequest struct {
	PaymentId          domain.PaymentId
	TransactionID      domain.TransactionId
	Tenant             domain.TenantContext
	SourceAccount      domain.AccountNumber
	DestinationAccount domain.AccountNumber
	Amount             domain.Money
	Reference          string
	Type               domain.PaymentType
	Priority           int
}

// paymentWorkspace holds the values each PAYMENT_PROCESSING step produces
// for a later step or a compensation to reference. It replaces the
// teacher's ORM-entity-style mutable state with a plain struct scoped to a
// single saga execution (§9: "mutable domain-event buffer on aggregates"
// source pattern, re-architected as an explicit local changeset rather
// than a globally mutable aggregate field).
type paymentWorkspace struct {
	req                PaymentRequest
	validationResult   *validation.ValidationResult
	reservedAmount     domain.Money
	decision           *routing.Decision
	txn                *ledger.Transaction
	clearingReference  string
	clearingAcked      bool
	settled            bool
}

// NewPaymentProcessingTemplate builds the eight-step PAYMENT_PROCESSING
// template for one request (§4.5 steps 1-8).
func NewPaymentProcessingTemplate(deps PaymentProcessingDeps, req PaymentRequest) Template {
	ws := &paymentWorkspace{req: req}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return Template{
		Name:             TemplatePaymentProcessing,
		WallClockTimeout: 300 * time.Second,
		Steps: []StepDefinition{
			{
				StepID:      "validate",
				StepName:    "Validate",
				ServiceName: "ValidationRuleEngine",
				Order:       1,
				Timeout:     30 * time.Second,
				Action:      validateAction(deps, ws, now),
				// No compensation: validation performs no side effect.
			},
			{
				StepID:       "reserve-funds",
				StepName:     "ReserveFunds",
				ServiceName:  "AccountAdapter",
				Order:        2,
				Timeout:      30 * time.Second,
				Action:       reserveFundsAction(deps, ws),
				Compensation: releaseFundsCompensation(deps, ws),
				HasCompensation: true,
			},
			{
				StepID:      "determine-route",
				StepName:    "DetermineRoute",
				ServiceName: "RoutingDecisionEngine",
				Order:       3,
				Timeout:     30 * time.Second,
				Action:      determineRouteAction(deps, ws, now),
				// No compensation: routing evaluation is pure.
			},
			{
				StepID:       "create-transaction",
				StepName:     "CreateTransaction",
				ServiceName:  "TransactionCore",
				Order:        4,
				Timeout:      30 * time.Second,
				Action:       createTransactionAction(deps, ws, now),
				Compensation: failTransactionCompensation(deps, ws, now, "compensation"),
				HasCompensation: true,
			},
			{
				StepID:       "submit-to-clearing",
				StepName:     "SubmitToClearing",
				ServiceName:  "ClearingAdapter",
				Order:        5,
				Timeout:      30 * time.Second,
				Action:       submitToClearingAction(deps, ws, now),
				Compensation: reverseClearingCompensation(deps, ws),
				HasCompensation: true,
			},
			{
				StepID:       "await-settlement",
				StepName:     "AwaitSettlement",
				ServiceName:  "SettlementPort",
				Order:        6,
				Timeout:      60 * time.Second,
				Action:       awaitSettlementAction(deps, ws),
				Compensation: cancelSettlementCompensation(deps, ws),
				HasCompensation: true,
			},
			{
				StepID:       "complete-transaction",
				StepName:     "CompleteTransaction",
				ServiceName:  "TransactionCore",
				Order:        7,
				Timeout:      30 * time.Second,
				Action:       completeTransactionAction(deps, ws, now),
				Compensation: failTransactionCompensation(deps, ws, now, "post-complete-compensate"),
				HasCompensation: true,
			},
			{
				StepID:      "notify",
				StepName:    "Notify",
				ServiceName: "NotificationPort",
				Order:       8,
				Timeout:     10 * time.Second,
				Action:      notifyAction(deps, ws),
				// No compensation: notification is best-effort.
			},
		},
	}
}

func validateAction(deps PaymentProcessingDeps, ws *paymentWorkspace, now func() time.Time) StepAction {
	return func(ctx context.Context, sagaID, stepID string) (any, error) {
		rulesAny, err := deps.ValidationRules.Load(ctx, ws.req.Tenant)
		if err != nil {
			return nil, errs.Transient(err)
		}
		rc, _ := rulesAny.(validation.RuleContext)
		rc.Ctx = ctx

		result, err := deps.Validation.Validate(validation.PaymentRequest{
			PaymentId:          ws.req.PaymentId,
			Tenant:              ws.req.Tenant,
			SourceAccount:      ws.req.SourceAccount,
			DestinationAccount: ws.req.DestinationAccount,
			Amount:             ws.req.Amount,
			Reference:          ws.req.Reference,
			Type:               ws.req.Type,
		}, rc, now())
		if err != nil {
			return nil, errs.Permanent(err)
		}
		ws.validationResult = result

		if result.Status == validation.StatusFailed {
			reason := "validation failed"
			if len(result.FailedRules) > 0 {
				reason = result.FailedRules[0].Reason
			}
			return nil, errs.Permanent(fmt.Errorf("%s", reason))
		}
		return result, nil
	}
}

func reserveFundsAction(deps PaymentProcessingDeps, ws *paymentWorkspace) StepAction {
	return func(ctx context.Context, sagaID, stepID string) (any, error) {
		if err := deps.Accounts.Reserve(ctx, ws.req.SourceAccount, ws.req.Amount, sagaID, stepID); err != nil {
			return nil, classifyPortError(err)
		}
		ws.reservedAmount = ws.req.Amount
		return ws.req.Amount, nil
	}
}

func releaseFundsCompensation(deps PaymentProcessingDeps, ws *paymentWorkspace) StepCompensationFn {
	return func(ctx context.Context, sagaID, stepID string, result any) (any, error) {
		if ws.reservedAmount.IsZero() {
			return nil, nil
		}
		if err := deps.Accounts.Release(ctx, ws.req.SourceAccount, ws.reservedAmount, sagaID, stepID); err != nil {
			return nil, err
		}
		return ws.reservedAmount, nil
	}
}

func determineRouteAction(deps PaymentProcessingDeps, ws *paymentWorkspace, now func() time.Time) StepAction {
	return func(ctx context.Context, sagaID, stepID string) (any, error) {
		rulesAny, err := deps.RoutingRules.LoadActive(ctx, ws.req.Tenant, now())
		if err != nil {
			return nil, errs.Transient(err)
		}
		rules, _ := rulesAny.([]routing.RoutingRule)

		decision, err := deps.Routing.Evaluate(ctx, routing.Request{
			PaymentId:          ws.req.PaymentId,
			Tenant:              ws.req.Tenant,
			Amount:             ws.req.Amount,
			PaymentType:        ws.req.Type,
			SourceAccount:      ws.req.SourceAccount,
			DestinationAccount: ws.req.DestinationAccount,
			Priority:           ws.req.Priority,
			CreatedAt:          now(),
		}, rules)
		if err != nil {
			return nil, errs.Invariant(err)
		}
		ws.decision = &decision

		if decision.Held {
			return nil, errs.Permanent(fmt.Errorf("%w: %s", ErrPaymentHeld, decision.DecisionReason))
		}
		if decision.Rejected {
			return nil, errs.Permanent(fmt.Errorf("routing rejected payment: %s", decision.DecisionReason))
		}
		return decision, nil
	}
}

func createTransactionAction(deps PaymentProcessingDeps, ws *paymentWorkspace, now func() time.Time) StepAction {
	return func(ctx context.Context, sagaID, stepID string) (any, error) {
		txn, err := ledger.NewTransaction(
			ws.req.TransactionID,
			ws.req.PaymentId,
			ws.req.Tenant,
			ws.req.SourceAccount,
			ws.req.DestinationAccount,
			ws.req.Amount,
			now(),
		)
		if err != nil {
			return nil, errs.Invariant(err)
		}
		if err := txn.StartProcessing(now()); err != nil {
			return nil, errs.Invariant(err)
		}
		if err := deps.Ledger.Save(ctx, txn); err != nil {
			return nil, classifyPortError(err)
		}
		ws.txn = txn
		return txn.TransactionID.String(), nil
	}
}

func failTransactionCompensation(deps PaymentProcessingDeps, ws *paymentWorkspace, now func() time.Time, reason string) StepCompensationFn {
	return func(ctx context.Context, sagaID, stepID string, result any) (any, error) {
		if ws.txn == nil || ws.txn.Status.IsTerminal() {
			return nil, nil
		}
		if err := ws.txn.Fail(now(), reason); err != nil {
			return nil, errs.CompensationFailure(err)
		}
		if err := deps.Ledger.Save(ctx, ws.txn); err != nil {
			return nil, errs.CompensationFailure(err)
		}
		return ws.txn.TransactionID.String(), nil
	}
}

func submitToClearingAction(deps PaymentProcessingDeps, ws *paymentWorkspace, now func() time.Time) StepAction {
	return func(ctx context.Context, sagaID, stepID string) (any, error) {
		clearingSystem := "DEFAULT_CLEARING"
		if ws.decision != nil && ws.decision.ClearingSystem != "" {
			clearingSystem = ws.decision.ClearingSystem
		}

		ref, err := deps.Clearing.Submit(ctx, ports.ClearingSubmission{
			TransactionID:  ws.txn.TransactionID.String(),
			PaymentID:      ws.req.PaymentId.String(),
			ClearingSystem: clearingSystem,
			DebitAccount:   ws.req.SourceAccount,
			CreditAccount:  ws.req.DestinationAccount,
			Amount:         ws.req.Amount,
		}, sagaID, stepID)
		if err != nil {
			return nil, classifyPortError(err)
		}
		ws.clearingReference = ref
		ws.clearingAcked = true

		if err := ws.txn.MarkCleared(now(), clearingSystem, ref); err != nil {
			return nil, errs.Invariant(err)
		}
		if err := deps.Ledger.Save(ctx, ws.txn); err != nil {
			return nil, classifyPortError(err)
		}
		return ref, nil
	}
}

func reverseClearingCompensation(deps PaymentProcessingDeps, ws *paymentWorkspace) StepCompensationFn {
	return func(ctx context.Context, sagaID, stepID string, result any) (any, error) {
		if !ws.clearingAcked {
			return nil, nil
		}
		if err := deps.Clearing.Reverse(ctx, ws.clearingReference, sagaID, stepID); err != nil {
			return nil, errs.CompensationFailure(err)
		}
		return ws.clearingReference, nil
	}
}

func awaitSettlementAction(deps PaymentProcessingDeps, ws *paymentWorkspace) StepAction {
	return func(ctx context.Context, sagaID, stepID string) (any, error) {
		result, err := deps.Settlement.WaitFor(ctx, ws.clearingReference, 60*time.Second)
		if err != nil {
			return nil, classifyPortError(err)
		}
		if !result.Settled {
			return nil, errs.Permanent(fmt.Errorf("settlement not confirmed: %s", result.Reason))
		}
		ws.settled = true
		return result, nil
	}
}

func cancelSettlementCompensation(deps PaymentProcessingDeps, ws *paymentWorkspace) StepCompensationFn {
	return func(ctx context.Context, sagaID, stepID string, result any) (any, error) {
		if ws.settled {
			return nil, nil
		}
		if err := deps.Settlement.Cancel(ctx, ws.clearingReference); err != nil {
			return nil, errs.CompensationFailure(err)
		}
		return ws.clearingReference, nil
	}
}

func completeTransactionAction(deps PaymentProcessingDeps, ws *paymentWorkspace, now func() time.Time) StepAction {
	return func(ctx context.Context, sagaID, stepID string) (any, error) {
		if err := ws.txn.Complete(now()); err != nil {
			return nil, errs.Invariant(err)
		}
		if err := deps.Ledger.Save(ctx, ws.txn); err != nil {
			return nil, classifyPortError(err)
		}
		return nil, nil
	}
}

func notifyAction(deps PaymentProcessingDeps, ws *paymentWorkspace) StepAction {
	return func(ctx context.Context, sagaID, stepID string) (any, error) {
		if deps.Notification == nil {
			return nil, nil
		}
		err := deps.Notification.Send(ctx, ws.req.PaymentId.String(), "PaymentCompleted", map[string]any{
			"transactionId": ws.txn.TransactionID.String(),
		})
		// Best-effort: a notification failure never fails the saga.
		if err != nil {
			return nil, nil
		}
		return nil, nil
	}
}

// classifyPortError maps an unclassified port error to Transient: the
// default assumption for external-system calls (core banking, clearing,
// settlement) that haven't already been wrapped by errs is that the
// failure is retryable. This deliberately overrides errs' own default for
// Unclassified errors, which the orchestrator otherwise treats as Permanent
// (§7) — an error nobody tagged should not be retried silently forever.
// Ports that know a given failure is not retryable should return a
// classified error directly rather than relying on this override.
func classifyPortError(err error) error {
	if errs.ClassificationOf(err) != errs.Unclassified {
		return err
	}
	return errs.Transient(err)
}
