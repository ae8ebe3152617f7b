package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/deltran/coordinator/internal/domain"
	"github.com/deltran/coordinator/internal/errs"
	"github.com/deltran/coordinator/internal/ledger"
	"github.com/deltran/coordinator/internal/ports"
)

// AccountUpdateRequest is the input an ACCOUNT_UPDATE saga adjusts a single
// account balance from (§4.5: "share the same machinery" as
// PAYMENT_PROCESSING, with a shorter step sequence appropriate to a
// standalone balance adjustment rather than a two-sided transfer).
type AccountUpdateRequest struct {
	Account domain.AccountNumber
	Amount  domain.Money
	Tenant  domain.TenantContext
}

type accountUpdateWorkspace struct {
	req     AccountUpdateRequest
	applied bool
}

// NewAccountUpdateTemplate builds the two-step ACCOUNT_UPDATE template:
// reserve the adjustment against the account, then notify. Grounded on the
// same AccountAdapter seam PAYMENT_PROCESSING's ReserveFunds step uses.
func NewAccountUpdateTemplate(accounts ports.AccountAdapter, notify ports.NotificationPort, req AccountUpdateRequest) Template {
	ws := &accountUpdateWorkspace{req: req}

	return Template{
		Name:             TemplateAccountUpdate,
		WallClockTimeout: 60 * time.Second,
		Steps: []StepDefinition{
			{
				StepID:      "apply-adjustment",
				StepName:    "ApplyAdjustment",
				ServiceName: "AccountAdapter",
				Order:       1,
				Timeout:     30 * time.Second,
				Action: func(ctx context.Context, sagaID, stepID string) (any, error) {
					if err := accounts.Reserve(ctx, ws.req.Account, ws.req.Amount, sagaID, stepID); err != nil {
						return nil, classifyPortError(err)
					}
					ws.applied = true
					return nil, nil
				},
				Compensation: func(ctx context.Context, sagaID, stepID string, result any) (any, error) {
					if !ws.applied {
						return nil, nil
					}
					if err := accounts.Release(ctx, ws.req.Account, ws.req.Amount, sagaID, stepID); err != nil {
						return nil, errs.CompensationFailure(err)
					}
					return ws.req.Amount, nil
				},
				HasCompensation: true,
			},
			{
				StepID:      "notify",
				StepName:    "Notify",
				ServiceName: "NotificationPort",
				Order:       2,
				Timeout:     10 * time.Second,
				Action: func(ctx context.Context, sagaID, stepID string) (any, error) {
					if notify == nil {
						return nil, nil
					}
					_ = notify.Send(ctx, ws.req.Account.String(), "AccountUpdated", map[string]any{
						"amount": ws.req.Amount.String(),
					})
					return nil, nil
				},
			},
		},
	}
}

// TransactionReversalRequest identifies a previously-cleared transaction to
// unwind.
type TransactionReversalRequest struct {
	TransactionID      string
	ClearingReference  string
	Reason             string
}

// NewTransactionReversalTemplate builds the TRANSACTION_REVERSAL template:
// reverse the clearing submission, mark the ledger transaction FAILED with
// the reversal reason, then notify. Reversal has no compensation of its
// own — undoing an undo is out of scope (§9 Non-goals: no nested sagas).
func NewTransactionReversalTemplate(clearing ports.ClearingAdapter, repo ledger.Repository, notify ports.NotificationPort, req TransactionReversalRequest, now func() time.Time) Template {
	if now == nil {
		now = time.Now
	}

	return Template{
		Name:             TemplateTransactionReversal,
		WallClockTimeout: 60 * time.Second,
		Steps: []StepDefinition{
			{
				StepID:      "reverse-clearing",
				StepName:    "ReverseClearing",
				ServiceName: "ClearingAdapter",
				Order:       1,
				Timeout:     30 * time.Second,
				Action: func(ctx context.Context, sagaID, stepID string) (any, error) {
					if err := clearing.Reverse(ctx, req.ClearingReference, sagaID, stepID); err != nil {
						return nil, classifyPortError(err)
					}
					return nil, nil
				},
			},
			{
				StepID:      "fail-transaction",
				StepName:    "FailTransaction",
				ServiceName: "TransactionCore",
				Order:       2,
				Timeout:     30 * time.Second,
				Action: func(ctx context.Context, sagaID, stepID string) (any, error) {
					txn, err := repo.FindByID(ctx, req.TransactionID)
					if err != nil {
						return nil, classifyPortError(err)
					}
					if txn == nil {
						return nil, errs.Invariant(fmt.Errorf("transaction %s not found for reversal", req.TransactionID))
					}
					if err := txn.Fail(now(), req.Reason); err != nil {
						return nil, errs.Invariant(err)
					}
					if err := repo.Save(ctx, txn); err != nil {
						return nil, classifyPortError(err)
					}
					return nil, nil
				},
			},
			{
				StepID:      "notify",
				StepName:    "Notify",
				ServiceName: "NotificationPort",
				Order:       3,
				Timeout:     10 * time.Second,
				Action: func(ctx context.Context, sagaID, stepID string) (any, error) {
					if notify == nil {
						return nil, nil
					}
					_ = notify.Send(ctx, req.TransactionID, "TransactionReversed", map[string]any{"reason": req.Reason})
					return nil, nil
				},
			},
		},
	}
}

// SettlementRequest identifies a clearing submission to wait for.
type SettlementRequest struct {
	ClearingReference string
	Timeout           time.Duration
}

type settlementWorkspace struct {
	settled bool
}

// NewSettlementTemplate builds the standalone SETTLEMENT template: wait for
// settlement confirmation and notify. The wait step's compensation calls
// Cancel only when settlement was not confirmed; since that step completes
// only on a confirmed settlement, unwinding after it cancels nothing.
func NewSettlementTemplate(settlement ports.SettlementPort, notify ports.NotificationPort, req SettlementRequest) Template {
	ws := &settlementWorkspace{}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return Template{
		Name:             TemplateSettlement,
		WallClockTimeout: timeout + 30*time.Second,
		Steps: []StepDefinition{
			{
				StepID:      "await-settlement",
				StepName:    "AwaitSettlement",
				ServiceName: "SettlementPort",
				Order:       1,
				Timeout:     timeout,
				Action: func(ctx context.Context, sagaID, stepID string) (any, error) {
					result, err := settlement.WaitFor(ctx, req.ClearingReference, timeout)
					if err != nil {
						return nil, classifyPortError(err)
					}
					if !result.Settled {
						return nil, errs.Permanent(fmt.Errorf("settlement not confirmed: %s", result.Reason))
					}
					ws.settled = true
					return result, nil
				},
				Compensation: func(ctx context.Context, sagaID, stepID string, result any) (any, error) {
					if ws.settled {
						return nil, nil
					}
					if err := settlement.Cancel(ctx, req.ClearingReference); err != nil {
						return nil, errs.CompensationFailure(err)
					}
					return req.ClearingReference, nil
				},
				HasCompensation: true,
			},
			{
				StepID:      "notify",
				StepName:    "Notify",
				ServiceName: "NotificationPort",
				Order:       2,
				Timeout:     10 * time.Second,
				Action: func(ctx context.Context, sagaID, stepID string) (any, error) {
					if notify == nil {
						return nil, nil
					}
					_ = notify.Send(ctx, req.ClearingReference, "SettlementConfirmed", nil)
					return nil, nil
				},
			},
		},
	}
}

// ReconciliationRequest names a transaction to cross-check against the
// clearing system's record of it.
type ReconciliationRequest struct {
	TransactionID         string
	ExpectedClearingState string
}

// NewReconciliationTemplate builds the read-only RECONCILIATION template: a
// single step comparing the ledger's record of a transaction against the
// clearing system's. It performs no mutation, so its step carries no
// compensation.
func NewReconciliationTemplate(repo ledger.Repository, req ReconciliationRequest) Template {
	return Template{
		Name:             TemplateReconciliation,
		WallClockTimeout: 30 * time.Second,
		Steps: []StepDefinition{
			{
				StepID:      "compare-ledger-state",
				StepName:    "CompareLedgerState",
				ServiceName: "TransactionCore",
				Order:       1,
				Timeout:     15 * time.Second,
				Action: func(ctx context.Context, sagaID, stepID string) (any, error) {
					txn, err := repo.FindByID(ctx, req.TransactionID)
					if err != nil {
						return nil, classifyPortError(err)
					}
					if txn == nil {
						return nil, errs.Permanent(fmt.Errorf("transaction %s not found during reconciliation", req.TransactionID))
					}
					if string(txn.Status) != req.ExpectedClearingState {
						return nil, errs.Permanent(fmt.Errorf(
							"reconciliation mismatch for %s: ledger=%s clearing=%s",
							req.TransactionID, txn.Status, req.ExpectedClearingState,
						))
					}
					return txn.Status, nil
				},
			},
		},
	}
}

// BatchItem is one payment within a BATCH_PROCESSING saga.
type BatchItem struct {
	Account domain.AccountNumber
	Amount  domain.Money
}

type batchWorkspace struct {
	items    []BatchItem
	reserved []BatchItem
}

// NewBatchProcessingTemplate builds the BATCH_PROCESSING template: reserve
// funds for every item in one step (fan-out within the step body rather
// than one SagaStep per item, since step granularity is fixed at template
// authoring time, not at instance-count), then notify. Compensation
// releases only the items that were actually reserved before a later item
// failed, preserving the same reverse-safety PAYMENT_PROCESSING's
// ReserveFunds/Release pair gives a single payment.
func NewBatchProcessingTemplate(accounts ports.AccountAdapter, notify ports.NotificationPort, items []BatchItem) Template {
	ws := &batchWorkspace{items: items}

	return Template{
		Name:             TemplateBatchProcessing,
		WallClockTimeout: 120 * time.Second,
		Steps: []StepDefinition{
			{
				StepID:      "reserve-batch",
				StepName:    "ReserveBatch",
				ServiceName: "AccountAdapter",
				Order:       1,
				Timeout:     90 * time.Second,
				Action: func(ctx context.Context, sagaID, stepID string) (any, error) {
					for i, item := range ws.items {
						itemStepID := fmt.Sprintf("%s-item-%d", stepID, i)
						if err := accounts.Reserve(ctx, item.Account, item.Amount, sagaID, itemStepID); err != nil {
							return nil, classifyPortError(err)
						}
						ws.reserved = append(ws.reserved, item)
					}
					return len(ws.reserved), nil
				},
				Compensation: func(ctx context.Context, sagaID, stepID string, result any) (any, error) {
					var firstErr error
					released := 0
					for i, item := range ws.reserved {
						itemStepID := fmt.Sprintf("%s-item-%d", stepID, i)
						if err := accounts.Release(ctx, item.Account, item.Amount, sagaID, itemStepID); err != nil && firstErr == nil {
							firstErr = err
							continue
						}
						released++
					}
					if firstErr != nil {
						return nil, errs.CompensationFailure(firstErr)
					}
					return released, nil
				},
				HasCompensation: true,
			},
			{
				StepID:      "notify",
				StepName:    "Notify",
				ServiceName: "NotificationPort",
				Order:       2,
				Timeout:     10 * time.Second,
				Action: func(ctx context.Context, sagaID, stepID string) (any, error) {
					if notify == nil {
						return nil, nil
					}
					_ = notify.Send(ctx, sagaID, "BatchReserved", map[string]any{"items": len(ws.items)})
					return nil, nil
				},
			},
		},
	}
}
