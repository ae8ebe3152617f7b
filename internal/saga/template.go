package saga

import (
	"context"
	"time"
)

// StepAction performs a step's forward work, keyed by the orchestrator's
// (sagaId, stepId) pair so the port it calls can dedup (§4.5: "Step actions
// are at-least-once; ports must be idempotent keyed by (sagaId, stepId)").
type StepAction func(ctx context.Context, sagaID, stepID string) (any, error)

// StepCompensationFn undoes a previously-COMPLETED step's effect, given
// that step's recorded result (§4.5: "invoked with the original step's
// result so it can reference the work that needs undoing"). Its own return
// value is recorded onto SagaStep.CompensationResult, mirroring how a
// forward StepAction's return value is recorded onto SagaStep.Result.
type StepCompensationFn func(ctx context.Context, sagaID, stepID string, result any) (any, error)

// StepDefinition is one entry of a Template (§4.5).
type StepDefinition struct {
	StepID       string
	StepName     string
	ServiceName  string
	Order        int
	Timeout      time.Duration
	Action       StepAction
	Compensation StepCompensationFn
	// HasCompensation reports whether Compensation is set. A completed
	// step without one makes no undo call during compensation but still
	// emits a SagaStepCompensated audit event marked Skipped.
	HasCompensation bool
}

// Template declares an ordered list of steps a SagaInstance executes
// (§4.5). Additional templates beyond PAYMENT_PROCESSING share this same
// machinery with different step bodies.
type Template struct {
	Name             string
	Steps            []StepDefinition
	WallClockTimeout time.Duration
}

const (
	TemplatePaymentProcessing   = "PAYMENT_PROCESSING"
	TemplateAccountUpdate       = "ACCOUNT_UPDATE"
	TemplateTransactionReversal = "TRANSACTION_REVERSAL"
	TemplateSettlement          = "SETTLEMENT"
	TemplateReconciliation      = "RECONCILIATION"
	TemplateBatchProcessing     = "BATCH_PROCESSING"
)
