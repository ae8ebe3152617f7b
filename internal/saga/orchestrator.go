package saga

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deltran/coordinator/internal/domain"
	"github.com/deltran/coordinator/internal/errs"
	"github.com/deltran/coordinator/internal/resilience"
)

// Orchestrator drives SagaInstances through a Template's steps, compensating
// in reverse on failure (§4.5). Grounded on
// other_examples/…orchestration/saga_manager.go's executeSaga/executeStep/
// failSaga/startCompensation control flow.
type Orchestrator struct {
	repo        Repository
	retryConfig *resilience.RetryConfig
	logger      *zap.Logger
}

// NewOrchestrator builds an Orchestrator. A nil retryConfig falls back to
// resilience.DefaultRetryConfig (base 1s, factor 2, cap 30s, 3 attempts).
func NewOrchestrator(repo Repository, retryConfig *resilience.RetryConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryConfig == nil {
		retryConfig = resilience.DefaultRetryConfig(logger)
	}
	return &Orchestrator{repo: repo, retryConfig: retryConfig, logger: logger}
}

// StartSaga creates a new SagaInstance in STARTED for template and persists
// it before any step runs, so crash recovery can find it even if the
// process dies before the first step completes.
func (o *Orchestrator) StartSaga(ctx context.Context, template Template, tenant domain.TenantContext, businessKey, correlationID string, now time.Time) (*SagaInstance, error) {
	sagaID, err := domain.NewSagaId(uuid.New().String())
	if err != nil {
		return nil, err
	}

	steps := make([]SagaStep, len(template.Steps))
	for i, sd := range template.Steps {
		steps[i] = SagaStep{
			StepID:      sd.StepID,
			StepName:    sd.StepName,
			ServiceName: sd.ServiceName,
			Order:       sd.Order,
			Status:      StepPending,
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	saga := &SagaInstance{
		SagaID:        sagaID,
		TemplateName:  template.Name,
		Tenant:        tenant,
		BusinessKey:   businessKey,
		CorrelationID: correlationID,
		Status:        StatusStarted,
		Steps:         steps,
		TotalSteps:    len(steps),
		StartedAt:     now,
	}
	saga.emit(EventSagaStarted, now, SagaStartedPayload{header: saga.header(now), TemplateName: template.Name})

	if err := o.repo.Save(ctx, saga); err != nil {
		return nil, err
	}
	return saga, nil
}

// Event type discriminants, exported so consumers of Repository-drained
// events can switch on them without importing unexported payload types.
const (
	EventSagaStarted             = "SagaStarted"
	EventSagaStepExecuted        = "SagaStepExecuted"
	EventSagaStepCompleted       = "SagaStepCompleted"
	EventSagaStepFailed          = "SagaStepFailed"
	EventSagaCompensationStarted = "SagaCompensationStarted"
	EventSagaStepCompensated     = "SagaStepCompensated"
	EventSagaCompensated         = "SagaCompensated"
	EventSagaCompleted           = "SagaCompleted"
)

// Run executes template's steps against saga from its current position,
// compensating in reverse order on failure, until saga reaches a terminal
// status. Forward steps run at-least-once: a crash-and-resume replays a
// dispatched-but-unconfirmed step, relying on the step's port being
// idempotent on (sagaId, stepId) (§4.5).
func (o *Orchestrator) Run(ctx context.Context, saga *SagaInstance, template Template, now func() time.Time) error {
	if saga.Status == StatusStarted {
		saga.Status = StatusInProgress
	}

	for {
		switch saga.Status {
		case StatusInProgress:
			step, def, ok := nextPendingStep(saga, template)
			if !ok {
				if err := o.completeSaga(ctx, saga, now()); err != nil {
					return err
				}
				continue
			}
			if err := o.executeStep(ctx, saga, step, def, now); err != nil {
				if err := o.failSaga(ctx, saga, step.StepID, err, now()); err != nil {
					return err
				}
			}
			continue

		case StatusCompensating:
			if err := o.compensateNextStep(ctx, saga, template, now); err != nil {
				return err
			}
			continue

		default:
			return nil
		}
	}
}

func nextPendingStep(saga *SagaInstance, template Template) (*SagaStep, *StepDefinition, bool) {
	var lowest *SagaStep
	for i := range saga.Steps {
		if saga.Steps[i].Status != StepPending {
			continue
		}
		if lowest == nil || saga.Steps[i].Order < lowest.Order {
			lowest = &saga.Steps[i]
		}
	}
	if lowest == nil {
		return nil, nil, false
	}
	for i := range template.Steps {
		if template.Steps[i].StepID == lowest.StepID {
			return lowest, &template.Steps[i], true
		}
	}
	return nil, nil, false
}

// executeStep dispatches one step, retrying Transient failures under the
// orchestrator's backoff policy (§4.5, §7). A Permanent or InvariantViolation
// failure (or a Transient failure that exhausts retries) is returned to the
// caller so Run can transition the saga into compensation or FAILED.
func (o *Orchestrator) executeStep(ctx context.Context, saga *SagaInstance, step *SagaStep, def *StepDefinition, now func() time.Time) error {
	step.Status = StepInProgress
	saga.emit(EventSagaStepExecuted, now(), SagaStepExecutedPayload{
		header:   saga.header(now()),
		StepID:   step.StepID,
		StepName: step.StepName,
	})
	if err := o.repo.Save(ctx, saga); err != nil {
		return err
	}

	stepCtx := ctx
	var cancel context.CancelFunc
	if def.Timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}

	result, attempts, err := retryWithResult(stepCtx, o.retryConfig, func(c context.Context) (any, error) {
		return def.Action(c, saga.SagaID.String(), step.StepID)
	})
	step.RetryCount = attempts - 1
	if attempts < 1 {
		step.RetryCount = 0
	}

	if err != nil {
		step.Status = StepFailed
		step.FailureReason = err.Error()
		saga.emit(EventSagaStepFailed, now(), SagaStepFailedPayload{
			header: saga.header(now()),
			StepID: step.StepID,
			Reason: err.Error(),
		})
		if saveErr := o.repo.Save(ctx, saga); saveErr != nil {
			return saveErr
		}
		return err
	}

	step.Status = StepCompleted
	step.Result = result
	saga.CompletedSteps++
	saga.emit(EventSagaStepCompleted, now(), SagaStepCompletedPayload{
		header: saga.header(now()),
		StepID: step.StepID,
	})
	return o.repo.Save(ctx, saga)
}

// failSaga records the triggering failure and decides whether to begin
// compensation or terminate immediately. Only an InvariantViolation skips
// compensation outright (the aggregate is suspect); every other failure
// enters COMPENSATING even when no step has completed yet — compensating an
// empty set of steps still walks through COMPENSATING to COMPENSATED rather
// than short-circuiting to FAILED, so a payment rejected at Validate still
// reports the COMPENSATED lifecycle a later step's failure would produce.
// A routing HOLD_PAYMENT outcome (ErrPaymentHeld) follows the same
// compensating path but is flagged via Held so the caller can distinguish
// it from an ordinary failure (§7).
func (o *Orchestrator) failSaga(ctx context.Context, saga *SagaInstance, failedStepID string, cause error, now time.Time) error {
	saga.FailureReason = cause.Error()
	saga.Held = errors.Is(cause, ErrPaymentHeld)

	if errs.IsInvariantViolation(cause) {
		saga.Status = StatusFailed
		saga.CompletedAt = now
		return o.repo.Save(ctx, saga)
	}

	saga.Status = StatusCompensating
	saga.emit(EventSagaCompensationStarted, now, SagaCompensationStartedPayload{
		header:       saga.header(now),
		FailedStepID: failedStepID,
	})
	return o.repo.Save(ctx, saga)
}

// compensateNextStep undoes the highest-Order COMPLETED step not yet
// compensated. Once no COMPLETED step remains, it terminates the saga into
// COMPENSATED or FAILED via finishCompensation.
func (o *Orchestrator) compensateNextStep(ctx context.Context, saga *SagaInstance, template Template, now func() time.Time) error {
	step, def, ok := nextCompensatableStep(saga, template)
	if !ok {
		return o.finishCompensation(ctx, saga, now())
	}

	step.Status = StepCompensating
	if err := o.repo.Save(ctx, saga); err != nil {
		return err
	}

	skipped := !def.HasCompensation
	var compErr error
	var compResult any
	if !skipped {
		compResult, compErr = def.Compensation(ctx, saga.SagaID.String(), step.StepID, step.Result)
	}

	t := now()
	if compErr != nil {
		step.Status = StepFailed
		step.CompensationFailed = true
		saga.CompensationFailures++
		saga.emit(EventSagaStepCompensated, t, SagaStepCompensatedPayload{
			header:  saga.header(t),
			StepID:  step.StepID,
			Skipped: false,
			Failed:  true,
		})
		return o.repo.Save(ctx, saga)
	}

	step.Status = StepCompensated
	step.CompensationResult = compResult
	saga.emit(EventSagaStepCompensated, t, SagaStepCompensatedPayload{
		header:  saga.header(t),
		StepID:  step.StepID,
		Skipped: skipped,
		Failed:  false,
	})
	return o.repo.Save(ctx, saga)
}

func nextCompensatableStep(saga *SagaInstance, template Template) (*SagaStep, *StepDefinition, bool) {
	var highest *SagaStep
	for i := range saga.Steps {
		if saga.Steps[i].Status != StepCompleted {
			continue
		}
		if highest == nil || saga.Steps[i].Order > highest.Order {
			highest = &saga.Steps[i]
		}
	}
	if highest == nil {
		return nil, nil, false
	}
	for i := range template.Steps {
		if template.Steps[i].StepID == highest.StepID {
			return highest, &template.Steps[i], true
		}
	}
	return nil, nil, false
}

// finishCompensation terminates a COMPENSATING saga: FAILED if any
// compensation failed along the way (§4.5: "any compensation failure forces
// terminal FAILED, never COMPENSATED"), otherwise COMPENSATED.
func (o *Orchestrator) finishCompensation(ctx context.Context, saga *SagaInstance, now time.Time) error {
	saga.CompletedAt = now
	if saga.CompensationFailures > 0 {
		saga.Status = StatusFailed
		return o.repo.Save(ctx, saga)
	}
	saga.Status = StatusCompensated
	saga.emit(EventSagaCompensated, now, SagaCompensatedPayload{header: saga.header(now)})
	return o.repo.Save(ctx, saga)
}

func (o *Orchestrator) completeSaga(ctx context.Context, saga *SagaInstance, now time.Time) error {
	saga.Status = StatusCompleted
	saga.CompletedAt = now
	saga.emit(EventSagaCompleted, now, SagaCompletedPayload{header: saga.header(now)})
	return o.repo.Save(ctx, saga)
}

// RecoverInFlight resumes every non-terminal saga found by the repository,
// re-running Run against template for each (§4.5 crash recovery).
// Callers typically invoke this once at startup, one goroutine per recovered
// saga or sequentially for a small fleet.
func (o *Orchestrator) RecoverInFlight(ctx context.Context, templateFor func(name string) (Template, error), now func() time.Time) error {
	sagas, err := o.repo.FindNonTerminal(ctx)
	if err != nil {
		return err
	}
	for _, s := range sagas {
		template, err := templateFor(s.TemplateName)
		if err != nil {
			return fmt.Errorf("saga %s: %w", s.SagaID, err)
		}
		if err := o.Run(ctx, s, template, now); err != nil {
			return fmt.Errorf("saga %s: %w", s.SagaID, err)
		}
	}
	return nil
}
