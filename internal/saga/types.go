// Package saga implements the Saga Orchestrator (§4.5): the top-level
// coordinator that drives a payment through an ordered list of steps,
// compensating in reverse on failure. Grounded on
// other_examples/…orchestration/saga_manager.go (Azure containerization-assist)
// for the SagaManager/Saga/SagaStep shape and the
// executeSaga/executeStep/failSaga/startCompensation control flow, combined
// with the teacher's gateway-go orchestration.TransactionOrchestrator
// step sequence for the concrete PAYMENT_PROCESSING step bodies.
package saga

import (
	"time"

	"github.com/deltran/coordinator/internal/domain"
)

// Status is a SagaInstance's lifecycle state (§4.5).
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusInProgress   Status = "IN_PROGRESS"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
)

// IsTerminal reports whether s admits no further mutation (§4.5: "Once
// terminal, no step may be mutated").
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCompensated || s == StatusFailed
}

// StepStatus is a SagaStep's lifecycle state (§3).
type StepStatus string

const (
	StepPending      StepStatus = "PENDING"
	StepInProgress   StepStatus = "IN_PROGRESS"
	StepCompleted    StepStatus = "COMPLETED"
	StepFailed       StepStatus = "FAILED"
	StepSkipped      StepStatus = "SKIPPED"
	StepCompensating StepStatus = "COMPENSATING"
	StepCompensated  StepStatus = "COMPENSATED"
)

// SagaStep is one step of a running saga (§3). COMPENSATING/COMPENSATED are
// only reachable from COMPLETED.
type SagaStep struct {
	StepID              string
	StepName            string
	ServiceName         string
	Order               int
	Status              StepStatus
	Result              any
	FailureReason       string
	CompensationResult  any
	CompensationFailed  bool
	RetryCount          int
}

// SagaInstance is the saga aggregate (§3). It owns its SagaStep records
// exclusively; every mutation appends a DomainEvent to the embedded
// EventBuffer, drained by the repository on save (outbox pattern, §4.1).
// Held distinguishes a routing HOLD_PAYMENT outcome from an ordinary
// failure: both compensate the same way, but §7 requires a held payment to
// surface as HELD with its decisionReason rather than FAILED.
type SagaInstance struct {
	domain.EventBuffer

	SagaID               domain.SagaId
	TemplateName         string
	Tenant               domain.TenantContext
	BusinessKey          string
	CorrelationID        string
	Status               Status
	Steps                []SagaStep
	CurrentStep          int
	TotalSteps           int
	CompletedSteps       int
	CompensationFailures int
	FailureReason        string
	Held                 bool
	StartedAt            time.Time
	CompletedAt          time.Time
	Version              int
}

// stepByID returns a pointer to the named step, or nil.
func (s *SagaInstance) stepByID(stepID string) *SagaStep {
	for i := range s.Steps {
		if s.Steps[i].StepID == stepID {
			return &s.Steps[i]
		}
	}
	return nil
}
