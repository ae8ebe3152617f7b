package saga

import (
	"time"

	"github.com/deltran/coordinator/internal/domain"
)

// header is embedded in every saga event payload, carrying the audit
// fields §4.5 mandates: sagaId, businessKey, correlationId, occurredAt.
type header struct {
	SagaID        string
	BusinessKey   string
	CorrelationID string
	OccurredAt    time.Time
}

func (s *SagaInstance) header(now time.Time) header {
	return header{
		SagaID:        s.SagaID.String(),
		BusinessKey:   s.BusinessKey,
		CorrelationID: s.CorrelationID,
		OccurredAt:    now,
	}
}

// SagaStartedPayload is emitted once a saga instance is created.
type SagaStartedPayload struct {
	header
	TemplateName string
}

// SagaStepExecutedPayload is emitted when a step is dispatched.
type SagaStepExecutedPayload struct {
	header
	StepID   string
	StepName string
}

// SagaStepCompletedPayload is emitted when a step succeeds.
type SagaStepCompletedPayload struct {
	header
	StepID string
}

// SagaStepFailedPayload is emitted when a step exhausts its retries or
// fails non-retryably.
type SagaStepFailedPayload struct {
	header
	StepID string
	Reason string
}

// SagaCompensationStartedPayload is emitted once the saga enters
// COMPENSATING.
type SagaCompensationStartedPayload struct {
	header
	FailedStepID string
}

// SagaStepCompensatedPayload is emitted per compensated step, including
// no-op compensations (§4.5: "Compensations declared none are skipped but
// still emit an event for the audit trail").
type SagaStepCompensatedPayload struct {
	header
	StepID  string
	Skipped bool
	Failed  bool
}

// SagaCompensatedPayload is emitted when compensation completes without
// any compensation failures.
type SagaCompensatedPayload struct {
	header
}

// SagaCompletedPayload is emitted when every step completes successfully.
type SagaCompletedPayload struct {
	header
}

func (s *SagaInstance) emit(eventType string, now time.Time, payload any) {
	s.Record(domain.DomainEvent{
		EventType:   eventType,
		AggregateID: s.SagaID.String(),
		OccurredAt:  now,
		Payload:     payload,
	})
}
