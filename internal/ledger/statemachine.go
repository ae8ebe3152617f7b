package ledger

import (
	"fmt"
	"time"
)

// Status is a Transaction's lifecycle state (§4.4).
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusProcessing Status = "PROCESSING"
	StatusClearing   Status = "CLEARING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether s admits no further transition.
func (s Status) IsTerminal() bool { return s == StatusCompleted || s == StatusFailed }

// InvalidStateTransition is returned whenever a transition is attempted
// from a source state the target does not allow (§4.4).
type InvalidStateTransition struct {
	TransactionID string
	From          Status
	To            Status
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("ledger: invalid transition %s -> %s for transaction %s", e.From, e.To, e.TransactionID)
}

// StartProcessing moves CREATED -> PROCESSING.
func (t *Transaction) StartProcessing(now time.Time) error {
	if t.Status != StatusCreated {
		return &InvalidStateTransition{TransactionID: t.TransactionID.String(), From: t.Status, To: StatusProcessing}
	}
	t.Status = StatusProcessing
	t.appendEvent("TransactionProcessingStarted", now, TransactionStatusPayload{
		TransactionID: t.TransactionID,
		Status:        StatusProcessing,
	})
	return nil
}

// MarkCleared moves PROCESSING -> CLEARING, recording the clearing
// system/reference the saga's SubmitToClearing step obtained.
func (t *Transaction) MarkCleared(now time.Time, clearingSystem, clearingReference string) error {
	if t.Status != StatusProcessing {
		return &InvalidStateTransition{TransactionID: t.TransactionID.String(), From: t.Status, To: StatusClearing}
	}
	t.Status = StatusClearing
	t.ClearingSystem = clearingSystem
	t.ClearingReference = clearingReference
	t.appendEvent("TransactionCleared", now, TransactionStatusPayload{
		TransactionID: t.TransactionID,
		Status:        StatusClearing,
	})
	return nil
}

// Complete moves CLEARING -> COMPLETED.
func (t *Transaction) Complete(now time.Time) error {
	if t.Status != StatusClearing {
		return &InvalidStateTransition{TransactionID: t.TransactionID.String(), From: t.Status, To: StatusCompleted}
	}
	t.Status = StatusCompleted
	t.appendEvent("TransactionCompleted", now, TransactionStatusPayload{
		TransactionID: t.TransactionID,
		Status:        StatusCompleted,
	})
	return nil
}

// Fail moves any non-terminal state -> FAILED. Rejected from a terminal
// state (§4.4): a transaction that already COMPLETED or FAILED cannot fail
// again.
func (t *Transaction) Fail(now time.Time, reason string) error {
	if t.Status.IsTerminal() {
		return &InvalidStateTransition{TransactionID: t.TransactionID.String(), From: t.Status, To: StatusFailed}
	}
	t.Status = StatusFailed
	t.appendEvent("TransactionFailed", now, TransactionFailedPayload{
		TransactionID: t.TransactionID,
		Reason:        reason,
	})
	return nil
}
