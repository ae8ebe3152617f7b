// Package validation implements the Validation Rule Engine (§4.2): an
// ordered, four-group rule pipeline that scores a payment request and
// yields an immutable ValidationResult. Grounded on the teacher's
// internal/validation/validator.go (ValidatePayment/CheckSanctions/
// AssessRisk), regrouped from a flat pass/fail check into the spec's
// BUSINESS/COMPLIANCE/FRAUD/RISK taxonomy.
package validation

import (
	"time"

	"github.com/deltran/coordinator/internal/domain"
)

// RuleType is the failure taxonomy a Rule belongs to; it drives both
// scoring and riskLevel derivation (§3, §4.2).
type RuleType string

const (
	RuleTypeBusiness   RuleType = "BUSINESS"
	RuleTypeCompliance RuleType = "COMPLIANCE"
	RuleTypeFraud      RuleType = "FRAUD"
	RuleTypeRisk       RuleType = "RISK"
)

// orderedGroups is the fixed evaluation order (§4.2): business, compliance,
// fraud, risk. Rules are never reordered by the engine.
var orderedGroups = []RuleType{RuleTypeBusiness, RuleTypeCompliance, RuleTypeFraud, RuleTypeRisk}

// Status is the overall outcome of a validation run.
type Status string

const (
	StatusPassed Status = "PASSED"
	StatusFailed Status = "FAILED"
)

// RiskLevel is derived from which rule types failed (§3): any FRAUD failure
// is CRITICAL; else any RISK failure is HIGH; else any failure at all is
// MEDIUM; else LOW.
type RiskLevel string

const (
	RiskLOW      RiskLevel = "LOW"
	RiskMEDIUM   RiskLevel = "MEDIUM"
	RiskHIGH     RiskLevel = "HIGH"
	RiskCRITICAL RiskLevel = "CRITICAL"
)

// FailedRule records one rule's failure within a ValidationResult.
type FailedRule struct {
	RuleID RuleID
	Type   RuleType
	Reason string
}

// RuleID identifies a rule within its group, used for the audit trace.
type RuleID string

// ValidationResult is the immutable output of one validation run (§3).
type ValidationResult struct {
	ValidationID  string
	PaymentId     domain.PaymentId
	Tenant        domain.TenantContext
	Status        Status
	RiskLevel     RiskLevel
	FraudScore    int
	RiskScore     int
	AppliedRules  []RuleID
	FailedRules   []FailedRule
	ValidatedAt   time.Time
}

// PaymentRequest is the subset of a Payment the engine evaluates. Kept
// separate from domain.Payment so rules never need write access to the
// aggregate itself (§4.2's determinism requirement: the engine performs no
// I/O and cannot mutate its input).
type PaymentRequest struct {
	PaymentId          domain.PaymentId
	Tenant             domain.TenantContext
	SourceAccount      domain.AccountNumber
	DestinationAccount domain.AccountNumber
	Amount             domain.Money
	Reference          string
	Type               domain.PaymentType
}

// EngineError is returned when every rule in a group throws (§4.2); the
// saga orchestrator treats this as fatal, equivalent to starting
// compensation.
type EngineError struct {
	Group RuleType
}

func (e *EngineError) Error() string {
	return "validation: all rules in group " + string(e.Group) + " failed to execute"
}
