// Package routing implements the Routing Decision Engine (§4.3): a
// tenant-scoped rule set evaluated concurrently per payment, yielding a
// cached RoutingDecision. Grounded on the teacher's
// services/gateway/internal/clients (concurrent clearing-system
// selection) and golang.org/x/sync/errgroup, which the teacher's own
// dependency graph does not use but a sibling pack repo (LeJamon-goXRPLd)
// does for bounded concurrent fan-out — adopted here for the per-rule
// concurrent evaluation §4.3 requires.
package routing

import (
	"time"

	"github.com/deltran/coordinator/internal/domain"
)

// RuleStatus is a RoutingRule's authoring lifecycle state.
type RuleStatus string

const (
	RuleActive   RuleStatus = "ACTIVE"
	RuleInactive RuleStatus = "INACTIVE"
	RuleDraft    RuleStatus = "DRAFT"
	RuleArchived RuleStatus = "ARCHIVED"
)

// LogicalOperator joins a RoutingCondition to the one before it.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Operator is one of the fourteen comparison operators §4.3 names.
type Operator string

const (
	OpEquals              Operator = "EQUALS"
	OpNotEquals           Operator = "NOT_EQUALS"
	OpGreaterThan         Operator = "GREATER_THAN"
	OpLessThan            Operator = "LESS_THAN"
	OpGreaterThanOrEquals Operator = "GREATER_THAN_OR_EQUALS"
	OpLessThanOrEquals    Operator = "LESS_THAN_OR_EQUALS"
	OpContains            Operator = "CONTAINS"
	OpNotContains         Operator = "NOT_CONTAINS"
	OpIn                  Operator = "IN"
	OpNotIn               Operator = "NOT_IN"
	OpRegex               Operator = "REGEX"
	OpNotRegex            Operator = "NOT_REGEX"
	OpIsNull              Operator = "IS_NULL"
	OpIsNotNull           Operator = "IS_NOT_NULL"
)

// RoutingCondition is one clause of a rule's condition tree (§3).
type RoutingCondition struct {
	FieldName       string
	Operator        Operator
	Value           string
	ValueType       string
	LogicalOperator LogicalOperator
	Negated         bool
	ConditionOrder  int
}

// ActionType enumerates the Action Executor's recognized actions (§4.3).
type ActionType string

const (
	ActionRouteToClearingSystem ActionType = "ROUTE_TO_CLEARING_SYSTEM"
	ActionSetPriority           ActionType = "SET_PRIORITY"
	ActionAddMetadata           ActionType = "ADD_METADATA"
	ActionRejectPayment         ActionType = "REJECT_PAYMENT"
	ActionHoldPayment           ActionType = "HOLD_PAYMENT"
	ActionNotify                ActionType = "NOTIFY"
)

// RoutingAction is one action a matched rule executes (§3).
type RoutingAction struct {
	ActionType      ActionType
	ClearingSystem  string
	RoutingPriority int
	Parameters      map[string]string
	IsPrimary       bool
}

// RoutingRule is a tenant-scoped rule: conditions gate whether it matches,
// actions run when it wins (§3).
type RoutingRule struct {
	ID             domain.RuleId
	RuleName       string
	Tenant         domain.TenantContext
	Type           string
	Status         RuleStatus
	Priority       int
	EffectiveFrom  time.Time
	EffectiveTo    time.Time
	Conditions     []RoutingCondition
	Actions        []RoutingAction
}

// IsEffectiveAt reports whether the rule's effective window contains at.
func (r RoutingRule) IsEffectiveAt(at time.Time) bool {
	if !r.EffectiveFrom.IsZero() && at.Before(r.EffectiveFrom) {
		return false
	}
	if !r.EffectiveTo.IsZero() && at.After(r.EffectiveTo) {
		return false
	}
	return true
}

// Request carries everything a condition may reference (§4.3).
type Request struct {
	PaymentId          domain.PaymentId
	Tenant             domain.TenantContext
	Amount             domain.Money
	PaymentType        domain.PaymentType
	SourceAccount      domain.AccountNumber
	DestinationAccount domain.AccountNumber
	Priority           int
	CreatedAt          time.Time
	Metadata           map[string]any
}

// Decision is the engine's output (§3). Exactly one of the
// {normal, Rejected, Held, Fallback} interpretations is authoritative for
// downstream consumers.
type Decision struct {
	PaymentId      domain.PaymentId
	RuleId         domain.RuleId
	RuleName       string
	ClearingSystem string
	Priority       int
	DecisionReason string
	Rejected       bool
	Held           bool
	Fallback       bool
	Metadata       map[string]string
	Notifications  []string
}

// field looks up a named field on the request, first checking the
// well-known fields and falling back to Metadata. Returns (nil, false) for
// an unknown field, which conditions other than IS_NULL/IS_NOT_NULL treat
// as a non-match (§4.3).
func (r Request) field(name string) (any, bool) {
	switch name {
	case "amount":
		return r.Amount.Amount, true
	case "currency":
		return r.Amount.Currency, true
	case "paymentType":
		return string(r.PaymentType), true
	case "sourceAccount":
		return r.SourceAccount.String(), true
	case "destinationAccount":
		return r.DestinationAccount.String(), true
	case "priority":
		return r.Priority, true
	case "tenantId":
		return r.Tenant.TenantID, true
	case "businessUnitId":
		return r.Tenant.BusinessUnitID, true
	default:
		v, ok := r.Metadata[name]
		return v, ok
	}
}
