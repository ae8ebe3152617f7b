package validation

import (
	"time"

	"github.com/google/uuid"
)

// Engine runs the ordered rule groups against a PaymentRequest (§4.2).
type Engine struct {
	rules []Rule
}

// NewEngine builds an Engine from a flat rule list; rules retain their
// given order within their RuleType group.
func NewEngine(rules []Rule) *Engine {
	return &Engine{rules: rules}
}

// Validate runs every rule in group order (BUSINESS, COMPLIANCE, FRAUD,
// RISK), scoring failures and deriving status/riskLevel (§3, §4.2).
func (e *Engine) Validate(req PaymentRequest, rc RuleContext, now time.Time) (*ValidationResult, error) {
	byGroup := make(map[RuleType][]Rule, len(orderedGroups))
	for _, r := range e.rules {
		byGroup[r.Type()] = append(byGroup[r.Type()], r)
	}

	result := &ValidationResult{
		ValidationID: uuid.NewString(),
		PaymentId:    req.PaymentId,
		Tenant:       req.Tenant,
		Status:       StatusPassed,
		RiskLevel:    RiskLOW,
		ValidatedAt:  now,
	}

	for _, group := range orderedGroups {
		rules := byGroup[group]
		if len(rules) == 0 {
			continue
		}

		executed := 0
		errored := 0
		for _, r := range rules {
			result.AppliedRules = append(result.AppliedRules, r.ID())
			executed++

			reason, err := safeEvaluate(r, req, rc)
			if err != nil {
				errored++
				result.FailedRules = append(result.FailedRules, FailedRule{
					RuleID: r.ID(),
					Type:   r.Type(),
					Reason: "RULE_EXECUTION_ERROR: " + err.Error(),
				})
				continue
			}
			if reason != "" {
				result.FailedRules = append(result.FailedRules, FailedRule{
					RuleID: r.ID(),
					Type:   r.Type(),
					Reason: reason,
				})
			}
		}

		if executed > 0 && errored == executed {
			return nil, &EngineError{Group: group}
		}
	}

	result.FraudScore = 25 * countFailuresOfType(result.FailedRules, RuleTypeFraud)
	result.RiskScore = 20 * countFailuresOfType(result.FailedRules, RuleTypeRisk)
	result.RiskLevel = deriveRiskLevel(result.FailedRules)
	if len(result.FailedRules) > 0 {
		result.Status = StatusFailed
	}

	return result, nil
}

// safeEvaluate recovers a panicking rule and reports it the same way as a
// returned error, so one badly-behaved rule never aborts the batch (§4.2).
func safeEvaluate(r Rule, req PaymentRequest, rc RuleContext) (reason string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicError{p}
		}
	}()
	return r.Evaluate(req, rc)
}

type panicError struct{ v any }

func (p panicError) Error() string {
	if e, ok := p.v.(error); ok {
		return e.Error()
	}
	return "panic during rule evaluation"
}

func countFailuresOfType(failed []FailedRule, t RuleType) int {
	n := 0
	for _, f := range failed {
		if f.Type == t {
			n++
		}
	}
	return n
}

// deriveRiskLevel implements §3's taxonomy: any FRAUD failure ⇒ CRITICAL;
// else any RISK failure ⇒ HIGH; else any failure at all ⇒ MEDIUM; else LOW.
func deriveRiskLevel(failed []FailedRule) RiskLevel {
	hasFraud := false
	hasRisk := false
	for _, f := range failed {
		switch f.Type {
		case RuleTypeFraud:
			hasFraud = true
		case RuleTypeRisk:
			hasRisk = true
		}
	}
	switch {
	case hasFraud:
		return RiskCRITICAL
	case hasRisk:
		return RiskHIGH
	case len(failed) > 0:
		return RiskMEDIUM
	default:
		return RiskLOW
	}
}
