package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Rule is one independent check within a rule group (§4.2). Evaluate
// returns a non-empty reason when the rule fails, or "" when it passes.
// A rule that cannot complete returns an error instead; the engine
// records that as a failure with reason "RULE_EXECUTION_ERROR: <message>"
// and continues the batch.
type Rule interface {
	ID() RuleID
	Type() RuleType
	Evaluate(req PaymentRequest, rc RuleContext) (failReason string, err error)
}

type ruleFunc struct {
	id  RuleID
	typ RuleType
	fn  func(req PaymentRequest, rc RuleContext) (string, error)
}

func (r *ruleFunc) ID() RuleID     { return r.id }
func (r *ruleFunc) Type() RuleType { return r.typ }
func (r *ruleFunc) Evaluate(req PaymentRequest, rc RuleContext) (string, error) {
	return r.fn(req, rc)
}

// newRule builds a Rule from a plain evaluation function, keeping the
// table of rules below declarative.
func newRule(id RuleID, typ RuleType, fn func(req PaymentRequest, rc RuleContext) (string, error)) Rule {
	return &ruleFunc{id: id, typ: typ, fn: fn}
}

// DefaultRules returns the engine's standard rule set, grounded on the
// teacher's Validator.ValidatePayment/CheckSanctions/AssessRisk, regrouped
// into BUSINESS/COMPLIANCE/FRAUD/RISK. Declared order is fixed: it is the
// audit trace (§4.2).
func DefaultRules() []Rule {
	return []Rule{
		// BUSINESS
		newRule("amount-positive", RuleTypeBusiness, ruleAmountPositive),
		newRule("amount-within-limits", RuleTypeBusiness, ruleAmountWithinLimits),
		newRule("source-destination-distinct", RuleTypeBusiness, ruleSourceDestinationDistinct),
		newRule("currency-supported", RuleTypeBusiness, ruleCurrencySupported),

		// COMPLIANCE
		newRule("reference-required", RuleTypeCompliance, ruleReferenceRequired),
		newRule("account-well-formed", RuleTypeCompliance, ruleAccountWellFormed),

		// FRAUD
		newRule("sanctions-screening", RuleTypeFraud, ruleSanctionsScreening),

		// RISK
		newRule("high-value-transaction", RuleTypeRisk, ruleHighValueTransaction),
		newRule("cross-border-transaction", RuleTypeRisk, ruleCrossBorderTransaction),
		newRule("uncommon-currency", RuleTypeRisk, ruleUncommonCurrency),
	}
}

func ruleAmountPositive(req PaymentRequest, rc RuleContext) (string, error) {
	if !req.Amount.IsPositive() {
		return "amount must be positive", nil
	}
	return "", nil
}

func ruleAmountWithinLimits(req PaymentRequest, rc RuleContext) (string, error) {
	if rc.MinAmount != "" {
		min, err := decimal.NewFromString(rc.MinAmount)
		if err != nil {
			return "", fmt.Errorf("parse minAmount: %w", err)
		}
		if req.Amount.Amount.LessThan(min) {
			return "amount below minimum", nil
		}
	}
	if rc.MaxAmount != "" {
		max, err := decimal.NewFromString(rc.MaxAmount)
		if err != nil {
			return "", fmt.Errorf("parse maxAmount: %w", err)
		}
		if req.Amount.Amount.GreaterThan(max) {
			return "amount exceeds maximum", nil
		}
	}
	return "", nil
}

func ruleSourceDestinationDistinct(req PaymentRequest, rc RuleContext) (string, error) {
	if req.SourceAccount.Equal(req.DestinationAccount) {
		return "source and destination accounts must differ", nil
	}
	return "", nil
}

func ruleCurrencySupported(req PaymentRequest, rc RuleContext) (string, error) {
	if len(rc.SupportedCurrencies) == 0 {
		return "", nil
	}
	for _, c := range rc.SupportedCurrencies {
		if c == req.Amount.Currency {
			return "", nil
		}
	}
	return "unsupported currency: " + req.Amount.Currency, nil
}

func ruleReferenceRequired(req PaymentRequest, rc RuleContext) (string, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return "Payment reference is required", nil
	}
	return "", nil
}

func ruleAccountWellFormed(req PaymentRequest, rc RuleContext) (string, error) {
	if strings.TrimSpace(req.SourceAccount.String()) == "" {
		return "source account is malformed", nil
	}
	if strings.TrimSpace(req.DestinationAccount.String()) == "" {
		return "destination account is malformed", nil
	}
	return "", nil
}

func ruleSanctionsScreening(req PaymentRequest, rc RuleContext) (string, error) {
	if rc.Sanctions == nil {
		return "", nil
	}
	for _, name := range []string{req.SourceAccount.String(), req.DestinationAccount.String()} {
		matches, err := rc.Sanctions.Screen(rc.Ctx, name)
		if err != nil {
			return "", fmt.Errorf("sanctions screening: %w", err)
		}
		if len(matches) > 0 {
			return fmt.Sprintf("sanctions match for %s on list %s", name, matches[0].ListName), nil
		}
	}
	return "", nil
}

func ruleHighValueTransaction(req PaymentRequest, rc RuleContext) (string, error) {
	threshold := decimal.NewFromInt(100000)
	if req.Amount.Amount.GreaterThan(threshold) {
		return "high value transaction", nil
	}
	return "", nil
}

func ruleCrossBorderTransaction(req PaymentRequest, rc RuleContext) (string, error) {
	src := req.SourceAccount.RoutingHint()
	dst := req.DestinationAccount.RoutingHint()
	if src != "" && dst != "" && src != dst {
		return "cross-border transaction", nil
	}
	return "", nil
}

var commonCurrencies = map[string]bool{"USD": true, "EUR": true, "GBP": true}

func ruleUncommonCurrency(req PaymentRequest, rc RuleContext) (string, error) {
	if !commonCurrencies[req.Amount.Currency] {
		return "uncommon currency", nil
	}
	return "", nil
}
