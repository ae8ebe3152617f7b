package routing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// evaluateCondition evaluates a single condition against req, applying
// negation last (§4.3). Unknown fields are null; only IS_NULL/IS_NOT_NULL
// treat null specially, every other operator returns false for it.
func evaluateCondition(c RoutingCondition, req Request) bool {
	value, known := req.field(c.FieldName)

	var result bool
	switch c.Operator {
	case OpIsNull:
		result = !known || value == nil
	case OpIsNotNull:
		result = known && value != nil
	default:
		if !known || value == nil {
			result = false
		} else {
			result = evaluateValueOperator(c.Operator, value, c.Value)
		}
	}

	if c.Negated {
		return !result
	}
	return result
}

func evaluateValueOperator(op Operator, actual any, expected string) bool {
	switch op {
	case OpEquals:
		return compareStrings(actual, expected, true)
	case OpNotEquals:
		return !compareStrings(actual, expected, true)
	case OpContains:
		return strings.Contains(strings.ToLower(toString(actual)), strings.ToLower(expected))
	case OpNotContains:
		return !strings.Contains(strings.ToLower(toString(actual)), strings.ToLower(expected))
	case OpIn:
		return containsCaseInsensitive(splitCSV(expected), toString(actual))
	case OpNotIn:
		return !containsCaseInsensitive(splitCSV(expected), toString(actual))
	case OpRegex:
		return matchesRegex(toString(actual), expected)
	case OpNotRegex:
		return !matchesRegex(toString(actual), expected)
	case OpGreaterThan, OpLessThan, OpGreaterThanOrEquals, OpLessThanOrEquals:
		return compareNumeric(op, actual, expected)
	default:
		return false
	}
}

func compareStrings(actual any, expected string, caseInsensitive bool) bool {
	a := toString(actual)
	if caseInsensitive {
		return strings.EqualFold(a, expected)
	}
	return a == expected
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func containsCaseInsensitive(list []string, needle string) bool {
	for _, item := range list {
		if strings.EqualFold(item, needle) {
			return true
		}
	}
	return false
}

func matchesRegex(value, pattern string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	loc := re.FindStringIndex(value)
	return loc != nil && loc[0] == 0 && loc[1] == len(value)
}

// compareNumeric compares actual against expected using arbitrary-precision
// decimal (§4.3). actual is coerced to decimal from either a
// decimal.Decimal, a numeric Go type, or its string representation.
func compareNumeric(op Operator, actual any, expected string) bool {
	a, err := toDecimal(actual)
	if err != nil {
		return false
	}
	b, err := decimal.NewFromString(expected)
	if err != nil {
		return false
	}

	switch op {
	case OpGreaterThan:
		return a.GreaterThan(b)
	case OpLessThan:
		return a.LessThan(b)
	case OpGreaterThanOrEquals:
		return a.GreaterThanOrEqual(b)
	case OpLessThanOrEquals:
		return a.LessThanOrEqual(b)
	default:
		return false
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case string:
		return decimal.NewFromString(t)
	default:
		return decimal.NewFromString(fmt.Sprintf("%v", v))
	}
}

// evaluateConditions combines c[i] left-to-right with c[i].LogicalOperator,
// short-circuiting: OR on first true, AND on first false, negation applied
// per-condition before combination (§4.3).
func evaluateConditions(conditions []RoutingCondition, req Request) bool {
	if len(conditions) == 0 {
		return true
	}

	ordered := make([]RoutingCondition, len(conditions))
	copy(ordered, conditions)
	sortByOrder(ordered)

	result := evaluateCondition(ordered[0], req)
	for i := 1; i < len(ordered); i++ {
		c := ordered[i]
		val := evaluateCondition(c, req)
		switch c.LogicalOperator {
		case LogicalOr:
			if result {
				return true
			}
			result = result || val
		default: // AND
			if !result {
				return false
			}
			result = result && val
		}
	}
	return result
}

func sortByOrder(conditions []RoutingCondition) {
	for i := 1; i < len(conditions); i++ {
		for j := i; j > 0 && conditions[j].ConditionOrder < conditions[j-1].ConditionOrder; j-- {
			conditions[j], conditions[j-1] = conditions[j-1], conditions[j]
		}
	}
}
