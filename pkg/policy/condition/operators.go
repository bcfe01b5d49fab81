package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Operator names a binary relation between two resolved values.
type Operator string

const (
	OpEquals       Operator = "equals"
	OpNotEquals    Operator = "not_equals"
	OpContains     Operator = "contains"
	OpLessThan     Operator = "lt"
	OpLessEqual    Operator = "lte"
	OpGreaterThan  Operator = "gt"
	OpGreaterEqual Operator = "gte"
	OpRegex        Operator = "regex"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpStartsWith   Operator = "starts_with"
	OpEndsWith     Operator = "ends_with"
)

var operatorAliases = map[string]Operator{
	"==":      OpEquals,
	"eq":      OpEquals,
	"!=":      OpNotEquals,
	"ne":      OpNotEquals,
	"<":       OpLessThan,
	"<=":      OpLessEqual,
	">":       OpGreaterThan,
	">=":      OpGreaterEqual,
	"matches": OpRegex,
}

// ParseOperator normalizes an operator name, accepting symbolic aliases.
func ParseOperator(s string) (Operator, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if op, ok := operatorAliases[s]; ok {
		return op, nil
	}
	switch op := Operator(s); op {
	case OpEquals, OpNotEquals, OpContains, OpLessThan, OpLessEqual, OpGreaterThan,
		OpGreaterEqual, OpRegex, OpIn, OpNotIn, OpStartsWith, OpEndsWith:
		return op, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// evaluate applies op to actual and expected. re, when non-nil, is the
// precompiled pattern for OpRegex.
func evaluate(op Operator, actual, expected any, re *regexp.Regexp) (bool, error) {
	switch op {
	case OpEquals:
		return equal(actual, expected), nil
	case OpNotEquals:
		return !equal(actual, expected), nil
	case OpLessThan, OpLessEqual, OpGreaterThan, OpGreaterEqual:
		return compareNumbers(op, actual, expected)
	case OpContains:
		return contains(actual, expected)
	case OpRegex:
		return matches(actual, expected, re)
	case OpStartsWith:
		if actual == nil {
			return false, nil
		}
		return strings.HasPrefix(toString(actual), toString(expected)), nil
	case OpEndsWith:
		if actual == nil {
			return false, nil
		}
		return strings.HasSuffix(toString(actual), toString(expected)), nil
	case OpIn:
		return contains(expected, actual)
	case OpNotIn:
		in, err := contains(expected, actual)
		return !in, err
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// equal compares with numeric coercion so that 4 (YAML int) equals 4.0 (JSON number).
func equal(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	a, errA := toFloat64(actual)
	e, errE := toFloat64(expected)
	if errA == nil && errE == nil {
		return a == e
	}
	return reflect.DeepEqual(actual, expected)
}

func compareNumbers(op Operator, actual, expected any) (bool, error) {
	if actual == nil {
		return false, nil
	}
	a, err := toFloat64(actual)
	if err != nil {
		return false, fmt.Errorf("%s: left operand: %w", op, err)
	}
	e, err := toFloat64(expected)
	if err != nil {
		return false, fmt.Errorf("%s: right operand: %w", op, err)
	}
	switch op {
	case OpLessThan:
		return a < e, nil
	case OpLessEqual:
		return a <= e, nil
	case OpGreaterThan:
		return a > e, nil
	default:
		return a >= e, nil
	}
}

// contains reports substring containment for strings and element membership
// for slices.
func contains(haystack, needle any) (bool, error) {
	if haystack == nil {
		return false, nil
	}
	if s, ok := haystack.(string); ok {
		return strings.Contains(s, toString(needle)), nil
	}

	v := reflect.ValueOf(haystack)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return false, fmt.Errorf("contains requires a string or list, got %T", haystack)
	}
	for i := 0; i < v.Len(); i++ {
		if equal(v.Index(i).Interface(), needle) {
			return true, nil
		}
	}
	return false, nil
}

func matches(actual, expected any, re *regexp.Regexp) (bool, error) {
	if actual == nil {
		return false, nil
	}
	if re == nil {
		pattern, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("regex requires a string pattern, got %T", expected)
		}
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
		}
	}
	return re.MatchString(toString(actual)), nil
}

func toFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
