// Package condition provides stateless predicates over a transaction.
//
// A Resolver extracts a value by dotted path ("request.payload.model",
// "data.principal_id"); a Comparison relates two operands, each either a
// literal or a resolved path. All, Any and Not combine conditions, and
// Expression evaluates a CEL expression against the transaction.
//
// Conditions are built once when the policy tree is loaded and are safe for
// concurrent use.
package condition

import (
	"fmt"
	"regexp"
	"strings"

	"mercator-hq/luthien/pkg/transaction"
)

// Condition is a side-effect-free predicate over a transaction.
type Condition interface {
	Evaluate(tx *transaction.Transaction) (bool, error)
	String() string
}

// Operand is one side of a comparison: a resolved Path or a literal Value.
type Operand struct {
	Path  string `mapstructure:"path"`
	Value any    `mapstructure:"value"`
}

func (o Operand) resolver() (Resolver, error) {
	if o.Path != "" {
		return Path(o.Path)
	}
	return Literal(o.Value), nil
}

func (o Operand) String() string {
	if o.Path != "" {
		return o.Path
	}
	return fmt.Sprintf("%#v", o.Value)
}

// Comparison relates two operands with an operator.
type Comparison struct {
	left, right   Operand
	op            Operator
	resolveLeft   Resolver
	resolveRight  Resolver
	compiledRegex *regexp.Regexp
}

// Compare builds a comparison. Literal regex patterns are compiled here so
// invalid patterns fail at load time.
func Compare(left Operand, op Operator, right Operand) (*Comparison, error) {
	l, err := left.resolver()
	if err != nil {
		return nil, err
	}
	r, err := right.resolver()
	if err != nil {
		return nil, err
	}

	c := &Comparison{left: left, right: right, op: op, resolveLeft: l, resolveRight: r}
	if op == OpRegex && right.Path == "" {
		pattern, ok := right.Value.(string)
		if !ok {
			return nil, fmt.Errorf("regex requires a string pattern, got %T", right.Value)
		}
		c.compiledRegex, err = regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
		}
	}
	return c, nil
}

// Evaluate resolves both sides and applies the operator.
func (c *Comparison) Evaluate(tx *transaction.Transaction) (bool, error) {
	actual, err := c.resolveLeft(tx)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", c.left, err)
	}
	expected, err := c.resolveRight(tx)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", c.right, err)
	}
	return evaluate(c.op, actual, expected, c.compiledRegex)
}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.left, c.op, c.right)
}

// All is true when every condition is true. An empty All is true.
type All []Condition

func (a All) Evaluate(tx *transaction.Transaction) (bool, error) {
	for _, c := range a {
		ok, err := c.Evaluate(tx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (a All) String() string { return join("all", a) }

// Any is true when at least one condition is true. An empty Any is false.
type Any []Condition

func (a Any) Evaluate(tx *transaction.Transaction) (bool, error) {
	for _, c := range a {
		ok, err := c.Evaluate(tx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (a Any) String() string { return join("any", a) }

// Not negates a condition.
type Not struct {
	Condition Condition
}

func (n Not) Evaluate(tx *transaction.Transaction) (bool, error) {
	ok, err := n.Condition.Evaluate(tx)
	return !ok && err == nil, err
}

func (n Not) String() string { return "not(" + n.Condition.String() + ")" }

// Always is a condition with a fixed result.
type Always bool

func (a Always) Evaluate(*transaction.Transaction) (bool, error) { return bool(a), nil }

func (a Always) String() string { return fmt.Sprintf("%t", bool(a)) }

func join(name string, cs []Condition) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}
