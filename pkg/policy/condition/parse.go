package condition

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Definition is the configuration shape of a condition. Exactly one form is used:
//
//	{path: request.payload.model, op: equals, value: gpt-4}
//	{path: request.payload.model, op: equals, value_path: data.preferred_model}
//	{left: {path: ...}, op: gt, right: {value: 100}}
//	{all: [...]} | {any: [...]} | {not: {...}}
//	{expression: 'request.model == "gpt-4"'}
type Definition struct {
	Path       string           `mapstructure:"path"`
	Op         string           `mapstructure:"op"`
	Value      any              `mapstructure:"value"`
	ValuePath  string           `mapstructure:"value_path"`
	Left       *Operand         `mapstructure:"left"`
	Right      *Operand         `mapstructure:"right"`
	All        []map[string]any `mapstructure:"all"`
	Any        []map[string]any `mapstructure:"any"`
	Not        map[string]any   `mapstructure:"not"`
	Expression string           `mapstructure:"expression"`
}

// Parse builds a condition from its configuration form: either a map in the
// Definition shape or a bare string, which is treated as a CEL expression.
func Parse(raw any) (Condition, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("condition is empty")
	case string:
		return NewExpression(v)
	case bool:
		return Always(v), nil
	}

	var def Definition
	if err := mapstructure.Decode(raw, &def); err != nil {
		return nil, fmt.Errorf("decode condition: %w", err)
	}
	return def.Build()
}

// Build constructs the condition described by s.
func (s Definition) Build() (Condition, error) {
	switch {
	case s.Expression != "":
		return NewExpression(s.Expression)

	case len(s.All) > 0:
		cs, err := parseList(s.All)
		if err != nil {
			return nil, fmt.Errorf("all: %w", err)
		}
		return All(cs), nil

	case len(s.Any) > 0:
		cs, err := parseList(s.Any)
		if err != nil {
			return nil, fmt.Errorf("any: %w", err)
		}
		return Any(cs), nil

	case s.Not != nil:
		c, err := Parse(s.Not)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return Not{Condition: c}, nil
	}

	if s.Op == "" {
		return nil, fmt.Errorf("condition needs op, all, any, not or expression")
	}
	op, err := ParseOperator(s.Op)
	if err != nil {
		return nil, err
	}

	left := Operand{Path: s.Path}
	if s.Left != nil {
		left = *s.Left
	}
	if left.Path == "" && left.Value == nil {
		return nil, fmt.Errorf("comparison %q has no left operand", s.Op)
	}

	right := Operand{Path: s.ValuePath, Value: s.Value}
	if s.Right != nil {
		right = *s.Right
	}

	return Compare(left, op, right)
}

func parseList(raws []map[string]any) ([]Condition, error) {
	cs := make([]Condition, 0, len(raws))
	for i, raw := range raws {
		c, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		cs = append(cs, c)
	}
	return cs, nil
}
