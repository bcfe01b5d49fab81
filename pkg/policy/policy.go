package policy

import (
	"context"

	"mercator-hq/luthien/pkg/transaction"
)

// Policy is one node of a policy tree.
type Policy interface {
	// Name is the configured, unique name of this instance.
	Name() string

	// Type is the registered kind the instance was built from.
	Type() string

	// Apply processes tx and returns it, possibly replaced.
	Apply(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error)
}

// Parent is implemented by composites. Children are returned in the order
// they may be applied; a conditional's default comes last.
type Parent interface {
	Children() []Policy
}

// Wrapper is implemented by decorators such as Instrument.
type Wrapper interface {
	Unwrap() Policy
}

// Base carries the name and type every policy reports. Embed it.
type Base struct {
	name string
	typ  string
}

// NewBase returns a Base for the given instance name and kind.
func NewBase(name, typ string) Base {
	return Base{name: name, typ: typ}
}

// Name returns the configured instance name.
func (b Base) Name() string { return b.name }

// Type returns the registered kind.
func (b Base) Type() string { return b.typ }

// Unwrap strips decorators from p.
func Unwrap(p Policy) Policy {
	for {
		w, ok := p.(Wrapper)
		if !ok {
			return p
		}
		p = w.Unwrap()
	}
}

// Noop returns a policy that leaves the transaction untouched.
func Noop(name string) Policy {
	return noop{Base: NewBase(name, TypeNoop)}
}

type noop struct {
	Base
}

func (noop) Apply(_ context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	return tx, nil
}

// Kinds implemented in this package.
const (
	TypeNoop        = "noop"
	TypeSequential  = "sequential"
	TypeConditional = "conditional"
)
