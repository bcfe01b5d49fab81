package policy

import (
	"context"

	"mercator-hq/luthien/pkg/transaction"
)

// Sequential applies its children in order. The first error aborts the
// remaining children and is returned as is. Mutations made by children that
// already ran are not rolled back.
type Sequential struct {
	Base
	children []Policy
}

// NewSequential returns a sequential composite over children.
func NewSequential(name string, children ...Policy) *Sequential {
	return &Sequential{
		Base:     NewBase(name, TypeSequential),
		children: children,
	}
}

// Apply runs every child in order, threading the transaction through.
func (s *Sequential) Apply(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	for _, child := range s.children {
		if err := ctx.Err(); err != nil {
			return tx, err
		}

		next, err := child.Apply(ctx, tx)
		if err != nil {
			return tx, err
		}
		tx = next
	}
	return tx, nil
}

// Children returns the child policies in application order.
func (s *Sequential) Children() []Policy {
	return s.children
}
