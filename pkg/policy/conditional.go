package policy

import (
	"context"
	"fmt"
	"net/http"

	"mercator-hq/luthien/pkg/policy/condition"
	"mercator-hq/luthien/pkg/transaction"
)

// Branch pairs a condition with the policy applied when it holds.
type Branch struct {
	When   condition.Condition
	Policy Policy
}

// Conditional applies the policy of the first branch whose condition holds
// for the current transaction. With no match it applies the default, or
// returns the transaction unchanged when there is none.
type Conditional struct {
	Base
	branches []Branch
	fallback Policy
}

// NewConditional returns a conditional composite. fallback may be nil.
func NewConditional(name string, branches []Branch, fallback Policy) *Conditional {
	return &Conditional{
		Base:     NewBase(name, TypeConditional),
		branches: branches,
		fallback: fallback,
	}
}

// Apply evaluates the branches in order and applies at most one policy.
func (c *Conditional) Apply(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	selected, err := c.Select(tx)
	if err != nil {
		return tx, err
	}
	if selected == nil {
		return tx, nil
	}
	return selected.Apply(ctx, tx)
}

// Select returns the policy Apply would run for tx, or nil for a no-op.
func (c *Conditional) Select(tx *transaction.Transaction) (Policy, error) {
	for i, b := range c.branches {
		ok, err := b.When.Evaluate(tx)
		if err != nil {
			return nil, &Error{
				Policy: c.Name(),
				Status: http.StatusInternalServerError,
				Detail: "condition evaluation failed",
				Err:    fmt.Errorf("branch %d (%s): %w", i, b.When, err),
			}
		}
		if ok {
			return b.Policy, nil
		}
	}
	return c.fallback, nil
}

// Branches returns the configured branches in evaluation order.
func (c *Conditional) Branches() []Branch {
	return c.branches
}

// Default returns the fallback policy, or nil.
func (c *Conditional) Default() Policy {
	return c.fallback
}

// Children returns the branch policies followed by the default.
func (c *Conditional) Children() []Policy {
	children := make([]Policy, 0, len(c.branches)+1)
	for _, b := range c.branches {
		children = append(children, b.Policy)
	}
	if c.fallback != nil {
		children = append(children, c.fallback)
	}
	return children
}
