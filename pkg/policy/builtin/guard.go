package builtin

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/loader"
	"mercator-hq/luthien/pkg/streaming"
	"mercator-hq/luthien/pkg/transaction"
)

type responseGuardParams struct {
	Deny    []string `mapstructure:"deny"`
	Status  int      `mapstructure:"status"`
	Message string   `mapstructure:"message"`
}

func (p *responseGuardParams) Validate() error {
	if len(p.Deny) == 0 {
		return fmt.Errorf("deny needs at least one pattern")
	}
	return nil
}

// responseGuard rejects responses whose text matches a deny pattern. A
// streamed response is drained first and replayed when it passes, so the
// client sees nothing until the whole answer has been checked.
type responseGuard struct {
	policy.Base
	deny    []*regexp.Regexp
	status  int
	message string
}

func newResponseGuard(name string, p responseGuardParams, _ loader.Dependencies) (policy.Policy, error) {
	g := &responseGuard{
		Base:    policy.NewBase(name, TypeResponseGuard),
		status:  p.Status,
		message: p.Message,
	}
	for _, pattern := range p.Deny {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", pattern, err)
		}
		g.deny = append(g.deny, re)
	}
	if g.status == 0 {
		g.status = http.StatusUnprocessableEntity
	}
	if g.message == "" {
		g.message = "response withheld by content policy"
	}
	return g, nil
}

func (g *responseGuard) Apply(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if tx.Response == nil {
		return tx, nil
	}

	var text string
	if tx.IsStreaming() {
		chunks, err := streaming.Collect(ctx, tx.Response.Stream)
		if err != nil {
			tx.Response.Stream = streaming.FromChunks()
			return tx, fmt.Errorf("buffer stream: %w", err)
		}
		tx.Response.Stream = streaming.FromChunks(chunks...)
		text = streaming.Text(chunks)
	} else {
		if tx.Response.StatusCode != 0 && tx.Response.StatusCode/100 != 2 {
			return tx, nil
		}
		var err error
		if text, err = responseText(tx.Response); err != nil {
			return tx, err
		}
	}

	for _, re := range g.deny {
		if re.MatchString(text) {
			if tx.IsStreaming() {
				tx.Response.Stream.Close()
			}
			return tx, policy.NewError(g.Name(), g.status, g.message).WithCode("content_filtered")
		}
	}
	return tx, nil
}
