package builtin

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/loader"
	"mercator-hq/luthien/pkg/streaming"
	"mercator-hq/luthien/pkg/transaction"
)

// textRewriter applies a string function to response text, chunk by chunk
// for streams and per choice for buffered responses.
type textRewriter struct {
	policy.Base
	fn func(string) string
}

func (r *textRewriter) Apply(_ context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if tx.Response == nil {
		return tx, nil
	}
	if policy.WrapStream(tx, r) {
		return tx, nil
	}
	if tx.Response.StatusCode != 0 && tx.Response.StatusCode/100 != 2 {
		return tx, nil
	}
	if err := rewriteResponse(tx.Response, r.fn); err != nil {
		return tx, fmt.Errorf("rewrite response: %w", err)
	}
	return tx, nil
}

// ProcessChunk rewrites the delta text of c. Chunks without text pass
// through unchanged.
func (r *textRewriter) ProcessChunk(_ context.Context, c streaming.Chunk, _ *transaction.Transaction) (streaming.Chunk, error) {
	text, ok := c.Content()
	if !ok {
		return c, nil
	}
	return c.WithContent(r.fn(text))
}

type uppercaseParams struct{}

func newUppercase(name string, _ uppercaseParams, _ loader.Dependencies) (policy.Policy, error) {
	return &textRewriter{Base: policy.NewBase(name, TypeUppercase), fn: strings.ToUpper}, nil
}

type regexReplaceParams struct {
	Pattern     string `mapstructure:"pattern"`
	Replacement string `mapstructure:"replacement"`

	// Target is "response" (default), "request" or "both".
	Target string `mapstructure:"target"`
}

func (p *regexReplaceParams) Validate() error {
	if p.Pattern == "" {
		return fmt.Errorf("pattern is required")
	}
	switch p.Target {
	case "":
		p.Target = "response"
	case "response", "request", "both":
	default:
		return fmt.Errorf("unknown target %q", p.Target)
	}
	return nil
}

// regexReplace rewrites request messages and/or response text. Streamed
// text is rewritten per chunk, so matches spanning two chunks are missed.
type regexReplace struct {
	textRewriter
	request  bool
	response bool
}

func newRegexReplace(name string, p regexReplaceParams, _ loader.Dependencies) (policy.Policy, error) {
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return &regexReplace{
		textRewriter: textRewriter{
			Base: policy.NewBase(name, TypeRegexReplace),
			fn:   func(s string) string { return re.ReplaceAllString(s, p.Replacement) },
		},
		request:  p.Target != "response",
		response: p.Target != "request",
	}, nil
}

func (r *regexReplace) Apply(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if r.request && tx.Request != nil && tx.Request.Payload != nil {
		rewriteMessages(tx.Request.Payload, r.fn)
	}
	if r.response {
		return r.textRewriter.Apply(ctx, tx)
	}
	return tx, nil
}
