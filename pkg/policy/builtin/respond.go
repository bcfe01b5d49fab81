package builtin

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/loader"
	"mercator-hq/luthien/pkg/streaming"
	"mercator-hq/luthien/pkg/transaction"
)

type respondParams struct {
	Content string `mapstructure:"content"`

	// Model is reported in the response. Default: the requested model.
	Model string `mapstructure:"model"`
}

func (p *respondParams) Validate() error {
	if p.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

// respond answers the request itself without calling a backend. When the
// client asked for a stream, the content is sent one word per chunk.
type respond struct {
	policy.Base
	params respondParams
}

func newRespond(name string, p respondParams, _ loader.Dependencies) (policy.Policy, error) {
	return &respond{Base: policy.NewBase(name, TypeRespond), params: p}, nil
}

func (r *respond) Apply(_ context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	model := r.params.Model
	if model == "" {
		model = tx.Request.Model()
	}
	id := "chatcmpl-" + tx.ID

	if tx.Request.Stream() {
		words := strings.SplitAfter(r.params.Content, " ")
		chunks := make([]streaming.Chunk, 0, len(words)+1)
		for _, w := range words {
			chunks = append(chunks, streaming.TextChunk(id, model, w))
		}
		chunks = append(chunks, streaming.FinishChunk(id, model, "stop"))

		tx.Response = &transaction.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"text/event-stream"}},
			Stream:     streaming.FromChunks(chunks...),
		}
		return tx, nil
	}

	resp := &transaction.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
	}
	err := resp.SetPayload(map[string]any{
		"id":      id,
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": r.params.Content},
				"finish_reason": "stop",
			},
		},
	})
	if err != nil {
		return tx, err
	}
	tx.Response = resp
	return tx, nil
}
