package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/loader"
	"mercator-hq/luthien/pkg/streaming"
	"mercator-hq/luthien/pkg/transaction"

	openai "github.com/sashabaranov/go-openai"
)

type openAIForwardParams struct {
	// BaseURL overrides the backend URL for this policy.
	BaseURL string `mapstructure:"base_url"`
}

// openAIForward calls the backend through the go-openai client. The
// request payload is decoded into the SDK's request type, so fields the SDK
// does not know are dropped.
type openAIForward struct {
	policy.Base
	client *openai.Client
}

func newOpenAIForward(name string, p openAIForwardParams, deps loader.Dependencies) (policy.Policy, error) {
	client := deps.OpenAI
	if client == nil || p.BaseURL != "" {
		cfg := openai.DefaultConfig(deps.Settings.BackendAPIKey)
		switch {
		case p.BaseURL != "":
			cfg.BaseURL = p.BaseURL
		case deps.Settings.BackendURL != "":
			cfg.BaseURL = deps.Settings.BackendURL
		}
		if deps.HTTPClient != nil {
			cfg.HTTPClient = deps.HTTPClient
		}
		client = openai.NewClientWithConfig(cfg)
	}
	return &openAIForward{Base: policy.NewBase(name, TypeOpenAIForward), client: client}, nil
}

func (o *openAIForward) Apply(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if err := requireRequest(o.Name(), tx); err != nil {
		return tx, err
	}

	body, err := tx.Request.Body()
	if err != nil {
		return tx, policy.NewError(o.Name(), http.StatusBadRequest, "request body could not be encoded").WithCause(err)
	}
	var req openai.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return tx, policy.NewError(o.Name(), http.StatusBadRequest, "request is not a chat completion").
			WithCode("invalid_request").WithCause(err)
	}

	if req.Stream {
		stream, err := o.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return tx, o.convertError(ctx, err)
		}
		tx.Response = &transaction.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"text/event-stream"}},
			Stream:     streaming.NewOpenAIStream(stream),
		}
		return tx, nil
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return tx, o.convertError(ctx, err)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return tx, fmt.Errorf("encode completion: %w", err)
	}
	tx.Response = &transaction.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       data,
	}
	return tx, nil
}

// convertError maps SDK errors to policy errors. API errors keep the
// backend's status and message.
func (o *openAIForward) convertError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr := policy.NewError(o.Name(), apiErr.HTTPStatusCode, apiErr.Message).WithCause(err)
		if code, ok := apiErr.Code.(string); ok {
			perr.Code = code
		}
		return perr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return policy.NewError(o.Name(), http.StatusGatewayTimeout, "backend timed out").
			WithCode("backend_timeout").WithCause(err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return policy.NewError(o.Name(), reqErr.HTTPStatusCode, "backend request failed").
			WithCode("backend_error").WithCause(err)
	}
	return policy.NewError(o.Name(), http.StatusBadGateway, "backend unavailable").
		WithCode("backend_error").WithCause(err)
}
