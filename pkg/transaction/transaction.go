// Package transaction defines the mutable per-call state threaded through the
// policy chain.
//
// A Transaction is created once per inbound call by the proxy orchestrator,
// mutated in place by each policy, and finally handed to a response encoder.
// Request and response are both optional at every stage. Cross-policy state
// lives in Data; policy instances themselves are shared between concurrent
// calls and must never hold per-call state.
package transaction

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mercator-hq/luthien/pkg/streaming"
)

// Transaction is the unit of state for one proxied call.
type Transaction struct {
	// ID identifies the call. It is assigned at creation and never changed.
	ID string

	// Request is the request as it will be sent to the backend.
	Request *Request

	// Response is the backend (or synthesized) response.
	Response *Response

	// Data carries values between cooperating policies.
	Data Data

	// CreatedAt is when the transaction was created.
	CreatedAt time.Time
}

// New creates a transaction with the given id. An empty id is replaced by a
// fresh UUID.
func New(id string, req *Request) *Transaction {
	if id == "" {
		id = uuid.New().String()
	}
	return &Transaction{
		ID:        id,
		Request:   req,
		Data:      make(Data),
		CreatedAt: time.Now(),
	}
}

// IsStreaming reports whether the transaction carries a response stream
// rather than a materialized body.
func (t *Transaction) IsStreaming() bool {
	return t.Response != nil && t.Response.Stream != nil
}

// Request is an outgoing chat-completion request.
type Request struct {
	Method string
	URL    string
	Header http.Header

	// Payload is the decoded JSON body.
	Payload map[string]any
}

// Body encodes the payload as JSON.
func (r *Request) Body() ([]byte, error) {
	if r.Payload == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode request payload: %w", err)
	}
	return data, nil
}

// Stream reports whether the payload asks for a streamed response.
func (r *Request) Stream() bool {
	if r == nil || r.Payload == nil {
		return false
	}
	s, _ := r.Payload["stream"].(bool)
	return s
}

// Model returns the requested model name, if any.
func (r *Request) Model() string {
	if r == nil || r.Payload == nil {
		return ""
	}
	m, _ := r.Payload["model"].(string)
	return m
}

// Response is either a materialized body or a chunk stream.
type Response struct {
	StatusCode int
	Header     http.Header

	// Body is the complete response body. Empty when Stream is set.
	Body []byte

	// Stream yields the response chunks for streaming calls.
	Stream streaming.Iterator
}

// Payload decodes the materialized body as a JSON object.
func (r *Response) Payload() (map[string]any, error) {
	if len(r.Body) == 0 {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(r.Body, &payload); err != nil {
		return nil, fmt.Errorf("decode response payload: %w", err)
	}
	return payload, nil
}

// SetPayload replaces the materialized body with the JSON encoding of payload.
func (r *Response) SetPayload(payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode response payload: %w", err)
	}
	r.Body = data
	return nil
}
