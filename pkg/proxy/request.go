package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"mercator-hq/luthien/pkg/proxy/types"
	"mercator-hq/luthien/pkg/transaction"
)

// DefaultMaxRequestBodySize bounds the inbound body when no limit is set (10MB).
const DefaultMaxRequestBodySize = 10 * 1024 * 1024

// RequestError is a client error found while parsing the inbound request.
type RequestError struct {
	Status  int
	Message string
	Code    string
	Param   string
}

func (e *RequestError) Error() string {
	return e.Message
}

// ToErrorResponse converts e to the OpenAI error envelope.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	return types.NewErrorResponse(e.Status, e.Message, e.Code, e.Param)
}

// ParseRequest reads and validates a chat completion request. The payload
// handed to policies is the decoded JSON object, so fields unknown to the
// validator are preserved.
func ParseRequest(r *http.Request, maxBytes int64) (*transaction.Request, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestBodySize
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &RequestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBytes),
				Code:    types.CodeRequestTooLarge,
				Param:   "body",
			}
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		msg := "request body must be a JSON object"
		if err != nil {
			msg = fmt.Sprintf("invalid JSON: %v", err)
		}
		return nil, &RequestError{Status: http.StatusBadRequest, Message: msg, Code: types.CodeInvalidJSON, Param: "body"}
	}

	var shape types.ChatCompletionRequest
	if err := json.Unmarshal(body, &shape); err != nil {
		return nil, &RequestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid request shape: %v", err),
			Code:    types.CodeInvalidValue,
			Param:   "body",
		}
	}
	if err := shape.Validate(); err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			code := types.CodeInvalidValue
			if verr.Field == "model" || verr.Field == "messages" {
				code = types.CodeMissingField
			}
			return nil, &RequestError{Status: http.StatusBadRequest, Message: verr.Message, Code: code, Param: verr.Field}
		}
		return nil, err
	}

	return &transaction.Request{
		Method:  r.Method,
		URL:     r.URL.String(),
		Header:  r.Header.Clone(),
		Payload: payload,
	}, nil
}
