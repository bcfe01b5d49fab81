package types

import "fmt"

// ChatCompletionRequest is the subset of the OpenAI request body the proxy
// validates before any policy runs.
type ChatCompletionRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Stream           bool      `json:"stream,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	TopP             *float64  `json:"top_p,omitempty"`
	MaxTokens        *int      `json:"max_tokens,omitempty"`
	N                *int      `json:"n,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
	Tools            []Tool    `json:"tools,omitempty"`

	// Stop is a string or a list of up to four strings.
	Stop any `json:"stop,omitempty"`
}

// Message is one entry of the conversation.
type Message struct {
	Role string `json:"role"`

	// Content is a string or an array of content parts.
	Content    any        `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Tool is a function the model may call.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a function call made by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type floatRange struct {
	field    string
	value    *float64
	min, max float64
}

// Validate checks required fields and value ranges.
func (r *ChatCompletionRequest) Validate() error {
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "messages must contain at least one message"}
	}

	for _, fr := range []floatRange{
		{"temperature", r.Temperature, 0, 2},
		{"top_p", r.TopP, 0, 1},
		{"presence_penalty", r.PresencePenalty, -2, 2},
		{"frequency_penalty", r.FrequencyPenalty, -2, 2},
	} {
		if fr.value != nil && (*fr.value < fr.min || *fr.value > fr.max) {
			return &ValidationError{
				Field:   fr.field,
				Message: fmt.Sprintf("%s must be between %g and %g", fr.field, fr.min, fr.max),
			}
		}
	}
	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return &ValidationError{Field: "max_tokens", Message: "max_tokens must be greater than 0"}
	}
	if r.N != nil && *r.N < 1 {
		return &ValidationError{Field: "n", Message: "n must be greater than 0"}
	}

	switch stop := r.Stop.(type) {
	case nil, string:
	case []any:
		if len(stop) > 4 {
			return &ValidationError{Field: "stop", Message: "stop sequences must not exceed 4"}
		}
	default:
		return &ValidationError{Field: "stop", Message: "stop must be a string or an array of strings"}
	}

	for i, msg := range r.Messages {
		if msg.Role == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: "message role is required",
			}
		}
		if msg.Content == nil && len(msg.ToolCalls) == 0 && msg.Role != "assistant" {
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].content", i),
				Message: "message content is required when no tool_calls present",
			}
		}
	}

	for i, tool := range r.Tools {
		if tool.Function.Name == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("tools[%d].function.name", i),
				Message: "tool function name is required",
			}
		}
	}
	return nil
}
