package streaming

import (
	"encoding/json"
	"fmt"
	"time"
)

// Chunk is one event of a streaming chat completion. Data holds the event
// payload exactly as it appears after "data: " on the wire, normally a
// chat.completion.chunk JSON object.
type Chunk struct {
	Data []byte
}

// String returns the raw event payload.
func (c Chunk) String() string {
	return string(c.Data)
}

// Content returns the delta text of the first choice. The boolean is false
// when the chunk is not JSON or carries no text delta (role-only or finish
// chunks).
func (c Chunk) Content() (string, bool) {
	var evt struct {
		Choices []struct {
			Delta struct {
				Content *string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(c.Data, &evt); err != nil {
		return "", false
	}
	if len(evt.Choices) == 0 || evt.Choices[0].Delta.Content == nil {
		return "", false
	}
	return *evt.Choices[0].Delta.Content, true
}

// WithContent returns a copy of the chunk with the first choice's delta text
// replaced. Every other field of the event is preserved.
func (c Chunk) WithContent(content string) (Chunk, error) {
	var evt map[string]any
	if err := json.Unmarshal(c.Data, &evt); err != nil {
		return c, &ChunkError{Message: "chunk is not a JSON object", Cause: err}
	}

	choices, ok := evt["choices"].([]any)
	if !ok || len(choices) == 0 {
		return c, &ChunkError{Message: "chunk has no choices"}
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return c, &ChunkError{Message: "chunk choice is not an object"}
	}
	delta, ok := choice["delta"].(map[string]any)
	if !ok {
		delta = make(map[string]any)
		choice["delta"] = delta
	}
	delta["content"] = content

	data, err := json.Marshal(evt)
	if err != nil {
		return c, &ChunkError{Message: "failed to encode chunk", Cause: err}
	}
	return Chunk{Data: data}, nil
}

// TextChunk builds a chat.completion.chunk event carrying a single text delta.
func TextChunk(id, model, content string) Chunk {
	evt := map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"delta":         map[string]any{"content": content},
				"finish_reason": nil,
			},
		},
	}
	data, err := json.Marshal(evt)
	if err != nil {
		// map of primitives always encodes
		panic(fmt.Sprintf("streaming: encode text chunk: %v", err))
	}
	return Chunk{Data: data}
}

// FinishChunk builds the closing chat.completion.chunk event with an empty
// delta and the given finish reason.
func FinishChunk(id, model, reason string) Chunk {
	evt := map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"delta":         map[string]any{},
				"finish_reason": reason,
			},
		},
	}
	data, _ := json.Marshal(evt)
	return Chunk{Data: data}
}
