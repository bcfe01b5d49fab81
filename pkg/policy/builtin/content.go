package builtin

import (
	"fmt"

	"mercator-hq/luthien/pkg/transaction"
)

// rewriteMessages applies fn to every string message content in a chat
// request payload. It reports whether anything changed.
func rewriteMessages(payload map[string]any, fn func(string) string) bool {
	messages, _ := payload["messages"].([]any)
	changed := false
	for _, m := range messages {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := msg["content"].(string); ok {
			if out := fn(s); out != s {
				msg["content"] = out
				changed = true
			}
		}
	}
	return changed
}

// rewriteResponse applies fn to every choice's message content of a
// buffered chat completion.
func rewriteResponse(resp *transaction.Response, fn func(string) string) error {
	payload, err := resp.Payload()
	if err != nil {
		return err
	}
	if payload == nil {
		return nil
	}

	choices, _ := payload["choices"].([]any)
	changed := false
	for _, c := range choices {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		msg, ok := choice["message"].(map[string]any)
		if !ok {
			continue
		}
		if s, ok := msg["content"].(string); ok {
			msg["content"] = fn(s)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return resp.SetPayload(payload)
}

// responseText concatenates the message content of every choice.
func responseText(resp *transaction.Response) (string, error) {
	payload, err := resp.Payload()
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	choices, _ := payload["choices"].([]any)
	var text string
	for _, c := range choices {
		choice, _ := c.(map[string]any)
		msg, _ := choice["message"].(map[string]any)
		if s, ok := msg["content"].(string); ok {
			text += s
		}
	}
	return text, nil
}
