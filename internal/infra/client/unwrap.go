package client

import "encoding/json"

// Unwrapped is the caller-facing shape of a successful tools/call result:
// the decoded result object plus, when the server replied with a content
// sequence, the text of its first element.
type Unwrapped struct {
	Data any
	Text string
}

// UnwrapCallResult extracts the primary payload from a raw tools/call result.
// When result.content is a sequence whose first element carries a text field,
// that text becomes the primary payload; the decoded result is always passed
// through unmodified. A result that does not decode as an object is returned
// as-is with no text.
func UnwrapCallResult(raw json.RawMessage) Unwrapped {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Unwrapped{Data: string(raw)}
	}
	out := Unwrapped{Data: decoded}

	object, ok := decoded.(map[string]any)
	if !ok {
		return out
	}
	content, ok := object["content"].([]any)
	if !ok || len(content) == 0 {
		return out
	}
	first, ok := content[0].(map[string]any)
	if !ok {
		return out
	}
	if text, ok := first["text"].(string); ok {
		out.Text = text
	}
	return out
}
