package translate

import "github.com/google/uuid"

// hexSuffix returns n hex characters of fresh entropy. Grounded on
// google/uuid as the source of randomness rather than hand-rolling a
// random-hex generator.
func hexSuffix(n int) string {
	raw := uuid.New().String()
	hex := make([]byte, 0, len(raw))
	for _, c := range raw {
		if c == '-' {
			continue
		}
		hex = append(hex, byte(c))
	}
	if n > len(hex) {
		n = len(hex)
	}
	return string(hex[:n])
}

// newCallID allocates a fresh OpenAI tool-call id.
func newCallID() string { return "call_" + hexSuffix(12) }

// newToolUseID allocates a fresh Anthropic tool_use id.
func newToolUseID() string { return "toolu_" + hexSuffix(12) }

// newMessageID allocates a fresh Anthropic message id.
func newMessageID() string { return "msg_" + hexSuffix(24) }

// newCompletionID allocates a fresh OpenAI chat completion id.
func newCompletionID() string { return "chatcmpl_" + hexSuffix(24) }
