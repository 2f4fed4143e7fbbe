package translate

import "time"

// OpenAIResponseFromAnthropic implements §4.4.4: translate an
// Anthropic Messages response into an OpenAI Chat Completions
// response (symmetric to §4.4.2).
func OpenAIResponseFromAnthropic(resp AnthropicResponse, requestedModel string) OpenAIResponse {
	msg := OpenAIMessage{Role: "assistant"}

	var textParts []string
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, OpenAIToolCall{
				ID:   b.ID,
				Type: "function",
				Function: OpenAIFunctionCall{
					Name:      b.Name,
					Arguments: stringifyInput(b.Input),
				},
			})
		}
	}
	msg.Content = joinNewline(textParts)

	var finishReason string
	switch resp.StopReason {
	case "max_tokens":
		finishReason = "length"
	case "tool_use":
		finishReason = "tool_calls"
	default:
		finishReason = "stop"
	}

	return OpenAIResponse{
		ID:      newCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   requestedModel,
		Choices: []OpenAIChoice{{Index: 0, Message: msg, FinishReason: finishReason}},
		Usage: OpenAIUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}
