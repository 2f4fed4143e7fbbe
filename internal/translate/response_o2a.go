package translate

// AnthropicResponseFromOpenAI implements §4.4.2: translate an OpenAI
// Chat Completions response into an Anthropic Messages response.
// requestedModel is echoed back in the Model field (the client's
// requested model, not the upstream-returned one) — see SPEC_FULL.md's
// decided open question (a).
func AnthropicResponseFromOpenAI(resp OpenAIResponse, requestedModel string) AnthropicResponse {
	out := AnthropicResponse{
		ID:    newMessageID(),
		Type:  "message",
		Role:  "assistant",
		Model: requestedModel,
		Usage: AnthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}

	if len(resp.Choices) == 0 {
		out.StopReason = "end_turn"
		return out
	}

	msg := resp.Choices[0].Message

	if msg.Content != "" {
		out.Content = append(out.Content, ContentBlock{Type: "text", Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		out.Content = append(out.Content, ContentBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: parseToolArguments(tc.Function.Arguments),
		})
	}

	switch resp.Choices[0].FinishReason {
	case "length":
		out.StopReason = "max_tokens"
	case "tool_calls":
		out.StopReason = "tool_use"
	default:
		out.StopReason = "end_turn"
	}

	return out
}
