package translate

import "encoding/json"

// AnthropicRequestFromOpenAI implements §4.4.3: translate an OpenAI
// Chat Completions request into an Anthropic Messages request.
func AnthropicRequestFromOpenAI(req OpenAIRequest) AnthropicRequest {
	out := AnthropicRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}

	out.MaxTokens = req.MaxTokens
	if out.MaxTokens == 0 {
		out.MaxTokens = req.MaxCompletionTokens
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 1024
	}

	var systemParts []string
	seenToolUseIDs := make(map[string]bool)

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}

		case "user":
			out.Messages = append(out.Messages, AnthropicMessage{
				Role:    "user",
				Content: mustMarshalBlocks([]ContentBlock{{Type: "text", Text: m.Content}}),
			})

		case "assistant":
			var blocks []ContentBlock
			if m.Content != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				id := tc.ID
				if id == "" || seenToolUseIDs[id] {
					id = newToolUseID()
				}
				seenToolUseIDs[id] = true
				blocks = append(blocks, ContentBlock{
					Type:  "tool_use",
					ID:    id,
					Name:  tc.Function.Name,
					Input: parseToolArguments(tc.Function.Arguments),
				})
			}
			out.Messages = append(out.Messages, AnthropicMessage{
				Role:    "assistant",
				Content: mustMarshalBlocks(blocks),
			})

		case "tool":
			content, _ := json.Marshal(m.Content)
			block := ContentBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   content,
			}
			out.Messages = append(out.Messages, AnthropicMessage{
				Role:    "user",
				Content: mustMarshalBlocks([]ContentBlock{block}),
			})
		}
	}

	switch len(systemParts) {
	case 0:
		// no system field
	case 1:
		data, _ := json.Marshal(systemParts[0])
		out.System = data
	default:
		data, _ := json.Marshal([]ContentBlock{{Type: "text", Text: joinNewline(systemParts)}})
		out.System = data
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openAIToolToAnthropic(t))
	}

	if choice := openAIToolChoiceToAnthropic(req.ToolChoice); choice != nil {
		out.ToolChoice = choice
	}

	return out
}

func mustMarshalBlocks(blocks []ContentBlock) json.RawMessage {
	data, err := json.Marshal(blocks)
	if err != nil {
		return json.RawMessage("[]")
	}
	return data
}
