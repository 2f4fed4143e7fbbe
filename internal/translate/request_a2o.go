package translate

// AnthropicRequestToOpenAI implements §4.4.1: translate an Anthropic
// Messages request into an OpenAI Chat Completions request.
func AnthropicRequestToOpenAI(req AnthropicRequest) (OpenAIRequest, error) {
	out := OpenAIRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}

	if len(req.System) > 0 {
		sysText := flattenText(req.System)
		out.Messages = append(out.Messages, OpenAIMessage{Role: "system", Content: sysText})
	}

	seenCallIDs := make(map[string]bool)

	for _, m := range req.Messages {
		blocks, err := decodeBlocks(m.Content)
		if err != nil {
			return OpenAIRequest{}, err
		}

		switch m.Role {
		case "assistant":
			out.Messages = append(out.Messages, assistantBlocksToOpenAI(blocks, seenCallIDs))

		case "user":
			out.Messages = append(out.Messages, userBlocksToOpenAI(blocks)...)

		case "system":
			out.Messages = append(out.Messages, OpenAIMessage{Role: "system", Content: joinTextBlocks(blocks)})

		default:
			out.Messages = append(out.Messages, OpenAIMessage{Role: m.Role, Content: joinTextBlocks(blocks)})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropicToolToOpenAI(t))
	}

	if choice := anthropicToolChoiceToOpenAI(req.ToolChoice); choice != nil {
		out.ToolChoice = choice
	}

	return out, nil
}

// assistantBlocksToOpenAI collects text blocks into content (joined by
// "\n", empty if none) and emits one tool_calls entry per tool_use
// block. seenCallIDs tracks ids already used in this translated
// message so a repeated input id is renamed with a fresh call id
// instead of colliding (§4.4.5).
func assistantBlocksToOpenAI(blocks []ContentBlock, seenCallIDs map[string]bool) OpenAIMessage {
	msg := OpenAIMessage{Role: "assistant"}

	var textParts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "tool_use":
			id := b.ID
			if id == "" || seenCallIDs[id] {
				id = newCallID()
			}
			seenCallIDs[id] = true
			msg.ToolCalls = append(msg.ToolCalls, OpenAIToolCall{
				ID:   id,
				Type: "function",
				Function: OpenAIFunctionCall{
					Name:      b.Name,
					Arguments: stringifyInput(b.Input),
				},
			})
		}
	}
	msg.Content = joinNewline(textParts)
	return msg
}

// userBlocksToOpenAI flushes pending text as one "user" message before
// each tool_result, emits each tool_result as a standalone "tool"
// message, and degrades tool_result blocks without a tool_use_id to
// pending text.
func userBlocksToOpenAI(blocks []ContentBlock) []OpenAIMessage {
	var out []OpenAIMessage
	var pending []string

	flush := func() {
		if len(pending) == 0 {
			return
		}
		out = append(out, OpenAIMessage{Role: "user", Content: joinNewline(pending)})
		pending = nil
	}

	for _, b := range blocks {
		switch b.Type {
		case "tool_result":
			if b.ToolUseID == "" {
				pending = append(pending, serializeToolResultContent(b.Content))
				continue
			}
			flush()
			content := serializeToolResultContent(b.Content)
			if b.IsError {
				content = "[tool_error]\n" + content
			}
			out = append(out, OpenAIMessage{Role: "tool", ToolCallID: b.ToolUseID, Content: content})
		case "text":
			pending = append(pending, b.Text)
		}
	}
	flush()

	return out
}
