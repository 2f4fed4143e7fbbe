package translate

import "encoding/json"

// decodeBlocks parses an Anthropic polymorphic content field (string
// or []ContentBlock) into blocks. A plain string decodes as a single
// text block.
func decodeBlocks(raw json.RawMessage) ([]ContentBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return blocks, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil, nil
		}
		return []ContentBlock{{Type: "text", Text: s}}, nil
	}

	return nil, nil
}

// flattenText renders an Anthropic polymorphic content field as plain
// text: a string passes through unchanged, a list of blocks
// concatenates all text blocks joined by "\n".
func flattenText(raw json.RawMessage) string {
	blocks, err := decodeBlocks(raw)
	if err != nil {
		return ""
	}
	return joinTextBlocks(blocks)
}

func joinTextBlocks(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return joinNewline(parts)
}

func joinNewline(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}

// serializeToolResultContent renders a tool_result block's polymorphic
// content field (string or list of text blocks) as a plain string, the
// shape an OpenAI "tool" role message's content expects.
func serializeToolResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return joinTextBlocks(blocks)
	}

	return string(raw)
}
