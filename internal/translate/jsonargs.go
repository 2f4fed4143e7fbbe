package translate

import "encoding/json"

// normalizeJSONValue re-marshals a decoded JSON value, wrapping
// anything that isn't an object or array as {"value": v} — per
// §4.4.1/§4.4.3's "wrap non-object/list inputs as {value: x}" rule.
func normalizeJSONValue(v any) json.RawMessage {
	switch v.(type) {
	case map[string]any, []any:
		out, _ := json.Marshal(v)
		return out
	default:
		out, _ := json.Marshal(map[string]any{"value": v})
		return out
	}
}

// normalizeInput applies the wrap rule to an already-decoded JSON
// payload (Anthropic tool_use.input before it becomes an OpenAI
// function.arguments string).
func normalizeInput(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// Not even valid JSON: preserve it as a string value rather
		// than silently dropping it.
		return normalizeJSONValue(string(raw))
	}
	return normalizeJSONValue(v)
}

// parseToolArguments parses an OpenAI function.arguments string, which
// should be JSON but empirically may not be; never panics. Non-object
// and non-array results (including parse failures) are wrapped as
// {"value": …} per §9's "Parsing arguments" design note.
func parseToolArguments(args string) json.RawMessage {
	if args == "" {
		return json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal([]byte(args), &v); err != nil {
		return normalizeJSONValue(args)
	}
	return normalizeJSONValue(v)
}

// stringifyInput renders a tool_use input block as the compact JSON
// string OpenAI's function.arguments expects, applying the wrap rule
// first.
func stringifyInput(raw json.RawMessage) string {
	return string(normalizeInput(raw))
}
