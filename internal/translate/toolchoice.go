package translate

import "encoding/json"

type namedToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type functionToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// anthropicToolChoiceToOpenAI maps §4.4.1's tool_choice rule:
// "auto"|"none" -> identity, "any" -> "required",
// {type: tool, name} -> {type: function, function: {name}}, else omit.
func anthropicToolChoiceToOpenAI(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "auto", "none":
			out, _ := json.Marshal(s)
			return out
		case "any":
			out, _ := json.Marshal("required")
			return out
		}
		return nil
	}

	var tc namedToolChoice
	if err := json.Unmarshal(raw, &tc); err == nil && tc.Type == "tool" && tc.Name != "" {
		var out functionToolChoice
		out.Type = "function"
		out.Function.Name = tc.Name
		data, _ := json.Marshal(out)
		return data
	}

	return nil
}

// openAIToolChoiceToAnthropic maps the reverse of the above, applied
// symmetrically by §4.4.3: "auto"|"none" -> identity,
// "required" -> "any", {type: function, function: {name}} ->
// {type: tool, name}, else omit.
func openAIToolChoiceToAnthropic(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "auto", "none":
			out, _ := json.Marshal(s)
			return out
		case "required":
			out, _ := json.Marshal("any")
			return out
		}
		return nil
	}

	var tc functionToolChoice
	if err := json.Unmarshal(raw, &tc); err == nil && tc.Type == "function" && tc.Function.Name != "" {
		out := namedToolChoice{Type: "tool", Name: tc.Function.Name}
		data, _ := json.Marshal(out)
		return data
	}

	return nil
}
