package translate

import "encoding/json"

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// anthropicToolToOpenAI maps {name, description?, input_schema} to
// {type: function, function: {name, description?, parameters}}.
func anthropicToolToOpenAI(t AnthropicTool) OpenAITool {
	params := t.InputSchema
	if len(params) == 0 {
		params = emptyObjectSchema
	}
	return OpenAITool{
		Type: "function",
		Function: OpenAIFunctionDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		},
	}
}

// openAIToolToAnthropic is the inverse mapping.
func openAIToolToAnthropic(t OpenAITool) AnthropicTool {
	return AnthropicTool{
		Name:        t.Function.Name,
		Description: t.Function.Description,
		InputSchema: t.Function.Parameters,
	}
}
