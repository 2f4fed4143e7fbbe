package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/relaymesh/llmproxy/internal/upstream"
)

const maxRequestBodySize = 16 << 20 // 16MiB; upstream's response cap (maxResponseSize) is 10MiB

// sseContentType mirrors proxy.Outcome's SSE content type; duplicated
// here (rather than exported from proxy) since it is purely a wire
// constant the front-end compares against, not a proxy-package concern.
const sseContentType = "text/event-stream"

// readBody reads and bounds the incoming request body.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
}

// writeJSON marshals v as the full response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// writeError writes the {type:"error", error:{type,message}} shape
// used by proxy.Error responses, for failures that occur before a
// proxy.Error can be constructed (e.g. an unreadable body).
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]any{
		"type": "error",
		"error": map[string]string{
			"type":    kind,
			"message": message,
		},
	})
}

// writeControlError writes the plain {error: message} shape used by
// the control endpoints (/sessions/*), which are not part of the
// Anthropic/OpenAI wire protocol and so don't carry its error shape.
func writeControlError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// estimateTokenUsage reads a real usage object off the response body
// (Anthropic's usage.input_tokens/output_tokens or OpenAI's
// usage.prompt_tokens/completion_tokens) and only falls back to a
// local tiktoken estimate over the request/response text for whichever
// side the upstream didn't report — never overriding a real count.
func estimateTokenUsage(reqBody, respBody []byte) (inputTokens, outputTokens int) {
	usage := gjson.GetBytes(respBody, "usage")

	inputTokens = int(usage.Get("input_tokens").Int())
	if inputTokens == 0 {
		inputTokens = int(usage.Get("prompt_tokens").Int())
	}
	outputTokens = int(usage.Get("output_tokens").Int())
	if outputTokens == 0 {
		outputTokens = int(usage.Get("completion_tokens").Int())
	}

	if inputTokens == 0 {
		inputTokens = upstream.EstimateTokens(string(reqBody))
	}
	if outputTokens == 0 {
		outputTokens = upstream.EstimateTokens(string(respBody))
	}
	return inputTokens, outputTokens
}
