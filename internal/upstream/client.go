// Package upstream is the Upstream Client (C5): a thin JSON-POST
// client that distinguishes network failure, non-JSON bodies, and
// HTTP error status from a successful call, grounded on the teacher
// repository's external.CallLLM request/response handling.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// maxResponseSize guards against unbounded reads from a misbehaving
// upstream.
const maxResponseSize = 10 * 1024 * 1024

// Result is the outcome of a successful upstream call (status >= 0
// means the upstream was reached at all, including its own errors;
// network failures never produce a Result, only an error of type
// *NetworkError from Client.Post).
type Result struct {
	Status      int
	ContentType string
	Body        []byte
}

// NetworkError wraps a DNS/connect/timeout failure reaching the
// upstream at all. §4.5 requires the Runtime to synthesize a 502
// network_error from this.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Client posts JSON payloads to upstream URLs.
type Client struct {
	httpClient *http.Client
}

// NewClient constructs an upstream client. A standard client with
// keep-alive suffices (§5); no connection pool is mandated beyond
// Go's default transport.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

// Post sends payload as a JSON POST to url with the given headers and
// a per-request timeout taken from the matched Route (§4.5). Network
// failures (DNS, connect, timeout) return *NetworkError; anything that
// reached the upstream — including HTTP >= 400 — returns a Result with
// no error, leaving the status/body interpretation to the caller.
func (c *Client) Post(ctx context.Context, url string, payload []byte, headers map[string]string, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := newSignableRequest(ctx, url, payload)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	// http.Client.Do only ever returns an error for transport-level
	// failures (DNS, connect, timeout, redirect loops) — an HTTP error
	// status is a normal, non-error response. So any error here is a
	// network_error per §4.5.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	return &Result{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// newSignableRequest builds a POST request with a JSON content type,
// shared by the plain and SigV4-signed call paths.
func newSignableRequest(ctx context.Context, url string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// readLimited reads a response body bounded by maxResponseSize.
func readLimited(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, maxResponseSize))
}

// IsJSON reports whether contentType names a JSON body, accepting the
// common "application/json; charset=utf-8" variants.
func IsJSON(contentType string) bool {
	return len(contentType) >= len("application/json") && contentType[:len("application/json")] == "application/json"
}

// IsEventStream reports whether contentType names an SSE body.
func IsEventStream(contentType string) bool {
	return len(contentType) >= len("text/event-stream") && contentType[:len("text/event-stream")] == "text/event-stream"
}

// DecodeJSON is a small helper used by callers that need to confirm a
// body is valid JSON before committing to a typed decode. It does not
// look at the response's Content-Type.
func DecodeJSON(body []byte, v any) error {
	if !json.Valid(body) {
		return fmt.Errorf("upstream: body is not valid JSON")
	}
	return json.Unmarshal(body, v)
}

// RewriteModel replaces the top-level "model" field of a JSON payload
// in place, without decoding and re-marshaling the rest of the
// document (which would silently drop any field the local struct
// doesn't model). Used to rewrite the outgoing model name on the
// Anthropic passthrough path, where the body is forwarded otherwise
// unmodified.
func RewriteModel(payload []byte, model string) ([]byte, error) {
	out, err := sjson.SetBytes(payload, "model", model)
	if err != nil {
		return nil, fmt.Errorf("upstream: rewrite model field: %w", err)
	}
	return out, nil
}

// HasReplayableState reports whether an OpenAI-shaped chat-completion
// response body carries anything the reasoning cache would need to
// remember: a non-empty reasoning_content or at least one tool call on
// the first choice. Callers use this to skip a full typed decode on
// the common case where neither is present.
func HasReplayableState(body []byte) bool {
	msg := gjson.GetBytes(body, "choices.0.message")
	if !msg.Exists() {
		return false
	}
	if msg.Get("reasoning_content").String() != "" {
		return true
	}
	return msg.Get("tool_calls.0").Exists()
}

var tokenEncoding = sync.OnceValue(func() *tiktoken.Tiktoken {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil
	}
	return enc
})

// EstimateTokens estimates the token count of text using the same
// byte-pair encoding OpenAI's own models use. Only a local estimate
// for telemetry/alerting when an upstream response omits usage
// entirely; never overrides a real usage field the upstream returned.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	enc := tokenEncoding()
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.EncodeOrdinary(text))
}
