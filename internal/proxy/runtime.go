// Package proxy is the Proxy Runtime (C7): the orchestrator wiring the
// Route Table, Session Registry, Reasoning Cache, Trajectory Store,
// Protocol Translator, and Upstream Client into the two request flows
// (§4.7). It never touches configuration parsing or CLI plumbing.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaymesh/llmproxy/internal/reasoning"
	"github.com/relaymesh/llmproxy/internal/route"
	"github.com/relaymesh/llmproxy/internal/session"
	"github.com/relaymesh/llmproxy/internal/trajectory"
	"github.com/relaymesh/llmproxy/internal/translate"
	"github.com/relaymesh/llmproxy/internal/upstream"
)

// Outcome is what the Runtime hands back to the HTTP front-end: either
// a single JSON body or a synthesized/passthrough event-stream body.
// The Upstream Client already buffers the full upstream response (it
// has to, to write one complete trajectory answer file), so both
// streaming modes are expressed as a fully-built byte body with the
// right Content-Type rather than an incremental writer.
type Outcome struct {
	Status      int
	ContentType string
	Body        []byte
}

// Runtime holds the explicit collaborators (§9: never ambient
// globals).
type Runtime struct {
	Routes     *route.Table
	Sessions   *session.Registry
	Reasoning  *reasoning.Cache
	Trajectory *trajectory.Store
	Upstream   *upstream.Client

	// BedrockSigner is nil unless a route.ProtocolBedrock route is
	// configured; SigV4 credentials are resolved once at startup.
	BedrockSigner *upstream.BedrockSigner

	// Index is the optional trajectory index (internal/trajindex);
	// nil unless the caller wired one. Annotated with the route name
	// and upstream status once an answer is known, supplementing the
	// token/stem/timestamp rows the trajectory.Store itself records.
	Index indexAnnotator

	// Translations is the optional Prometheus counter sink; nil unless
	// the caller wired one.
	Translations translationCounter
}

// indexAnnotator is satisfied by *trajindex.Index; declared here
// rather than imported so the core orchestrator depends only on the
// capability it uses.
type indexAnnotator interface {
	Annotate(token, stem, routeName string, status int)
}

// translationCounter is satisfied by *monitoring.PromCollector, whose
// CountTranslation method increments its TranslationTotal vector;
// declared here so this package stays free of a monitoring import.
type translationCounter interface {
	CountTranslation(direction string)
}

func (rt *Runtime) countTranslation(direction string) {
	if rt.Translations != nil {
		rt.Translations.CountTranslation(direction)
	}
}

// NewRuntime wires the collaborators together.
func NewRuntime(routes *route.Table, sessions *session.Registry, reasoningCache *reasoning.Cache, traj *trajectory.Store, up *upstream.Client) *Runtime {
	return &Runtime{
		Routes:     routes,
		Sessions:   sessions,
		Reasoning:  reasoningCache,
		Trajectory: traj,
		Upstream:   up,
	}
}

const (
	sseContentType  = "text/event-stream"
	jsonContentType = "application/json"
)

func sseBody(events []SSEEvent) []byte {
	var out []byte
	for _, e := range events {
		out = append(out, e.Encode()...)
	}
	return out
}

// HandleAnthropic implements the Anthropic-downstream flow (§4.7,
// steps 1-5): POST /v1/messages or /v1/message.
func (rt *Runtime) HandleAnthropic(ctx context.Context, token string, body []byte) (*Outcome, *Error) {
	rt.Sessions.Touch(token)

	var req translate.AnthropicRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Model == "" {
		rt.logBadRequest(token, "anthropic_request", body)
		return nil, newError(KindBadRequest, 400, "request body must be valid JSON with a non-empty model field", err)
	}

	rt.Trajectory.Append(token, "anthropic_request", json.RawMessage(body))

	r, err := rt.Routes.Match(req.Model)
	if err != nil {
		rt.Trajectory.Append(token, "route_not_found", map[string]string{"requested_model": req.Model})
		return nil, newError(KindRouteNotFound, 404, err.Error(), err)
	}

	stem, qerr := rt.Trajectory.WriteQuery(token, json.RawMessage(body))
	if qerr != nil {
		return nil, newError(KindInvalidProxyResponse, 500, "failed to persist query", qerr)
	}

	switch r.UpstreamProtocol {
	case route.ProtocolOpenAI:
		return rt.anthropicViaOpenAI(ctx, token, stem, req, r)
	case route.ProtocolBedrock:
		return rt.anthropicViaBedrock(ctx, token, stem, req, r)
	default:
		return rt.anthropicPassthrough(ctx, token, stem, body, req, r)
	}
}

// anthropicViaBedrock invokes a Bedrock-hosted Claude model. Bedrock's
// InvokeModel body is the Anthropic Messages shape plus a literal
// "anthropic_version", SigV4-signed instead of carrying an API key.
func (rt *Runtime) anthropicViaBedrock(ctx context.Context, token, stem string, req translate.AnthropicRequest, r route.Route) (*Outcome, *Error) {
	if rt.BedrockSigner == nil || !rt.BedrockSigner.IsConfigured() {
		return nil, newError(KindInvalidProxyResponse, 500, "bedrock route configured but no AWS credentials available", nil)
	}

	type bedrockRequest struct {
		translate.AnthropicRequest
		AnthropicVersion string `json:"anthropic_version"`
	}
	payload, _ := json.Marshal(bedrockRequest{AnthropicRequest: req, AnthropicVersion: "bedrock-2023-05-31"})

	url := fmt.Sprintf("%s/model/%s/invoke", r.UpstreamBaseURL, r.UpstreamModel)
	res, err := rt.Upstream.PostSigned(ctx, rt.BedrockSigner, url, payload, time.Duration(r.TimeoutSeconds)*time.Second)
	if err != nil {
		return rt.writeNetworkError(token, stem, err)
	}
	if res.Status >= 400 {
		return rt.writeUpstreamError(token, stem, res)
	}
	rt.Trajectory.WriteAnswer(token, stem, json.RawMessage(res.Body))
	rt.annotateIndex(token, stem, r.Name, res.Status)
	return &Outcome{Status: 200, ContentType: jsonContentType, Body: res.Body}, nil
}

func (rt *Runtime) anthropicPassthrough(ctx context.Context, token, stem string, rawBody []byte, req translate.AnthropicRequest, r route.Route) (*Outcome, *Error) {
	payload, perr := upstream.RewriteModel(rawBody, r.UpstreamModel)
	if perr != nil {
		// Fall back to the typed struct if the raw body can't be
		// rewritten in place.
		req.Model = r.UpstreamModel
		payload, _ = json.Marshal(req)
	}

	res, err := rt.Upstream.Post(ctx, r.UpstreamBaseURL+"/v1/messages", payload, map[string]string{
		"x-api-key":         r.UpstreamAPIKey,
		"anthropic-version": "2023-06-01",
	}, time.Duration(r.TimeoutSeconds)*time.Second)
	if err != nil {
		return rt.writeNetworkError(token, stem, err)
	}
	if res.Status >= 400 {
		return rt.writeUpstreamError(token, stem, res)
	}
	if req.Stream && upstream.IsEventStream(res.ContentType) {
		rt.Trajectory.WriteAnswer(token, stem, json.RawMessage(res.Body))
		rt.annotateIndex(token, stem, r.Name, res.Status)
		return &Outcome{Status: 200, ContentType: sseContentType, Body: res.Body}, nil
	}
	if !upstream.IsJSON(res.ContentType) && !json.Valid(res.Body) {
		return rt.writeInvalidUpstreamResponse(token, stem, "upstream returned a non-JSON body", nil)
	}
	rt.Trajectory.WriteAnswer(token, stem, json.RawMessage(res.Body))
	rt.annotateIndex(token, stem, r.Name, res.Status)
	return &Outcome{Status: 200, ContentType: jsonContentType, Body: res.Body}, nil
}

func (rt *Runtime) anthropicViaOpenAI(ctx context.Context, token, stem string, req translate.AnthropicRequest, r route.Route) (*Outcome, *Error) {
	rt.countTranslation("anthropic_to_openai")
	oaiReq, terr := translate.AnthropicRequestToOpenAI(req)
	if terr != nil {
		return nil, newError(KindInvalidProxyResponse, 500, "failed to translate request", terr)
	}
	oaiReq.Model = r.UpstreamModel

	rt.injectReasoning(token, oaiReq.Messages)

	payload, _ := json.Marshal(oaiReq)
	res, err := rt.Upstream.Post(ctx, r.UpstreamBaseURL+"/chat/completions", payload, map[string]string{
		"Authorization": "Bearer " + r.UpstreamAPIKey,
	}, time.Duration(r.TimeoutSeconds)*time.Second)
	if err != nil {
		return rt.writeNetworkError(token, stem, err)
	}
	if res.Status >= 400 {
		return rt.writeUpstreamError(token, stem, res)
	}

	var oaiResp translate.OpenAIResponse
	if derr := upstream.DecodeJSON(res.Body, &oaiResp); derr != nil {
		return rt.writeInvalidUpstreamResponse(token, stem, "upstream returned a non-JSON body", derr)
	}
	rt.rememberReasoning(token, oaiResp)

	anthResp := translate.AnthropicResponseFromOpenAI(oaiResp, req.Model)

	if req.Stream {
		events := BuildSynthesizedSSE(anthResp)
		body := sseBody(events)
		rt.Trajectory.WriteAnswer(token, stem, anthResp)
		rt.annotateIndex(token, stem, r.Name, res.Status)
		return &Outcome{Status: 200, ContentType: sseContentType, Body: body}, nil
	}

	out, _ := json.Marshal(anthResp)
	rt.Trajectory.WriteAnswer(token, stem, anthResp)
	rt.annotateIndex(token, stem, r.Name, res.Status)
	return &Outcome{Status: 200, ContentType: jsonContentType, Body: out}, nil
}

// HandleOpenAI implements the symmetric OpenAI-downstream flow: POST
// /v1/chat/completions.
func (rt *Runtime) HandleOpenAI(ctx context.Context, token string, body []byte) (*Outcome, *Error) {
	rt.Sessions.Touch(token)

	var req translate.OpenAIRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Model == "" {
		rt.logBadRequest(token, "openai_request", body)
		return nil, newError(KindBadRequest, 400, "request body must be valid JSON with a non-empty model field", err)
	}

	rt.Trajectory.Append(token, "openai_request", json.RawMessage(body))

	r, err := rt.Routes.Match(req.Model)
	if err != nil {
		rt.Trajectory.Append(token, "route_not_found", map[string]string{"requested_model": req.Model})
		return nil, newError(KindRouteNotFound, 404, err.Error(), err)
	}

	stem, qerr := rt.Trajectory.WriteQuery(token, json.RawMessage(body))
	if qerr != nil {
		return nil, newError(KindInvalidProxyResponse, 500, "failed to persist query", qerr)
	}

	switch r.UpstreamProtocol {
	case route.ProtocolAnthropic:
		return rt.openAIViaAnthropic(ctx, token, stem, req, r)
	default:
		return rt.openAIPassthrough(ctx, token, stem, req, r)
	}
}

func (rt *Runtime) openAIPassthrough(ctx context.Context, token, stem string, req translate.OpenAIRequest, r route.Route) (*Outcome, *Error) {
	req.Model = r.UpstreamModel
	rt.injectReasoning(token, req.Messages)

	payload, _ := json.Marshal(req)
	res, err := rt.Upstream.Post(ctx, r.UpstreamBaseURL+"/chat/completions", payload, map[string]string{
		"Authorization": "Bearer " + r.UpstreamAPIKey,
	}, time.Duration(r.TimeoutSeconds)*time.Second)
	if err != nil {
		return rt.writeNetworkError(token, stem, err)
	}
	if res.Status >= 400 {
		return rt.writeUpstreamError(token, stem, res)
	}
	if req.Stream && upstream.IsEventStream(res.ContentType) {
		rt.Trajectory.WriteAnswer(token, stem, json.RawMessage(res.Body))
		rt.annotateIndex(token, stem, r.Name, res.Status)
		return &Outcome{Status: 200, ContentType: sseContentType, Body: res.Body}, nil
	}
	if !upstream.IsJSON(res.ContentType) && !json.Valid(res.Body) {
		return rt.writeInvalidUpstreamResponse(token, stem, "upstream returned a non-JSON body", nil)
	}

	// The raw body is returned to the caller unmodified on this path, so
	// decoding it is only in service of reasoning replay; skip the
	// decode entirely when a cheap probe shows nothing worth
	// remembering.
	if upstream.HasReplayableState(res.Body) {
		var oaiResp translate.OpenAIResponse
		if derr := upstream.DecodeJSON(res.Body, &oaiResp); derr == nil {
			rt.rememberReasoning(token, oaiResp)
		}
	}

	rt.Trajectory.WriteAnswer(token, stem, json.RawMessage(res.Body))
	rt.annotateIndex(token, stem, r.Name, res.Status)
	return &Outcome{Status: 200, ContentType: jsonContentType, Body: res.Body}, nil
}

func (rt *Runtime) openAIViaAnthropic(ctx context.Context, token, stem string, req translate.OpenAIRequest, r route.Route) (*Outcome, *Error) {
	rt.countTranslation("openai_to_anthropic")
	anthReq := translate.AnthropicRequestFromOpenAI(req)
	anthReq.Model = r.UpstreamModel

	payload, _ := json.Marshal(anthReq)
	res, err := rt.Upstream.Post(ctx, r.UpstreamBaseURL+"/v1/messages", payload, map[string]string{
		"x-api-key":         r.UpstreamAPIKey,
		"anthropic-version": "2023-06-01",
	}, time.Duration(r.TimeoutSeconds)*time.Second)
	if err != nil {
		return rt.writeNetworkError(token, stem, err)
	}
	if res.Status >= 400 {
		return rt.writeUpstreamError(token, stem, res)
	}

	var anthResp translate.AnthropicResponse
	if derr := upstream.DecodeJSON(res.Body, &anthResp); derr != nil {
		return rt.writeInvalidUpstreamResponse(token, stem, "upstream returned a non-JSON body", derr)
	}

	oaiResp := translate.OpenAIResponseFromAnthropic(anthResp, req.Model)
	out, _ := json.Marshal(oaiResp)
	rt.Trajectory.WriteAnswer(token, stem, oaiResp)
	rt.annotateIndex(token, stem, r.Name, res.Status)
	return &Outcome{Status: 200, ContentType: jsonContentType, Body: out}, nil
}

func (rt *Runtime) injectReasoning(token string, messages []translate.OpenAIMessage) {
	ptrs := make([]*reasoning.OpenAIMessage, 0, len(messages))
	backing := make([]reasoning.OpenAIMessage, len(messages))
	for i, m := range messages {
		backing[i] = reasoning.OpenAIMessage{ReasoningContent: m.ReasoningContent, ToolCalls: toolCallsOf(m)}
		ptrs = append(ptrs, &backing[i])
	}
	rt.Reasoning.Inject(token, ptrs)
	for i := range messages {
		messages[i].ReasoningContent = backing[i].ReasoningContent
	}
}

func (rt *Runtime) rememberReasoning(token string, resp translate.OpenAIResponse) {
	if len(resp.Choices) == 0 {
		return
	}
	msg := resp.Choices[0].Message
	rt.Reasoning.Remember(token, reasoning.OpenAIMessage{
		ReasoningContent: msg.ReasoningContent,
		ToolCalls:        toolCallsOf(msg),
	})
}

func toolCallsOf(m translate.OpenAIMessage) []reasoning.ToolCall {
	calls := make([]reasoning.ToolCall, len(m.ToolCalls))
	for i, tc := range m.ToolCalls {
		calls[i] = reasoning.ToolCall{ID: tc.ID}
	}
	return calls
}

func (rt *Runtime) writeNetworkError(token, stem string, err error) (*Outcome, *Error) {
	perr := newError(KindNetworkError, 502, err.Error(), err)
	rt.Trajectory.WriteAnswer(token, stem, perr.Body())
	return nil, perr
}

func (rt *Runtime) writeUpstreamError(token, stem string, res *upstream.Result) (*Outcome, *Error) {
	perr := newError(KindUpstreamError, res.Status, fmt.Sprintf("upstream returned status %d: %s", res.Status, string(res.Body)), nil)
	rt.Trajectory.WriteAnswer(token, stem, perr.Body())
	return nil, perr
}

// writeInvalidUpstreamResponse records the same 502 error as the
// recorded answer for stem before returning it, so a non-JSON upstream
// body still produces exactly one answer per query (§7/§8).
func (rt *Runtime) writeInvalidUpstreamResponse(token, stem, message string, cause error) (*Outcome, *Error) {
	perr := newError(KindInvalidUpstreamResponse, 502, message, cause)
	rt.Trajectory.WriteAnswer(token, stem, perr.Body())
	return nil, perr
}

func (rt *Runtime) annotateIndex(token, stem, routeName string, status int) {
	if rt.Index != nil {
		rt.Index.Annotate(token, stem, routeName, status)
	}
}

func (rt *Runtime) logBadRequest(token, eventType string, body []byte) {
	rt.Trajectory.Append(token, eventType, json.RawMessage(rawOrNull(body)))
}

func rawOrNull(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	return []byte("null")
}
