package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/llmproxy/internal/reasoning"
	"github.com/relaymesh/llmproxy/internal/route"
	"github.com/relaymesh/llmproxy/internal/session"
	"github.com/relaymesh/llmproxy/internal/trajectory"
	"github.com/relaymesh/llmproxy/internal/upstream"
)

func newTestRuntime(t *testing.T, routes []route.Route) (*Runtime, string) {
	t.Helper()
	dir := t.TempDir()
	tbl, err := route.NewTable(routes)
	require.NoError(t, err)
	return NewRuntime(tbl, session.NewRegistry(nil), reasoning.NewCache(), trajectory.NewStore(dir), upstream.NewClient()), dir
}

// Scenario 1: Anthropic downstream, openai upstream, plain text reply.
func TestHandleAnthropic_TextViaOpenAIUpstream(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-xyz", "object": "chat.completion", "created": 1,
			"model": "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "hi there"},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
		})
	}))
	defer upstreamSrv.Close()

	rt, _ := newTestRuntime(t, []route.Route{{
		Name: "claude-3", RequestModel: "claude-3", UpstreamProtocol: route.ProtocolOpenAI,
		UpstreamBaseURL: upstreamSrv.URL, UpstreamModel: "gpt-4o", UpstreamAPIKey: "sk-test", TimeoutSeconds: 5,
	}})

	body, _ := json.Marshal(map[string]any{
		"model": "claude-3", "max_tokens": 100,
		"messages": []map[string]any{{"role": "user", "content": "hello"}},
	})
	out, perr := rt.HandleAnthropic(context.Background(), "tok1", body)
	require.Nil(t, perr)
	assert.Equal(t, 200, out.Status)
	assert.Equal(t, jsonContentType, out.ContentType)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out.Body, &resp))
	assert.Equal(t, "claude-3", resp["model"])
	assert.Equal(t, "message", resp["type"])
}

// Scenario 2: tool round trip — tool_use survives Anthropic->OpenAI->Anthropic.
func TestHandleAnthropic_ToolUseRoundTrip(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
			"choices": []map[string]any{{
				"index": 0,
				"message": map[string]any{
					"role": "assistant", "content": "",
					"tool_calls": []map[string]any{{
						"id": "call_abc", "type": "function",
						"function": map[string]any{"name": "get_weather", "arguments": `{"city":"nyc"}`},
					}},
				},
				"finish_reason": "tool_calls",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
		})
	}))
	defer upstreamSrv.Close()

	rt, _ := newTestRuntime(t, []route.Route{{
		Name: "claude-3", RequestModel: "claude-3", UpstreamProtocol: route.ProtocolOpenAI,
		UpstreamBaseURL: upstreamSrv.URL, UpstreamModel: "gpt-4o", UpstreamAPIKey: "sk-test", TimeoutSeconds: 5,
	}})

	body, _ := json.Marshal(map[string]any{
		"model": "claude-3", "max_tokens": 100,
		"messages": []map[string]any{{"role": "user", "content": "weather?"}},
		"tools": []map[string]any{{"name": "get_weather", "input_schema": map[string]any{"type": "object"}}},
	})
	out, perr := rt.HandleAnthropic(context.Background(), "tok2", body)
	require.Nil(t, perr)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out.Body, &resp))
	content := resp["content"].([]any)
	require.Len(t, content, 1)
	block := content[0].(map[string]any)
	assert.Equal(t, "tool_use", block["type"])
	assert.Equal(t, "get_weather", block["name"])
	assert.Equal(t, "tool_use", resp["stop_reason"])
}

// Scenario 3: streaming synthesis when downstream asked for stream but
// upstream returned a single JSON object.
func TestHandleAnthropic_StreamingSynthesis(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "gpt-4o",
			"choices": []map[string]any{{
				"index": 0, "message": map[string]any{"role": "assistant", "content": "partial text"},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1},
		})
	}))
	defer upstreamSrv.Close()

	rt, _ := newTestRuntime(t, []route.Route{{
		Name: "claude-3", RequestModel: "claude-3", UpstreamProtocol: route.ProtocolOpenAI,
		UpstreamBaseURL: upstreamSrv.URL, UpstreamModel: "gpt-4o", UpstreamAPIKey: "sk-test", TimeoutSeconds: 5,
	}})

	body, _ := json.Marshal(map[string]any{
		"model": "claude-3", "max_tokens": 100, "stream": true,
		"messages": []map[string]any{{"role": "user", "content": "go"}},
	})
	out, perr := rt.HandleAnthropic(context.Background(), "tok3", body)
	require.Nil(t, perr)
	assert.Equal(t, sseContentType, out.ContentType)

	text := string(out.Body)
	for _, ev := range []string{"event: message_start", "event: content_block_start", "event: content_block_delta", "event: content_block_stop", "event: message_delta", "event: message_stop"} {
		assert.Contains(t, text, ev)
	}
}

// Scenario 4: route miss.
func TestHandleAnthropic_RouteNotFound(t *testing.T) {
	rt, _ := newTestRuntime(t, []route.Route{{Name: "only-route", RequestModel: "only-route", UpstreamProtocol: route.ProtocolAnthropic, UpstreamBaseURL: "http://unused", TimeoutSeconds: 1}})

	body, _ := json.Marshal(map[string]any{"model": "nonexistent", "max_tokens": 10, "messages": []map[string]any{}})
	out, perr := rt.HandleAnthropic(context.Background(), "tok4", body)
	assert.Nil(t, out)
	require.NotNil(t, perr)
	assert.Equal(t, KindRouteNotFound, perr.Kind)
	assert.Equal(t, 404, perr.Status)
}

// Scenario 5: upstream network/timeout failure still writes one query
// and one answer.
func TestHandleAnthropic_NetworkErrorStillLogsQA(t *testing.T) {
	rt, dir := newTestRuntime(t, []route.Route{{
		Name: "claude-3", RequestModel: "claude-3", UpstreamProtocol: route.ProtocolAnthropic,
		UpstreamBaseURL: "http://127.0.0.1:1", UpstreamModel: "claude-3-upstream", TimeoutSeconds: 1,
	}})

	body, _ := json.Marshal(map[string]any{"model": "claude-3", "max_tokens": 10, "messages": []map[string]any{{"role": "user", "content": "hi"}}})
	out, perr := rt.HandleAnthropic(context.Background(), "tok5", body)
	assert.Nil(t, out)
	require.NotNil(t, perr)
	assert.Equal(t, KindNetworkError, perr.Kind)
	assert.Equal(t, 502, perr.Status)

	queries, err := os.ReadDir(dir + "/tok5/query")
	require.NoError(t, err)
	answers, err := os.ReadDir(dir + "/tok5/answer")
	require.NoError(t, err)
	assert.Len(t, queries, 1)
	assert.Len(t, answers, 1)
}

// Scenario 6: reasoning_content captured on the way out is replayed on
// the next call carrying the same tool-call id.
func TestHandleOpenAI_ReasoningReplay(t *testing.T) {
	var secondReqBody map[string]any
	calls := 0
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			json.NewEncoder(w).Encode(map[string]any{
				"id": "c1", "object": "chat.completion", "created": 1, "model": "m",
				"choices": []map[string]any{{
					"index": 0,
					"message": map[string]any{
						"role": "assistant", "content": "", "reasoning_content": "because X",
						"tool_calls": []map[string]any{{"id": "call_1", "type": "function", "function": map[string]any{"name": "f", "arguments": "{}"}}},
					},
					"finish_reason": "tool_calls",
				}},
				"usage": map[string]any{},
			})
			return
		}
		json.NewDecoder(r.Body).Decode(&secondReqBody)
		json.NewEncoder(w).Encode(map[string]any{
			"id": "c2", "object": "chat.completion", "created": 1, "model": "m",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": "done"}, "finish_reason": "stop"}},
			"usage":   map[string]any{},
		})
	}))
	defer upstreamSrv.Close()

	rt, _ := newTestRuntime(t, []route.Route{{
		Name: "m", RequestModel: "m", UpstreamProtocol: route.ProtocolOpenAI,
		UpstreamBaseURL: upstreamSrv.URL, UpstreamModel: "m", UpstreamAPIKey: "k", TimeoutSeconds: 5,
	}})

	first, _ := json.Marshal(map[string]any{"model": "m", "messages": []map[string]any{{"role": "user", "content": "go"}}})
	_, perr := rt.HandleOpenAI(context.Background(), "tok6", first)
	require.Nil(t, perr)

	second, _ := json.Marshal(map[string]any{
		"model": "m",
		"messages": []map[string]any{
			{"role": "user", "content": "go"},
			{"role": "assistant", "content": "", "tool_calls": []map[string]any{{"id": "call_1", "type": "function", "function": map[string]any{"name": "f", "arguments": "{}"}}}},
			{"role": "tool", "tool_call_id": "call_1", "content": "42"},
		},
	})
	_, perr = rt.HandleOpenAI(context.Background(), "tok6", second)
	require.Nil(t, perr)

	msgs := secondReqBody["messages"].([]any)
	assistantMsg := msgs[1].(map[string]any)
	assert.Equal(t, "because X", assistantMsg["reasoning_content"])
}
