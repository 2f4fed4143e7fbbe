package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/relaymesh/llmproxy/internal/translate"
)

// SSEEvent is one `event: <name>\ndata: <json>\n\n` frame.
type SSEEvent struct {
	Name string
	Data []byte
}

// Encode renders the frame exactly as §4.8 specifies.
func (e SSEEvent) Encode() []byte {
	var b bytes.Buffer
	b.WriteString("event: ")
	b.WriteString(e.Name)
	b.WriteString("\ndata: ")
	b.Write(e.Data)
	b.WriteString("\n\n")
	return b.Bytes()
}

type sseMessageStart struct {
	Type    string                 `json:"type"`
	Message sseMessageStartMessage `json:"message"`
}

type sseMessageStartMessage struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []any          `json:"content"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        sseUsageStart  `json:"usage"`
}

type sseUsageStart struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type sseContentBlockStart struct {
	Type         string               `json:"type"`
	Index        int                  `json:"index"`
	ContentBlock sseContentBlockShape `json:"content_block"`
}

type sseContentBlockShape struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type sseContentBlockDelta struct {
	Type  string        `json:"type"`
	Index int           `json:"index"`
	Delta sseDeltaShape `json:"delta"`
}

type sseDeltaShape struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type sseContentBlockStop struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type sseMessageDelta struct {
	Type  string              `json:"type"`
	Delta sseMessageDeltaBody `json:"delta"`
	Usage sseUsageDelta       `json:"usage"`
}

type sseMessageDeltaBody struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type sseUsageDelta struct {
	OutputTokens int `json:"output_tokens"`
}

// BuildSynthesizedSSE turns one complete Anthropic response into the
// fixed §4.8 event sequence: message_start, then per content block
// content_block_start/delta/stop, then message_delta, then
// message_stop.
func BuildSynthesizedSSE(resp translate.AnthropicResponse) []SSEEvent {
	var events []SSEEvent

	start := sseMessageStart{
		Type: "message_start",
		Message: sseMessageStartMessage{
			ID:      resp.ID,
			Type:    "message",
			Role:    "assistant",
			Model:   resp.Model,
			Content: []any{},
			Usage: sseUsageStart{
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: 0,
			},
		},
	}
	events = append(events, jsonEvent("message_start", start))

	for i, block := range resp.Content {
		blockStart := sseContentBlockStart{Type: "content_block_start", Index: i}
		var delta sseDeltaShape
		switch block.Type {
		case "tool_use":
			blockStart.ContentBlock = sseContentBlockShape{Type: "tool_use", ID: block.ID, Name: block.Name, Input: json.RawMessage(`{}`)}
			delta = sseDeltaShape{Type: "input_json_delta", PartialJSON: string(block.Input)}
		default:
			blockStart.ContentBlock = sseContentBlockShape{Type: "text", Text: ""}
			delta = sseDeltaShape{Type: "text_delta", Text: block.Text}
		}
		events = append(events, jsonEvent("content_block_start", blockStart))
		events = append(events, jsonEvent("content_block_delta", sseContentBlockDelta{
			Type: "content_block_delta", Index: i, Delta: delta,
		}))
		events = append(events, jsonEvent("content_block_stop", sseContentBlockStop{Type: "content_block_stop", Index: i}))
	}

	events = append(events, jsonEvent("message_delta", sseMessageDelta{
		Type: "message_delta",
		Delta: sseMessageDeltaBody{
			StopReason:   resp.StopReason,
			StopSequence: resp.StopSequence,
		},
		Usage: sseUsageDelta{OutputTokens: resp.Usage.OutputTokens},
	}))

	events = append(events, SSEEvent{Name: "message_stop", Data: []byte(`{"type":"message_stop"}`)})

	return events
}

func jsonEvent(name string, v any) SSEEvent {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"type":%q}`, name))
	}
	return SSEEvent{Name: name, Data: data}
}
