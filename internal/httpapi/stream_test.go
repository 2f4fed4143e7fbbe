package httpapi

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/llmproxy/internal/route"
	"github.com/relaymesh/llmproxy/internal/session"
)

func TestHandleSessionsStream_PushesRegisterEvent(t *testing.T) {
	s, srv := newTestServer(t, []route.Route{
		{Name: "claude-3", RequestModel: "claude-3", UpstreamProtocol: route.ProtocolAnthropic, UpstreamBaseURL: "http://example.invalid", UpstreamModel: "claude-3", TimeoutSeconds: 5},
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/stream"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// Give the handler a moment to register its subscription before
	// the event fires.
	time.Sleep(50 * time.Millisecond)
	s.Runtime.Sessions.Register("tok-stream", "sbx", "task")

	readCtx, readCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readCancel()
	_, data, err := conn.Read(readCtx)
	require.NoError(t, err)

	var meta session.Meta
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "tok-stream", meta.Token)

	conn.Close(websocket.StatusNormalClosure, "")
}
