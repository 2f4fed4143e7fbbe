// Package httpapi is the HTTP Front-End (C8): the concurrent HTTP
// server, request parsing, response emission (JSON, synthesized SSE,
// raw SSE passthrough), and control endpoints (§4.8).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/relaymesh/llmproxy/internal/monitoring"
	"github.com/relaymesh/llmproxy/internal/proxy"
)

// Server is the proxy's HTTP front-end.
type Server struct {
	Runtime       *proxy.Runtime
	Logger        *monitoring.Logger
	RequestLogger *monitoring.RequestLogger
	Alerts        *monitoring.AlertManager
	Telemetry     *monitoring.Tracker
	Prom          *monitoring.PromCollector

	httpServer *http.Server
}

// NewServer builds the Server and wires the endpoint table (§4.8).
func NewServer(addr string, rt *proxy.Runtime, logger *monitoring.Logger, alerts *monitoring.AlertManager, telemetry *monitoring.Tracker) *Server {
	s := &Server{
		Runtime:       rt,
		Logger:        logger,
		RequestLogger: monitoring.NewRequestLogger(logger),
		Alerts:        alerts,
		Telemetry:     telemetry,
		Prom:          monitoring.NewPromCollector(),
	}
	rt.Translations = s.Prom

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /routes", s.handleRoutes)
	mux.HandleFunc("GET /sessions", s.handleSessionsList)
	mux.HandleFunc("GET /sessions/stream", s.handleSessionsStream)
	mux.HandleFunc("POST /sessions/register", s.handleSessionsRegister)
	mux.HandleFunc("POST /sessions/event", s.handleSessionsEvent)
	mux.HandleFunc("POST /v1/messages", s.handleAnthropic)
	mux.HandleFunc("POST /v1/message", s.handleAnthropic)
	mux.HandleFunc("POST /v1/chat/completions", s.handleOpenAI)
	mux.Handle("GET /metrics", s.Prom.Handler())
	mux.HandleFunc("/", s.handleNotFound)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks, serving until Shutdown is called.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight handlers and closes the listening socket
// (§5: graceful shutdown stops accepting new connections, drains
// in-flight handlers, closes the socket).
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"routes": len(s.Runtime.Routes.List()),
	})
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	routes := s.Runtime.Routes.List()
	out := make([]map[string]any, len(routes))
	for i, rt := range routes {
		out[i] = map[string]any{
			"name":              rt.Name,
			"request_model":     rt.RequestModel,
			"upstream_provider": string(rt.UpstreamProtocol),
			"upstream_base_url": rt.UpstreamBaseURL,
			"upstream_model":    rt.UpstreamModel,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Runtime.Sessions.Snapshot())
}

func (s *Server) handleSessionsRegister(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeControlError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	var req struct {
		Token     string `json:"token"`
		SandboxID string `json:"sandbox_id"`
		TaskName  string `json:"task_name"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Token == "" {
		writeControlError(w, http.StatusBadRequest, "token is required")
		return
	}

	meta := s.Runtime.Sessions.Register(req.Token, req.SandboxID, req.TaskName)
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleSessionsEvent(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeControlError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	var req struct {
		Token     string          `json:"token"`
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Token == "" || req.EventType == "" {
		writeControlError(w, http.StatusBadRequest, "token and event_type are required")
		return
	}

	s.Runtime.Sessions.Touch(req.Token)
	if _, err := s.Runtime.Trajectory.Append(req.Token, req.EventType, req.Payload); err != nil {
		writeControlError(w, http.StatusInternalServerError, "failed to persist event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAnthropic(w http.ResponseWriter, r *http.Request) {
	s.handleChat(w, r, func(ctx context.Context, token string, body []byte) (*proxy.Outcome, *proxy.Error) {
		return s.Runtime.HandleAnthropic(ctx, token, body)
	})
}

func (s *Server) handleOpenAI(w http.ResponseWriter, r *http.Request) {
	s.handleChat(w, r, func(ctx context.Context, token string, body []byte) (*proxy.Outcome, *proxy.Error) {
		return s.Runtime.HandleOpenAI(ctx, token, body)
	})
}

type chatFn func(ctx context.Context, token string, body []byte) (*proxy.Outcome, *proxy.Error)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, fn chatFn) {
	requestID := uuid.New().String()
	start := time.Now()

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}

	sessionToken := gjson.GetBytes(body, "session_token").String()
	token := extractToken(r, sessionToken)

	s.RequestLogger.LogIncoming(monitoring.NewRequestInfo(r, requestID, len(body)))
	log.Debug().Str("request_id", requestID).Interface("headers", maskedHeaders(r.Header)).Msg("request headers")

	outcome, perr := fn(r.Context(), token, body)
	latency := time.Since(start)

	event := &monitoring.RequestEvent{
		RequestID:       requestID,
		Timestamp:       start,
		Method:          r.Method,
		Path:            r.URL.Path,
		ClientIP:        r.RemoteAddr,
		SessionToken:    token,
		RequestBodySize: len(body),
		LatencyMs:       latency.Milliseconds(),
	}

	s.Prom.UpstreamLatency.WithLabelValues(r.URL.Path).Observe(latency.Seconds())
	s.Prom.ReasoningCache.WithLabelValues().Set(float64(s.Runtime.Reasoning.Size()))

	if perr != nil {
		event.Success = false
		event.ErrorKind = string(perr.Kind)
		event.Error = perr.Message
		event.StatusCode = perr.Status
		s.Telemetry.RecordRequest(event)
		s.Prom.RequestsTotal.WithLabelValues(r.URL.Path, "error").Inc()
		if perr.Kind == proxy.KindBadRequest || perr.Kind == proxy.KindRouteNotFound {
			s.Alerts.FlagInvalidRequest(requestID, string(perr.Kind), nil)
		}
		if perr.Kind == proxy.KindUpstreamError {
			s.Alerts.FlagProviderError(requestID, token, perr.Status, perr.Message)
		}
		if perr.Kind == proxy.KindNetworkError {
			s.Alerts.FlagUpstreamTimeout(requestID, token, r.URL.Path, latency)
		}
		writeJSON(w, perr.Status, perr.Body())
		s.RequestLogger.LogResponse(&monitoring.ResponseInfo{RequestID: requestID, StatusCode: perr.Status, Latency: latency})
		return
	}

	event.Success = true
	event.StatusCode = outcome.Status
	event.ResponseBodySize = len(outcome.Body)
	event.InputTokens, event.OutputTokens = estimateTokenUsage(body, outcome.Body)
	s.Telemetry.RecordRequest(event)
	s.Prom.RequestsTotal.WithLabelValues(r.URL.Path, "success").Inc()
	s.Alerts.FlagHighLatency(requestID, latency, token, r.URL.Path)

	w.Header().Set("Content-Type", outcome.ContentType)
	if outcome.ContentType == sseContentType {
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "close")
	}
	w.WriteHeader(outcome.Status)
	w.Write(outcome.Body)

	s.RequestLogger.LogResponse(&monitoring.ResponseInfo{RequestID: requestID, StatusCode: outcome.Status, Latency: latency})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
}
