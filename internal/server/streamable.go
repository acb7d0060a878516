package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chuangyeshuo/mcprapi/internal/auth"
)

const (
	sessionHeader  = "Mcp-Session-Id"
	maxRequestBody = 1 << 20
)

// handleStreamablePost serves POST /mcp: one JSON-RPC message or batch in,
// a JSON response out.
func (s *HTTPServer) handleStreamablePost(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
	if sessionID != "" && !s.sessions.hasStreamable(sessionID) {
		respondProblem(w, r, http.StatusNotFound, "unknown or expired MCP session")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		respondProblem(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("reading request body: %v", err))
		return
	}

	if sessionID == "" && isInitialize(payload) {
		sessionID = s.sessions.startStreamable()
		w.Header().Set(sessionHeader, sessionID)
	}

	ctx := auth.WithHeaders(r.Context(), auth.HeadersFromHTTP(r.Header))
	resp := s.handler.handlePayload(ctx, payload, callMeta{
		Transport: TransportStreamable,
		SessionID: sessionID,
		RequestID: RequestIDFromContext(r.Context()),
	})
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleStreamableGet rejects server-initiated streams; this server only
// answers requests.
func (s *HTTPServer) handleStreamableGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST, DELETE")
	respondProblem(w, r, http.StatusMethodNotAllowed, "server-initiated streams are not supported; POST JSON-RPC messages to this endpoint")
}

// handleStreamableDelete ends a session.
func (s *HTTPServer) handleStreamableDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
	if sessionID == "" {
		respondProblem(w, r, http.StatusBadRequest, sessionHeader+" header is required")
		return
	}
	if !s.sessions.endStreamable(sessionID) {
		respondProblem(w, r, http.StatusNotFound, "unknown or expired MCP session")
		return
	}
	s.logger.Info().Str("session_id", sessionID).Msg("streamable session ended")
	w.WriteHeader(http.StatusNoContent)
}
