package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chuangyeshuo/mcprapi/internal/auth"
)

const (
	messagesPath      = "/messages/"
	sseKeepAlive      = 15 * time.Second
	sseSessionIDParam = "session_id"
)

// handleSSEStream serves GET /sse. The first event names the endpoint the
// client posts messages to; responses follow as message events.
func (s *HTTPServer) handleSSEStream(w http.ResponseWriter, r *http.Request) {
	controller := http.NewResponseController(w)

	session := s.sessions.openSSE()
	defer s.sessions.closeSSE(session.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	logger := s.logger.With().Str("session_id", session.id).Logger()
	logger.Info().Msg("sse session opened")
	defer logger.Info().Msg("sse session closed")

	endpoint := messagesPath + "?" + sseSessionIDParam + "=" + session.id
	if err := writeSSEEvent(w, "endpoint", endpoint); err != nil {
		return
	}
	if err := controller.Flush(); err != nil {
		logger.Warn().Err(err).Msg("response writer does not support flushing")
		return
	}

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-session.done:
			return
		case payload := <-session.events:
			if err := writeSSEEvent(w, "message", string(payload)); err != nil {
				logger.Debug().Err(err).Msg("writing sse message")
				return
			}
			_ = controller.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			_ = controller.Flush()
		}
	}
}

// handleSSEMessage serves POST /messages/?session_id=. The message is
// accepted immediately and answered on the session's stream.
func (s *HTTPServer) handleSSEMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get(sseSessionIDParam))
	if sessionID == "" {
		respondProblem(w, r, http.StatusBadRequest, "session_id is required")
		return
	}
	session, ok := s.sessions.lookupSSE(sessionID)
	if !ok {
		respondProblem(w, r, http.StatusNotFound, "could not find session")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		respondProblem(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("reading request body: %v", err))
		return
	}
	if !json.Valid(payload) {
		respondProblem(w, r, http.StatusBadRequest, "could not parse message")
		return
	}

	// The call outlives this request; keep its values but not its cancellation.
	ctx := auth.WithHeaders(context.WithoutCancel(r.Context()), auth.HeadersFromHTTP(r.Header))
	meta := callMeta{
		Transport: TransportSSE,
		SessionID: sessionID,
		RequestID: RequestIDFromContext(r.Context()),
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		resp := s.handler.handlePayload(ctx, payload, meta)
		if resp == nil {
			return
		}
		encoded, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error().Err(err).Msg("encoding sse response")
			return
		}
		if !session.deliver(encoded) {
			s.logger.Warn().Str("session_id", sessionID).Msg("sse session closed before response was delivered")
		}
	}()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
}

func writeSSEEvent(w io.Writer, event, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", strings.TrimSpace(event)); err != nil {
		return err
	}
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}
