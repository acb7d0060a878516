package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// BuildInfo identifies the running binary on /version.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

func (s *HTTPServer) registerHealthRoutes(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readiness", func(w http.ResponseWriter, _ *http.Request) {
		streamable, sse := s.sessions.counts()
		respondJSON(w, http.StatusOK, map[string]any{
			"status": "ready",
			"tools":  len(s.handler.dispatcher.Tools()),
			"mode":   s.handler.dispatcher.Mode(),
			"sessions": map[string]int{
				"streamable": streamable,
				"sse":        sse,
			},
		})
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, s.build)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
}
