package server

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/chuangyeshuo/mcprapi/internal/telemetry"
)

// HTTPOptions configures the HTTP transport.
type HTTPOptions struct {
	Build    BuildInfo
	Contract []byte
	// Metrics, when non-nil, instruments every route and serves /metrics.
	Metrics *telemetry.Metrics
	// RateLimitRPS enables a per-client limiter on the MCP endpoints when > 0.
	RateLimitRPS   float64
	RateLimitBurst int
}

// HTTPServer wraps MCP HTTP routing state.
type HTTPServer struct {
	handler  *Handler
	build    BuildInfo
	contract []byte
	metrics  *telemetry.Metrics
	limiter  *clientLimiter
	sessions *sessionStore
	inflight sync.WaitGroup
	logger   zerolog.Logger
}

// NewHTTPServer creates an HTTP transport server with health and MCP routes.
func NewHTTPServer(handler *Handler, opts HTTPOptions, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		handler:  handler,
		build:    opts.Build,
		contract: opts.Contract,
		metrics:  opts.Metrics,
		sessions: newSessionStore(),
		logger:   logger.With().Str("component", "http").Logger(),
	}
	if opts.RateLimitRPS > 0 {
		s.limiter = newClientLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}
	return s
}

// Router builds the MCP HTTP router.
func (s *HTTPServer) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(Recoverer(s.logger))
	r.Use(s.metrics.Instrument(routePattern))

	s.registerHealthRoutes(r)

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}
		r.Post("/mcp", s.handleStreamablePost)
		r.Get("/mcp", s.handleStreamableGet)
		r.Delete("/mcp", s.handleStreamableDelete)

		r.Get("/sse", s.handleSSEStream)
		r.Post(messagesPath, s.handleSSEMessage)
		r.Post("/messages", s.handleSSEMessage)
	})

	r.Get("/api/tools.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(s.contract)
	})

	return r
}

// CloseStreams ends every open SSE stream so graceful shutdown can complete.
func (s *HTTPServer) CloseStreams() {
	s.sessions.closeAllSSE()
}

// Wait blocks until messages accepted on the SSE surface have been processed.
func (s *HTTPServer) Wait() {
	s.inflight.Wait()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
