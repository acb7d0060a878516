// Package auth extracts caller credentials and resolves per-call principals
// against the remote authorization service.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

const (
	bearerPrefix    = "Bearer "
	loggedTokenRune = 20
)

// Headers maps lower-cased header names to their first value.
type Headers map[string]string

// HeadersFromHTTP converts request headers into the lower-cased form carried in
// invocation contexts.
func HeadersFromHTTP(h http.Header) Headers {
	headers := make(Headers, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		headers[strings.ToLower(name)] = values[0]
	}
	return headers
}

// Get returns a header value using a case-insensitive name match.
func (h Headers) Get(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	lowered := strings.ToLower(name)
	if value, ok := h[lowered]; ok {
		return value, true
	}
	for key, value := range h {
		if strings.EqualFold(key, lowered) {
			return value, true
		}
	}
	return "", false
}

type headersKey struct{}

// WithHeaders returns a context carrying the request headers of the current
// invocation. Transports call this before handing the call to the dispatcher.
func WithHeaders(ctx context.Context, headers Headers) context.Context {
	return context.WithValue(ctx, headersKey{}, headers)
}

// HeadersFromContext returns the request headers injected by the transport.
func HeadersFromContext(ctx context.Context) (Headers, bool) {
	if ctx == nil {
		return nil, false
	}
	headers, ok := ctx.Value(headersKey{}).(Headers)
	return headers, ok
}

// Extractor pulls bearer credentials out of invocation contexts.
type Extractor struct {
	logger zerolog.Logger
}

// NewExtractor creates a credential extractor.
func NewExtractor(logger zerolog.Logger) *Extractor {
	return &Extractor{logger: logger.With().Str("component", "credential").Logger()}
}

// Extract returns the bearer credential of the current invocation, or an empty
// string when there is none. It never fails.
func (e *Extractor) Extract(ctx context.Context) string {
	headers, ok := HeadersFromContext(ctx)
	if !ok {
		e.logger.Warn().Msg("no request context available; cannot read request headers")
		return ""
	}

	value, _ := headers.Get("authorization")
	if !strings.HasPrefix(value, bearerPrefix) {
		e.logger.Warn().Msg("no valid Authorization bearer token in request headers")
		return ""
	}

	token := value[len(bearerPrefix):]
	e.logger.Info().Str("token_prefix", TruncateToken(token)).Msg("bearer token found in request headers")
	return token
}

// TruncateToken shortens a token for logging. Short tokens keep at most half of
// their characters so the full secret never reaches the log.
func TruncateToken(token string) string {
	runes := []rune(token)
	keep := loggedTokenRune
	if half := len(runes) / 2; half < keep {
		keep = half
	}
	return string(runes[:keep]) + "..."
}
