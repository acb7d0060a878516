// Package upstream provides typed HTTP clients for the services the gateway
// proxies to: the public weather provider and the business backend.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds one upstream call end to end.
	DefaultTimeout = 30 * time.Second

	maxErrorBodyBytes = 512
)

// Options configures the shared upstream HTTP client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// Transport overrides the base round tripper. Nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// NewHTTPClient returns the concurrency-safe client shared by every upstream
// and by the authorization client.
func NewHTTPClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &userAgentTransport{
			base:      base,
			userAgent: strings.TrimSpace(opts.UserAgent),
		},
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" || req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}

// Error reports a non-success answer from an upstream.
type Error struct {
	What       string
	StatusCode int
	// Code and Message are set when the business envelope carried a non-zero code.
	Code    int
	Message string
	Body    string
}

// Error implements error.
func (e *Error) Error() string {
	if e.Code != 0 {
		msg := strings.TrimSpace(e.Message)
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Sprintf("%s failed: %s (code %d)", e.What, msg, e.Code)
	}
	return fmt.Sprintf("%s failed: HTTP %d", e.What, e.StatusCode)
}

// RequestError reports a transport failure: unreachable host, timeout, or
// cancellation.
type RequestError struct {
	What string
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.What, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// MalformedResponseError reports a body that could not be decoded.
type MalformedResponseError struct {
	What string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s returned a malformed response: %v", e.What, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var upstreamErr *Error
	return errors.As(err, &upstreamErr) && upstreamErr.StatusCode == http.StatusNotFound
}

type request struct {
	what       string
	url        string
	accept     string
	credential string
}

func getJSON(ctx context.Context, client *http.Client, r request, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return &RequestError{What: r.what, Err: err}
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if r.credential != "" {
		req.Header.Set("Authorization", "Bearer "+r.credential)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &RequestError{What: r.what, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &Error{
			What:       r.what,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &RequestError{What: r.what, Err: ctxErr}
		}
		return &MalformedResponseError{What: r.what, Err: err}
	}
	return nil
}
