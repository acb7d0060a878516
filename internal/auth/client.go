package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	checkPermissionPath = "/api/v1/api/check-permission"
	defaultNamespace    = "member"
	maxErrorBodyBytes   = 512
)

// ErrMalformedResponse indicates the authorization service answered 200 with a
// body that could not be decoded.
var ErrMalformedResponse = errors.New("malformed authorization response")

// StatusError is returned when the authorization service answers with a
// non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("authorization service returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("authorization service returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Recorder observes authorization outcomes.
type Recorder interface {
	ObserveAuthorization(result string, elapsed time.Duration)
}

// ClientConfig configures the authorization client.
type ClientConfig struct {
	// BaseURL is the root of the authorization service (for example http://localhost:8081).
	BaseURL string
	// Namespace prefixes the checked API path: /<namespace>/api/v1/mcp/<tool>.
	Namespace string
	// FailClosed denies calls when the service cannot be reached instead of
	// degrading to the default principal.
	FailClosed bool
	// AllowAnonymous grants the default principal to calls without a credential.
	AllowAnonymous bool
	// HTTPClient is the shared outbound client. Required.
	HTTPClient *http.Client
	// Recorder optionally observes outcomes.
	Recorder Recorder
}

// Client asks the remote authorization service whether a tool call is allowed.
type Client struct {
	endpoint       string
	namespace      string
	failClosed     bool
	allowAnonymous bool
	httpClient     *http.Client
	recorder       Recorder
	tracer         trace.Tracer
	logger         zerolog.Logger
}

type checkPermissionRequest struct {
	APIPath string `json:"api_path"`
	Method  string `json:"method"`
}

type checkPermissionResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    *permissionData `json:"data"`
}

type permissionData struct {
	Allowed     bool     `json:"allowed"`
	UserID      any      `json:"user_id"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// NewClient creates an authorization client.
func NewClient(cfg ClientConfig, logger zerolog.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("auth: BaseURL is required")
	}
	if cfg.HTTPClient == nil {
		return nil, fmt.Errorf("auth: HTTPClient is required")
	}
	namespace := strings.Trim(strings.TrimSpace(cfg.Namespace), "/")
	if namespace == "" {
		namespace = defaultNamespace
	}

	return &Client{
		endpoint:       baseURL + checkPermissionPath,
		namespace:      namespace,
		failClosed:     cfg.FailClosed,
		allowAnonymous: cfg.AllowAnonymous,
		httpClient:     cfg.HTTPClient,
		recorder:       cfg.Recorder,
		tracer:         otel.Tracer("github.com/chuangyeshuo/mcprapi/internal/auth"),
		logger:         logger.With().Str("component", "authorization").Logger(),
	}, nil
}

// APIPath returns the API path checked for toolName.
func (c *Client) APIPath(toolName string) string {
	return fmt.Sprintf("/%s/api/v1/mcp/%s", c.namespace, strings.TrimSpace(toolName))
}

// Authorize resolves the decision for one tool call.
//
// An empty credential yields the degraded principal without any network call.
// Service errors degrade as well unless the client is configured fail-closed.
func (c *Client) Authorize(ctx context.Context, credential, toolName string) Decision {
	started := time.Now()
	ctx, span := c.tracer.Start(ctx, "auth.check_permission",
		trace.WithAttributes(attribute.String("tool.name", toolName)))
	defer span.End()

	decision, result := c.authorize(ctx, credential, toolName, span)
	span.SetAttributes(attribute.String("auth.result", result))
	if c.recorder != nil {
		c.recorder.ObserveAuthorization(result, time.Since(started))
	}
	return decision
}

func (c *Client) authorize(ctx context.Context, credential, toolName string, span trace.Span) (Decision, string) {
	if credential == "" {
		if !c.allowAnonymous {
			c.logger.Warn().Str("tool", toolName).Msg("anonymous call rejected")
			return Denied{Reason: "no credential presented"}, "denied_anonymous"
		}
		c.logger.Info().Str("tool", toolName).Msg("no credential presented; using default test principal")
		return Degraded{Principal: DegradedPrincipal(), Reason: DegradeAnonymous}, "degraded_anonymous"
	}

	apiPath := c.APIPath(toolName)
	c.logger.Info().Str("tool", toolName).Str("api_path", apiPath).Msg("checking tool permission")

	data, err := c.checkPermission(ctx, credential, apiPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authorization check failed")
		if c.failClosed {
			c.logger.Error().Err(err).Str("tool", toolName).Msg("permission check failed; denying (fail-closed)")
			return Denied{Reason: "authorization service unavailable"}, "denied_failure"
		}
		c.logger.Error().Err(err).Str("tool", toolName).Msg("permission check failed; using default test principal (fail-open)")
		return Degraded{Principal: DegradedPrincipal(), Reason: DegradeServiceFailure}, "degraded_failure"
	}

	if data == nil || !data.Allowed {
		c.logger.Warn().Str("tool", toolName).Str("api_path", apiPath).Msg("permission denied by authorization service")
		return Denied{Reason: fmt.Sprintf("no permission for %s", apiPath)}, "denied"
	}

	principal := principalFromData(data, credential)
	c.logger.Info().
		Str("tool", toolName).
		Int64("user_id", principal.UserID).
		Str("username", principal.Username).
		Strs("roles", principal.Roles).
		Msg("permission granted")
	return Authorized{Principal: principal}, "authorized"
}

func (c *Client) checkPermission(ctx context.Context, credential, apiPath string) (*permissionData, error) {
	body, err := json.Marshal(checkPermissionRequest{APIPath: apiPath, Method: http.MethodPost})
	if err != nil {
		return nil, fmt.Errorf("encoding permission request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building permission request: %w", err)
	}
	req.Header.Set("Authorization", bearerPrefix+credential)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling authorization service: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug().Int("status", resp.StatusCode).Msg("authorization service responded")

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var decoded checkPermissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return decoded.Data, nil
}

func principalFromData(data *permissionData, credential string) Principal {
	principal := Principal{
		UserID:      int64Claim(data.UserID),
		Username:    strings.TrimSpace(data.Username),
		Roles:       cloneStrings(data.Roles),
		Permissions: cloneStrings(data.Permissions),
	}
	if principal.UserID == 0 || principal.Username == "" {
		if hint, ok := HintFromToken(credential); ok {
			if principal.UserID == 0 {
				principal.UserID = hint.UserID
			}
			if principal.Username == "" {
				principal.Username = hint.Username
			}
		}
	}
	return principal
}

func cloneStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
