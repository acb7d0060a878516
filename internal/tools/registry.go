// Package tools implements the gateway's tool bodies on top of the weather
// and business upstream clients.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chuangyeshuo/mcprapi/internal/auth"
	"github.com/chuangyeshuo/mcprapi/internal/upstream"
)

// Tool names served by the runner.
const (
	GetWeatherAlerts   = "get_weather_alerts"
	GetWeatherForecast = "get_weather_forecast"
	GetUserInfo        = "get_user_info"
	GetDepartmentStats = "get_department_stats"
	CreateOrder        = "create_order"
)

// Names lists every tool the runner implements.
func Names() []string {
	return []string{
		GetWeatherAlerts,
		GetWeatherForecast,
		GetUserInfo,
		GetDepartmentStats,
		CreateOrder,
	}
}

// WeatherService is the weather provider surface used by the weather tools.
type WeatherService interface {
	ActiveAlerts(ctx context.Context, state string) ([]upstream.Alert, error)
	ForecastURL(ctx context.Context, latitude, longitude float64) (string, error)
	Forecast(ctx context.Context, forecastURL string) ([]upstream.ForecastPeriod, error)
}

// BusinessService is the business backend surface used by the directory tools.
type BusinessService interface {
	GetUser(ctx context.Context, id int64, credential string) (upstream.User, error)
	FindDepartments(ctx context.Context, query, credential string) ([]upstream.Department, error)
	CountUsers(ctx context.Context, deptID int64, credential string) (int64, error)
}

// Invocation is one authorized tool call handed to a body.
type Invocation struct {
	Arguments  map[string]any
	Credential string
	Principal  auth.Principal
}

// Runner executes MCP tool calls.
type Runner struct {
	weather  WeatherService
	business BusinessService
	now      func() time.Time
}

// ToolError carries an HTTP-style status code and message for tool failures.
type ToolError struct {
	statusCode int
	message    string
}

// Error implements error.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.message)
}

// StatusCode returns the attached status code.
func (e *ToolError) StatusCode() int {
	if e == nil || e.statusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.statusCode
}

// NewRunner creates a tool runner backed by the given upstream clients.
func NewRunner(weather WeatherService, business BusinessService) (*Runner, error) {
	if weather == nil {
		return nil, errors.New("weather service is required")
	}
	if business == nil {
		return nil, errors.New("business service is required")
	}
	return &Runner{
		weather:  weather,
		business: business,
		now:      time.Now,
	}, nil
}

// Call executes one tool by name and returns its text rendering.
func (r *Runner) Call(ctx context.Context, name string, inv Invocation) (string, error) {
	switch strings.TrimSpace(name) {
	case GetWeatherAlerts:
		return r.weatherAlerts(ctx, inv)
	case GetWeatherForecast:
		return r.weatherForecast(ctx, inv)
	case GetUserInfo:
		return r.userInfo(ctx, inv)
	case GetDepartmentStats:
		return r.departmentStats(ctx, inv)
	case CreateOrder:
		return r.createOrder(ctx, inv)
	default:
		return "", validationErrorf("tool %s is not implemented", strings.TrimSpace(name))
	}
}

func validationErrorf(format string, args ...any) error {
	return &ToolError{
		statusCode: http.StatusBadRequest,
		message:    fmt.Sprintf(format, args...),
	}
}

func notFoundErrorf(format string, args ...any) error {
	return &ToolError{
		statusCode: http.StatusNotFound,
		message:    fmt.Sprintf(format, args...),
	}
}

// mapExecutionError turns upstream failures into a ToolError whose message is
// safe to show to the caller.
func mapExecutionError(err error, fallback string) error {
	if err == nil {
		return nil
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	var upstreamErr *upstream.Error
	if errors.As(err, &upstreamErr) {
		return &ToolError{
			statusCode: upstreamErr.StatusCode,
			message:    upstreamErr.Error(),
		}
	}
	var malformed *upstream.MalformedResponseError
	if errors.As(err, &malformed) {
		return &ToolError{
			statusCode: http.StatusBadGateway,
			message:    malformed.Error(),
		}
	}
	var requestErr *upstream.RequestError
	if errors.As(err, &requestErr) {
		statusCode := http.StatusBadGateway
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			statusCode = http.StatusGatewayTimeout
		case errors.Is(err, context.Canceled):
			statusCode = http.StatusRequestTimeout
		}
		return &ToolError{
			statusCode: statusCode,
			message:    requestErr.Error(),
		}
	}
	return &ToolError{
		statusCode: http.StatusInternalServerError,
		message:    fmt.Sprintf("%s: %v", fallback, err),
	}
}

func decodeArgsStrict(args map[string]any, out any) error {
	if args == nil {
		args = map[string]any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return validationErrorf("invalid tool arguments: %v", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return validationErrorf("invalid tool arguments: %v", err)
	}
	if decoder.More() {
		return validationErrorf("tool arguments must be a single JSON object")
	}
	return nil
}

// renderJSON produces the indented JSON used by the record-style tools.
func renderJSON(v any) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return "", fmt.Errorf("encoding tool response: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
