// Package audit provides structured audit logging for MCP tool calls.
package audit

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	bearerTokenPattern = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-._~+/]+=*`)
	keyValuePattern    = regexp.MustCompile(`(?i)\b(token|secret|password|authorization)\s*[:=]\s*([^\s,;]+)`)
)

// ToolCallCompletion captures one finalized tool-call outcome.
type ToolCallCompletion struct {
	RequestID         string
	SessionID         string
	Transport         string
	ToolName          string
	Mode              string
	Decision          string
	Outcome           string
	CallerUserID      int64
	CallerName        string
	CredentialPresent bool
	Arguments         map[string]any
	ErrorDetail       string
	Duration          time.Duration
}

// TargetSummary is a redacted summary of call targets.
type TargetSummary struct {
	States      []string `json:"states,omitempty"`
	Locations   []string `json:"locations,omitempty"`
	UserIDs     []string `json:"user_ids,omitempty"`
	Departments []string `json:"departments,omitempty"`
	Products    []string `json:"products,omitempty"`
}

// Logger emits structured audit entries.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Complete writes a single completion log entry for one tool call.
func (l *Logger) Complete(event ToolCallCompletion) {
	if l == nil {
		return
	}

	outcome := strings.TrimSpace(event.Outcome)
	if outcome == "" {
		outcome = "error"
	}

	tool := strings.TrimSpace(event.ToolName)
	if tool == "" {
		tool = "unknown"
	}
	decision := strings.TrimSpace(event.Decision)
	if decision == "" {
		decision = "none"
	}

	duration := event.Duration
	if duration < 0 {
		duration = 0
	}

	entry := l.logger.Info().
		Str("event", "mcp.tool_call.completed").
		Str("request_id", strings.TrimSpace(event.RequestID)).
		Str("session_id", strings.TrimSpace(event.SessionID)).
		Str("transport", strings.TrimSpace(event.Transport)).
		Str("tool", tool).
		Str("mode", strings.TrimSpace(event.Mode)).
		Str("decision", decision).
		Str("outcome", outcome).
		Bool("credential_present", event.CredentialPresent).
		Int64("duration_ms", duration.Milliseconds()).
		Interface("target", SummarizeTargets(event.Arguments))

	if event.CallerUserID != 0 {
		entry = entry.Int64("caller_user_id", event.CallerUserID)
	}
	if caller := strings.TrimSpace(event.CallerName); caller != "" {
		entry = entry.Str("caller", caller)
	}
	if redactedError := RedactSensitiveText(event.ErrorDetail); redactedError != "" {
		entry = entry.Str("error_detail", redactedError)
	}

	entry.Msg("tool call completed")
}

// SummarizeTargets builds a compact target summary from tool arguments.
func SummarizeTargets(args map[string]any) TargetSummary {
	if args == nil {
		return TargetSummary{}
	}

	summary := TargetSummary{
		States:      uniqueStrings(upper(readString(args, "state"))),
		UserIDs:     uniqueStrings(readNumber(args, "user_id")),
		Departments: uniqueStrings(readString(args, "department")),
		Products:    uniqueStrings(readString(args, "product")),
	}

	lat := readNumber(args, "latitude")
	lon := readNumber(args, "longitude")
	if len(lat) == 1 && len(lon) == 1 {
		summary.Locations = []string{lat[0] + "," + lon[0]}
	}
	return summary
}

// RedactSensitiveText removes obvious secrets from free-text error details.
func RedactSensitiveText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	redacted := bearerTokenPattern.ReplaceAllString(trimmed, "Bearer [REDACTED]")
	redacted = keyValuePattern.ReplaceAllStringFunc(redacted, func(match string) string {
		parts := strings.SplitN(match, ":", 2)
		if len(parts) == 2 {
			return fmt.Sprintf("%s: [REDACTED]", strings.TrimSpace(parts[0]))
		}
		parts = strings.SplitN(match, "=", 2)
		if len(parts) == 2 {
			return fmt.Sprintf("%s=[REDACTED]", strings.TrimSpace(parts[0]))
		}
		return "[REDACTED]"
	})
	return redacted
}

func readString(args map[string]any, keys ...string) []string {
	values := make([]string, 0, len(keys))
	for _, key := range keys {
		raw, ok := args[key]
		if !ok {
			continue
		}
		asString, ok := raw.(string)
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(asString)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func readNumber(args map[string]any, keys ...string) []string {
	values := make([]string, 0, len(keys))
	for _, key := range keys {
		switch typed := args[key].(type) {
		case float64:
			values = append(values, strconv.FormatFloat(typed, 'f', -1, 64))
		case int:
			values = append(values, strconv.Itoa(typed))
		case int64:
			values = append(values, strconv.FormatInt(typed, 10))
		case string:
			if trimmed := strings.TrimSpace(typed); trimmed != "" {
				values = append(values, trimmed)
			}
		}
	}
	return values
}

func upper(values []string) []string {
	for i, value := range values {
		values[i] = strings.ToUpper(value)
	}
	return values
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		unique = append(unique, trimmed)
	}
	if len(unique) == 0 {
		return nil
	}
	slices.Sort(unique)
	return unique
}
