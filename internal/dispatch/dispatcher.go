// Package dispatch wraps every tool with the same authorization flow:
// credential extraction, remote permission check, local guards, then the body.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chuangyeshuo/mcprapi/internal/audit"
	"github.com/chuangyeshuo/mcprapi/internal/auth"
	"github.com/chuangyeshuo/mcprapi/internal/policy"
	"github.com/chuangyeshuo/mcprapi/internal/tools"
)

// DeniedMessage is returned verbatim when the authorization service refuses a call.
const DeniedMessage = "❌ Permission check failed"

// Invocation outcomes, used in audit entries and metrics.
const (
	OutcomeSuccess          = "success"
	OutcomeDenied           = "denied"
	OutcomeModeDenied       = "mode_denied"
	OutcomeInsufficientRole = "insufficient_role"
	OutcomeError            = "error"
	OutcomePanic            = "panic"
)

// ErrUnknownTool is returned by Invoke for names missing from the contract.
var ErrUnknownTool = errors.New("unknown tool")

var tracer = otel.Tracer("github.com/chuangyeshuo/mcprapi/internal/dispatch")

// CredentialExtractor reads the caller's bearer credential from the invocation context.
type CredentialExtractor interface {
	Extract(ctx context.Context) string
}

// Authorizer decides whether a credential may call a tool.
type Authorizer interface {
	Authorize(ctx context.Context, credential, toolName string) auth.Decision
}

// ToolRunner runs tool bodies.
type ToolRunner interface {
	Call(ctx context.Context, name string, inv tools.Invocation) (string, error)
}

// ModeGuard enforces the execution mode for a tool capability.
type ModeGuard interface {
	Mode() string
	AuthorizeTool(name, capability string) error
}

// Recorder observes completed invocations.
type Recorder interface {
	ObserveToolCall(tool, outcome string, elapsed time.Duration)
}

// Config wires a Dispatcher.
type Config struct {
	Registry   *ToolRegistry
	Extractor  CredentialExtractor
	Authorizer Authorizer
	Runner     ToolRunner
	// Implemented lists the tool names Runner can serve. Every contract tool
	// must appear in it.
	Implemented []string
	Guard       ModeGuard
	Audit       *audit.Logger
	Recorder    Recorder
}

// Call is one tools/call request as seen by the dispatcher.
type Call struct {
	Name      string
	Arguments map[string]any
	Transport string
	SessionID string
	RequestID string
}

// Result is the text rendering of one invocation.
type Result struct {
	Text     string
	IsError  bool
	Outcome  string
	Decision string
}

// Dispatcher is the single wrapper applied to every registered tool.
type Dispatcher struct {
	registry   *ToolRegistry
	extractor  CredentialExtractor
	authorizer Authorizer
	runner     ToolRunner
	guard      ModeGuard
	audit      *audit.Logger
	recorder   Recorder
	logger     zerolog.Logger
}

// New validates cfg and returns a dispatcher.
func New(cfg Config, logger zerolog.Logger) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if cfg.Extractor == nil {
		return nil, errors.New("credential extractor is required")
	}
	if cfg.Authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("tool runner is required")
	}

	implemented := make(map[string]struct{}, len(cfg.Implemented))
	for _, name := range cfg.Implemented {
		implemented[strings.TrimSpace(name)] = struct{}{}
	}
	var missing []string
	for _, tool := range cfg.Registry.List() {
		if _, ok := implemented[tool.Name]; !ok {
			missing = append(missing, tool.Name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("tool contract lists unimplemented tools: %s", strings.Join(missing, ", "))
	}

	return &Dispatcher{
		registry:   cfg.Registry,
		extractor:  cfg.Extractor,
		authorizer: cfg.Authorizer,
		runner:     cfg.Runner,
		guard:      cfg.Guard,
		audit:      cfg.Audit,
		recorder:   cfg.Recorder,
		logger:     logger.With().Str("component", "dispatch").Logger(),
	}, nil
}

// Tools returns the registered tools in contract order.
func (d *Dispatcher) Tools() []ToolSpec {
	return d.registry.List()
}

// Mode returns the execution mode in effect.
func (d *Dispatcher) Mode() string {
	if d.guard == nil {
		return policy.ModeReadWrite
	}
	return d.guard.Mode()
}

// Invoke runs one tool call through the authorization flow. The only error it
// returns is ErrUnknownTool; every other failure is a text Result.
func (d *Dispatcher) Invoke(ctx context.Context, call Call) (Result, error) {
	tool, ok := d.registry.Lookup(call.Name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, strings.TrimSpace(call.Name))
	}

	ctx, span := tracer.Start(ctx, "mcp.tool_call")
	defer span.End()
	span.SetAttributes(
		attribute.String("mcp.tool", tool.Name),
		attribute.String("mcp.transport", call.Transport),
	)

	started := time.Now()
	credential := d.extractor.Extract(ctx)
	decision := d.authorizer.Authorize(ctx, credential, tool.Name)

	var (
		principal auth.Principal
		result    Result
		errDetail string
	)

	switch typed := decision.(type) {
	case auth.Authorized:
		principal = typed.Principal
		result.Decision = "authorized"
	case auth.Degraded:
		principal = typed.Principal
		result.Decision = "degraded_" + string(typed.Reason)
		d.logger.Warn().
			Str("tool", tool.Name).
			Str("reason", string(typed.Reason)).
			Str("username", principal.Username).
			Msg("running tool with default principal")
	case auth.Denied:
		result = Result{Text: DeniedMessage, IsError: true, Outcome: OutcomeDenied, Decision: "denied"}
		errDetail = typed.Reason
	default:
		result = Result{Text: DeniedMessage, IsError: true, Outcome: OutcomeDenied, Decision: "denied"}
		errDetail = fmt.Sprintf("unrecognized decision %T", decision)
	}

	if result.Outcome == "" {
		result, errDetail = d.runAuthorized(ctx, tool, call, credential, principal, result.Decision)
	}

	elapsed := time.Since(started)
	span.SetAttributes(
		attribute.String("mcp.decision", result.Decision),
		attribute.String("mcp.outcome", result.Outcome),
	)
	if result.IsError {
		span.SetStatus(codes.Error, result.Outcome)
	}

	d.audit.Complete(audit.ToolCallCompletion{
		RequestID:         call.RequestID,
		SessionID:         call.SessionID,
		Transport:         call.Transport,
		ToolName:          tool.Name,
		Mode:              d.Mode(),
		Decision:          result.Decision,
		Outcome:           result.Outcome,
		CallerUserID:      principal.UserID,
		CallerName:        principal.Username,
		CredentialPresent: credential != "",
		Arguments:         call.Arguments,
		ErrorDetail:       errDetail,
		Duration:          elapsed,
	})
	if d.recorder != nil {
		d.recorder.ObserveToolCall(tool.Name, result.Outcome, elapsed)
	}
	return result, nil
}

func (d *Dispatcher) runAuthorized(
	ctx context.Context,
	tool ToolSpec,
	call Call,
	credential string,
	principal auth.Principal,
	decision string,
) (Result, string) {
	if d.guard != nil {
		if err := d.guard.AuthorizeTool(tool.Name, tool.Capability); err != nil {
			return Result{
				Text:     fmt.Sprintf("❌ Tool %s is unavailable: %v", tool.Name, err),
				IsError:  true,
				Outcome:  OutcomeModeDenied,
				Decision: decision,
			}, err.Error()
		}
	}

	if err := policy.RequireAnyRole(tool.Name, tool.RequiredRoles, principal.Roles); err != nil {
		return Result{
			Text:     policy.InsufficientRoleMessage(tool.Name, tool.RequiredRoles),
			IsError:  true,
			Outcome:  OutcomeInsufficientRole,
			Decision: decision,
		}, err.Error()
	}

	text, err := d.runBody(ctx, tool.Name, tools.Invocation{
		Arguments:  call.Arguments,
		Credential: credential,
		Principal:  principal,
	})
	if err != nil {
		var panicked *panicError
		outcome := OutcomeError
		if errors.As(err, &panicked) {
			outcome = OutcomePanic
		}
		return Result{Text: errorText(err), IsError: true, Outcome: outcome, Decision: decision}, err.Error()
	}
	return Result{Text: text, Outcome: OutcomeSuccess, Decision: decision}, ""
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("tool panicked: %v", e.value)
}

func (d *Dispatcher) runBody(ctx context.Context, name string, inv tools.Invocation) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.Error().
				Str("tool", name).
				Interface("panic", recovered).
				Bytes("stack", debug.Stack()).
				Msg("tool body panicked")
			text, err = "", &panicError{value: recovered}
		}
	}()
	return d.runner.Call(ctx, name, inv)
}

func errorText(err error) string {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return "unknown tool execution error"
	}
	return message
}
