// Package server exposes the tool dispatcher over MCP: JSON-RPC 2.0 on stdio,
// the streamable HTTP endpoint and the legacy SSE endpoint.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chuangyeshuo/mcprapi/internal/dispatch"
)

const (
	defaultProtocolVersion = "2024-11-05"
	defaultServerName      = "mcp-gateway"

	rpcCodeParseError     = -32700
	rpcCodeInvalidRequest = -32600
	rpcCodeMethodNotFound = -32601
	rpcCodeInvalidParams  = -32602
	rpcCodeInternalError  = -32603
)

var supportedProtocolVersions = []string{"2024-11-05", "2025-03-26", "2025-06-18"}

// Transport names reported in audit entries.
const (
	TransportStdio      = "stdio"
	TransportStreamable = "streamable-http"
	TransportSSE        = "sse"
)

// ToolDispatcher is the dispatcher surface the transports depend on.
type ToolDispatcher interface {
	Tools() []dispatch.ToolSpec
	Mode() string
	Invoke(ctx context.Context, call dispatch.Call) (dispatch.Result, error)
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request carries no id and expects no reply.
func (r rpcRequest) isNotification() bool {
	return len(r.ID) == 0
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
	Capabilities struct {
		Tools struct {
			ListChanged bool `json:"listChanged"`
		} `json:"tools"`
	} `json:"capabilities"`
}

type listToolsResult struct {
	Tools []toolDescriptor `json:"tools"`
}

type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type callToolResult struct {
	Content           []contentBlock `json:"content"`
	IsError           bool           `json:"isError"`
	StructuredContent map[string]any `json:"structuredContent,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// callMeta describes where a message came from.
type callMeta struct {
	Transport string
	SessionID string
	RequestID string
}

// Handler answers MCP JSON-RPC messages for every transport.
type Handler struct {
	dispatcher ToolDispatcher
	version    string
	logger     zerolog.Logger
}

// NewHandler creates the shared JSON-RPC handler.
func NewHandler(dispatcher ToolDispatcher, version string, logger zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		version:    strings.TrimSpace(version),
		logger:     logger.With().Str("component", "mcp").Logger(),
	}
}

// handlePayload processes one raw message, single or batch. It returns nil
// when nothing must be written back (notifications only).
func (h *Handler) handlePayload(ctx context.Context, payload []byte, meta callMeta) any {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return errorResponse(nil, rpcCodeInvalidRequest, "empty json-rpc payload")
	}

	if trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return errorResponse(nil, rpcCodeParseError, fmt.Sprintf("invalid json-rpc payload: %v", err))
		}
		if len(batch) == 0 {
			return errorResponse(nil, rpcCodeInvalidRequest, "empty json-rpc batch")
		}
		responses := make([]rpcResponse, 0, len(batch))
		for _, item := range batch {
			if resp, ok := h.handleMessage(ctx, item, meta); ok {
				responses = append(responses, resp)
			}
		}
		if len(responses) == 0 {
			return nil
		}
		return responses
	}

	resp, ok := h.handleMessage(ctx, trimmed, meta)
	if !ok {
		return nil
	}
	return resp
}

func (h *Handler) handleMessage(ctx context.Context, raw []byte, meta callMeta) (rpcResponse, bool) {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, rpcCodeParseError, fmt.Sprintf("invalid json-rpc payload: %v", err)), true
	}
	if req.isNotification() {
		h.handleNotification(req, meta)
		return rpcResponse{}, false
	}
	return h.handleRPCRequest(ctx, req, meta), true
}

func (h *Handler) handleNotification(req rpcRequest, meta callMeta) {
	switch strings.TrimSpace(req.Method) {
	case "notifications/initialized":
		h.logger.Info().Str("transport", meta.Transport).Str("session_id", meta.SessionID).Msg("client initialized")
	case "notifications/cancelled":
		h.logger.Debug().Str("transport", meta.Transport).Msg("client cancelled a request")
	default:
		h.logger.Debug().Str("method", req.Method).Msg("ignoring notification")
	}
}

func (h *Handler) handleRPCRequest(ctx context.Context, req rpcRequest, meta callMeta) rpcResponse {
	response := rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	if strings.TrimSpace(req.JSONRPC) != "2.0" {
		response.Error = &rpcError{
			Code:    rpcCodeInvalidRequest,
			Message: "jsonrpc must be 2.0",
		}
		return response
	}

	switch strings.TrimSpace(req.Method) {
	case "initialize":
		var params initializeParams
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params, &params)
		}
		result := initializeResult{ProtocolVersion: negotiateProtocolVersion(params.ProtocolVersion)}
		result.ServerInfo.Name = defaultServerName
		result.ServerInfo.Version = h.version
		result.Capabilities.Tools.ListChanged = false
		h.logger.Info().
			Str("transport", meta.Transport).
			Str("client", params.ClientInfo.Name).
			Str("client_version", params.ClientInfo.Version).
			Str("protocol_version", result.ProtocolVersion).
			Msg("session initialized")
		response.Result = result
		return response

	case "ping":
		response.Result = map[string]any{}
		return response

	case "tools/list":
		specs := h.dispatcher.Tools()
		items := make([]toolDescriptor, 0, len(specs))
		for _, tool := range specs {
			items = append(items, toolDescriptor{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}
		response.Result = listToolsResult{Tools: items}
		return response

	case "tools/call":
		var params callToolParams
		if len(req.Params) == 0 {
			response.Error = &rpcError{
				Code:    rpcCodeInvalidParams,
				Message: "missing params",
			}
			return response
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			response.Error = &rpcError{
				Code:    rpcCodeInvalidParams,
				Message: fmt.Sprintf("invalid tools/call params: %v", err),
			}
			return response
		}
		name := strings.TrimSpace(params.Name)
		h.logger.Info().Str("transport", meta.Transport).Str("tool", name).Msg("received tool call")

		result, err := h.dispatcher.Invoke(ctx, dispatch.Call{
			Name:      name,
			Arguments: params.Arguments,
			Transport: meta.Transport,
			SessionID: meta.SessionID,
			RequestID: meta.RequestID,
		})
		if errors.Is(err, dispatch.ErrUnknownTool) {
			response.Error = &rpcError{
				Code:    rpcCodeInvalidParams,
				Message: fmt.Sprintf("unknown tool: %s", name),
			}
			return response
		}
		if err != nil {
			response.Error = &rpcError{
				Code:    rpcCodeInternalError,
				Message: err.Error(),
			}
			return response
		}
		response.Result = toolCallResult(name, h.dispatcher.Mode(), result)
		return response

	default:
		response.Error = &rpcError{
			Code:    rpcCodeMethodNotFound,
			Message: fmt.Sprintf("unknown method: %s", strings.TrimSpace(req.Method)),
		}
		return response
	}
}

func toolCallResult(name, mode string, result dispatch.Result) callToolResult {
	status := "ok"
	if result.IsError {
		status = "error"
	}
	return callToolResult{
		Content: []contentBlock{
			{
				Type: "text",
				Text: result.Text,
			},
		},
		IsError: result.IsError,
		StructuredContent: map[string]any{
			"tool":     strings.TrimSpace(name),
			"mode":     strings.TrimSpace(mode),
			"status":   status,
			"outcome":  result.Outcome,
			"decision": result.Decision,
		},
	}
}

func negotiateProtocolVersion(requested string) string {
	requested = strings.TrimSpace(requested)
	if slices.Contains(supportedProtocolVersions, requested) {
		return requested
	}
	return defaultProtocolVersion
}

func errorResponse(id json.RawMessage, code int, message string) rpcResponse {
	return rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &rpcError{
			Code:    code,
			Message: message,
		},
	}
}

// isInitialize reports whether payload is a single initialize request.
func isInitialize(payload []byte) bool {
	var req rpcRequest
	if err := json.Unmarshal(bytes.TrimSpace(payload), &req); err != nil {
		return false
	}
	return strings.TrimSpace(req.Method) == "initialize"
}
