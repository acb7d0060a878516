package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuangyeshuo/mcprapi/internal/auth"
	"github.com/chuangyeshuo/mcprapi/internal/dispatch"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []dispatch.Call
	headers []auth.Headers
	result  dispatch.Result
	err     error
}

func (f *fakeDispatcher) Tools() []dispatch.ToolSpec {
	return []dispatch.ToolSpec{
		{
			Name:        "get_weather_alerts",
			Capability:  "read",
			Description: "Active alerts for a US state.",
			InputSchema: map[string]any{"type": "object"},
		},
		{
			Name:        "create_order",
			Capability:  "write",
			Description: "Create an order.",
			InputSchema: map[string]any{"type": "object"},
		},
	}
}

func (f *fakeDispatcher) Mode() string { return "read-write" }

func (f *fakeDispatcher) Invoke(ctx context.Context, call dispatch.Call) (dispatch.Result, error) {
	headers, _ := auth.HeadersFromContext(ctx)
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.headers = append(f.headers, headers)
	f.mu.Unlock()
	if f.err != nil {
		return dispatch.Result{}, f.err
	}
	if call.Name == "missing" {
		return dispatch.Result{}, dispatch.ErrUnknownTool
	}
	return f.result, nil
}

func (f *fakeDispatcher) recorded() ([]dispatch.Call, []auth.Headers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatch.Call(nil), f.calls...), append([]auth.Headers(nil), f.headers...)
}

func newTestHandler(d ToolDispatcher) *Handler {
	return NewHandler(d, "v-test", zerolog.Nop())
}

func decodeResponse(t *testing.T, v any) rpcResponse {
	t.Helper()
	encoded, err := json.Marshal(v)
	require.NoError(t, err)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(encoded, &resp))
	return resp
}

func TestHandler_Initialize(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{})

	t.Run("echoes supported version", func(t *testing.T) {
		out := h.handlePayload(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}`), callMeta{})
		resp := decodeResponse(t, out)
		require.Nil(t, resp.Error)
		result := resp.Result.(map[string]any)
		assert.Equal(t, "2025-03-26", result["protocolVersion"])
		serverInfo := result["serverInfo"].(map[string]any)
		assert.Equal(t, "mcp-gateway", serverInfo["name"])
		assert.Equal(t, "v-test", serverInfo["version"])
	})

	t.Run("falls back to default version", func(t *testing.T) {
		out := h.handlePayload(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"1999-01-01"}}`), callMeta{})
		resp := decodeResponse(t, out)
		assert.Equal(t, defaultProtocolVersion, resp.Result.(map[string]any)["protocolVersion"])
	})
}

func TestHandler_Ping(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{})
	resp := decodeResponse(t, h.handlePayload(context.Background(), []byte(`{"jsonrpc":"2.0","id":"p","method":"ping"}`), callMeta{}))
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `"p"`, string(resp.ID))
	assert.Equal(t, map[string]any{}, resp.Result)
}

func TestHandler_ToolsList(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{})
	resp := decodeResponse(t, h.handlePayload(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`), callMeta{}))
	require.Nil(t, resp.Error)
	tools := resp.Result.(map[string]any)["tools"].([]any)
	require.Len(t, tools, 2)
	first := tools[0].(map[string]any)
	assert.Equal(t, "get_weather_alerts", first["name"])
	assert.Equal(t, map[string]any{"type": "object"}, first["inputSchema"])
}

func TestHandler_ToolsCall(t *testing.T) {
	fake := &fakeDispatcher{result: dispatch.Result{
		Text:     "❌ Permission check failed",
		IsError:  true,
		Outcome:  dispatch.OutcomeDenied,
		Decision: "denied",
	}}
	h := newTestHandler(fake)

	meta := callMeta{Transport: TransportStreamable, SessionID: "s-1", RequestID: "r-1"}
	resp := decodeResponse(t, h.handlePayload(context.Background(), []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"create_order","arguments":{"product":"widget","quantity":2}}}`), meta))
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]any)
	assert.Equal(t, true, result["isError"])
	content := result["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, "❌ Permission check failed", content[0].(map[string]any)["text"])
	structured := result["structuredContent"].(map[string]any)
	assert.Equal(t, "error", structured["status"])
	assert.Equal(t, dispatch.OutcomeDenied, structured["outcome"])

	calls, _ := fake.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "create_order", calls[0].Name)
	assert.Equal(t, TransportStreamable, calls[0].Transport)
	assert.Equal(t, "s-1", calls[0].SessionID)
	assert.Equal(t, "r-1", calls[0].RequestID)
	assert.Equal(t, "widget", calls[0].Arguments["product"])
}

func TestHandler_ToolsCallErrors(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{})

	tests := []struct {
		name    string
		payload string
		code    int
		message string
	}{
		{
			name:    "unknown tool",
			payload: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"missing"}}`,
			code:    rpcCodeInvalidParams,
			message: "unknown tool: missing",
		},
		{
			name:    "missing params",
			payload: `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`,
			code:    rpcCodeInvalidParams,
			message: "missing params",
		},
		{
			name:    "unknown method",
			payload: `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
			code:    rpcCodeMethodNotFound,
			message: "unknown method: resources/list",
		},
		{
			name:    "wrong version",
			payload: `{"jsonrpc":"1.0","id":1,"method":"ping"}`,
			code:    rpcCodeInvalidRequest,
			message: "jsonrpc must be 2.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := decodeResponse(t, h.handlePayload(context.Background(), []byte(tt.payload), callMeta{}))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
		})
	}
}

func TestHandler_ParseError(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{})
	resp := decodeResponse(t, h.handlePayload(context.Background(), []byte(`{not json`), callMeta{}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpcCodeParseError, resp.Error.Code)
	assert.Equal(t, "null", string(resp.ID))
}

func TestHandler_Notifications(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{})
	assert.Nil(t, h.handlePayload(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), callMeta{}))
	assert.Nil(t, h.handlePayload(context.Background(), []byte(`[{"jsonrpc":"2.0","method":"notifications/initialized"},{"jsonrpc":"2.0","method":"notifications/cancelled"}]`), callMeta{}))
}

func TestHandler_Batch(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{})
	out := h.handlePayload(context.Background(), []byte(`[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","method":"notifications/initialized"},
		{"jsonrpc":"2.0","id":2,"method":"tools/list"}
	]`), callMeta{})

	responses, ok := out.([]rpcResponse)
	require.True(t, ok)
	require.Len(t, responses, 2)
	assert.Equal(t, "1", string(responses[0].ID))
	assert.Equal(t, "2", string(responses[1].ID))
}

func TestHandler_EmptyBatch(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{})
	resp := decodeResponse(t, h.handlePayload(context.Background(), []byte(`[]`), callMeta{}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpcCodeInvalidRequest, resp.Error.Code)
}

func TestIsInitialize(t *testing.T) {
	assert.True(t, isInitialize([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)))
	assert.False(t, isInitialize([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	assert.False(t, isInitialize([]byte(`[{"jsonrpc":"2.0","id":1,"method":"initialize"}]`)))
}
