package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestMetrics_ObserveToolCallAndAuthorization(t *testing.T) {
	m := NewMetrics()
	m.ObserveToolCall("create_order", "success", 20*time.Millisecond)
	m.ObserveToolCall("create_order", "success", 10*time.Millisecond)
	m.ObserveToolCall("create_order", "insufficient_role", time.Millisecond)
	m.ObserveAuthorization("degraded_failure", 5*time.Millisecond)

	require.InDelta(t, 2, testutil.ToFloat64(m.toolCalls.WithLabelValues("create_order", "success")), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(m.toolCalls.WithLabelValues("create_order", "insufficient_role")), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(m.authChecks.WithLabelValues("degraded_failure")), 0.001)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveToolCall("x", "success", time.Second)
		m.ObserveAuthorization("authorized", time.Second)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_InstrumentAndHandler(t *testing.T) {
	m := NewMetrics()
	handler := m.Instrument(func(*http.Request) string { return "/mcp" })(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp?x=1", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.InDelta(t, 1, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodPost, "/mcp", "202")), 0.001)
	require.InDelta(t, 0, testutil.ToFloat64(m.httpInFlight), 0.001)

	metricsRec := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(metricsRec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "http_requests_total")
}

func TestInitTracing_DisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{ServiceName: "mcp-gateway"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_ExportsSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		ServiceName:    "mcp-gateway",
		ServiceVersion: "test",
		Enabled:        true,
		Writer:         &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "mcp.tool_call")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), "mcp.tool_call")
}
