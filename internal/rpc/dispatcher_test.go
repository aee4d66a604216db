package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuslabs/nimbus/internal/providers/weather"
	"github.com/nimbuslabs/nimbus/internal/tools"
	"github.com/nimbuslabs/nimbus/internal/trace"
)

const (
	upstreamTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	upstreamSpanID  = "00f067aa0ba902b7"
)

type spanCapture struct {
	mu    sync.Mutex
	spans []*trace.Span
}

func (c *spanCapture) Submit(span *trace.Span) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, span)
}

func (c *spanCapture) all() []*trace.Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*trace.Span, len(c.spans))
	copy(out, c.spans)
	return out
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *trace.Tracer, *spanCapture) {
	t.Helper()
	capture := &spanCapture{}
	tracer := trace.New("test-service", nil, capture)

	registry := tools.NewRegistry()
	require.NoError(t, weather.NewProvider(nil).Register(registry))

	d := NewDispatcher(registry, tracer, nil, ServerInfo{
		Name:         "test-service",
		Version:      "0.1.0",
		Instructions: "weather tools",
	})
	return d, tracer, capture
}

// requestContext simulates the transport middleware: a request-level span
// parented on an upstream trace context.
func requestContext(tracer *trace.Tracer) (context.Context, *trace.SpanHandle) {
	parent := trace.TraceContext{
		TraceID: upstreamTraceID,
		SpanID:  upstreamSpanID,
		Flags:   trace.FlagSampled,
	}
	span := tracer.StartSpan(parent, "POST /mcp")
	return trace.ContextWithSpan(context.Background(), span), span
}

func decodeResponse(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "2.0", resp["jsonrpc"])
	return resp
}

func errorCode(t *testing.T, resp map[string]any) int {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	require.True(t, ok, "expected an error object, got %v", resp)
	return int(errObj["code"].(float64))
}

func TestHandleToolsCallPropagatesTrace(t *testing.T) {
	d, tracer, capture := newTestDispatcher(t)
	ctx, reqSpan := requestContext(tracer)

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_weather","arguments":{"location":"Tokyo"}}}`)
	outcome := d.Handle(ctx, body)
	reqSpan.End()

	require.False(t, outcome.Notification)
	resp := decodeResponse(t, outcome.Body)
	assert.Equal(t, float64(1), resp["id"])

	result, ok := resp["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Tokyo", result["location"])

	spans := capture.all()
	require.Len(t, spans, 2, "one tool span, one request span")
	toolSpan, requestSpan := spans[0], spans[1]

	assert.Equal(t, "get_weather", toolSpan.Name)
	assert.Equal(t, upstreamTraceID, toolSpan.TraceID)
	assert.Equal(t, upstreamTraceID, requestSpan.TraceID)
	assert.Equal(t, upstreamSpanID, requestSpan.ParentID)
	assert.Equal(t, requestSpan.SpanID, toolSpan.ParentID)

	assert.Equal(t, "get_weather", toolSpan.Attributes["tool.name"])
	assert.Contains(t, toolSpan.Attributes["input"], "Tokyo")
	assert.NotEmpty(t, toolSpan.Attributes["output"])
	assert.Equal(t, trace.StatusOK, toolSpan.Status)
}

func TestHandleParseError(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	outcome := d.Handle(context.Background(), []byte(`{not json`))

	resp := decodeResponse(t, outcome.Body)
	assert.Equal(t, CodeParseError, errorCode(t, resp))
	assert.Nil(t, resp["id"])
}

func TestHandleInvalidRequest(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	outcome := d.Handle(context.Background(), []byte(`{"jsonrpc":"1.0","id":1,"method":"tools/list"}`))
	assert.Equal(t, CodeInvalidRequest, errorCode(t, decodeResponse(t, outcome.Body)))

	outcome = d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":2}`))
	assert.Equal(t, CodeInvalidRequest, errorCode(t, decodeResponse(t, outcome.Body)))
}

func TestHandleMethodNotFound(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	outcome := d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`))

	resp := decodeResponse(t, outcome.Body)
	assert.Equal(t, CodeMethodNotFound, errorCode(t, resp))
	assert.Equal(t, float64(3), resp["id"])
}

func TestHandleNotificationProducesNoBody(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	outcome := d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))

	assert.True(t, outcome.Notification)
	assert.Empty(t, outcome.Body)
}

func TestHandleUnknownMethodNotification(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	// A notification never gets a response, not even for unknown methods.
	outcome := d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"bogus/notify"}`))

	assert.True(t, outcome.Notification)
	assert.Empty(t, outcome.Body)
}

func TestHandleInitialize(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	outcome := d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":"init-1","method":"initialize","params":{}}`))

	assert.NotEmpty(t, outcome.SessionID)
	resp := decodeResponse(t, outcome.Body)
	assert.Equal(t, "init-1", resp["id"])

	result := resp["result"].(map[string]any)
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	assert.Equal(t, "weather tools", result["instructions"])

	info := result["serverInfo"].(map[string]any)
	assert.Equal(t, "test-service", info["name"])

	caps := result["capabilities"].(map[string]any)
	_, hasTools := caps["tools"]
	assert.True(t, hasTools)
}

func TestHandleToolsList(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	outcome := d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":4,"method":"tools/list"}`))

	resp := decodeResponse(t, outcome.Body)
	result := resp["result"].(map[string]any)
	listed := result["tools"].([]any)
	require.Len(t, listed, 2)

	first := listed[0].(map[string]any)
	assert.Equal(t, "get_forecast", first["name"])
	assert.NotEmpty(t, first["description"])
	schema := first["inputSchema"].(map[string]any)
	assert.Equal(t, "object", schema["type"])
}

func TestHandleUnknownToolOpensNoSpan(t *testing.T) {
	d, tracer, capture := newTestDispatcher(t)
	ctx, reqSpan := requestContext(tracer)

	outcome := d.Handle(ctx, []byte(`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"get_stock_price"}}`))
	reqSpan.End()

	assert.Equal(t, CodeMethodNotFound, errorCode(t, decodeResponse(t, outcome.Body)))

	spans := capture.all()
	require.Len(t, spans, 1, "only the request span may exist")
	assert.Equal(t, "POST /mcp", spans[0].Name)
}

func TestHandleToolsCallInvalidParams(t *testing.T) {
	d, tracer, capture := newTestDispatcher(t)
	ctx, reqSpan := requestContext(tracer)

	// name missing entirely
	outcome := d.Handle(ctx, []byte(`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{}}`))
	assert.Equal(t, CodeInvalidParams, errorCode(t, decodeResponse(t, outcome.Body)))

	// arguments fail the tool schema; the span records the failure
	outcome = d.Handle(ctx, []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"get_weather","arguments":{}}}`))
	assert.Equal(t, CodeInvalidParams, errorCode(t, decodeResponse(t, outcome.Body)))
	reqSpan.End()

	spans := capture.all()
	require.Len(t, spans, 2)
	toolSpan := spans[0]
	assert.Equal(t, "get_weather", toolSpan.Name)
	assert.Equal(t, trace.StatusError, toolSpan.Status)
	assert.Contains(t, toolSpan.StatusMessage, "location")
}

func TestHandleEchoesStringAndNumberIDs(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	outcome := d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":"abc-123","method":"tools/list"}`))
	resp := decodeResponse(t, outcome.Body)
	assert.Equal(t, "abc-123", resp["id"])

	outcome = d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":42,"method":"tools/list"}`))
	resp = decodeResponse(t, outcome.Body)
	assert.Equal(t, float64(42), resp["id"])
}
