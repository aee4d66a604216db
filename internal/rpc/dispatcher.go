package rpc

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/nimbuslabs/nimbus/internal/infrastructure/monitoring"
	"github.com/nimbuslabs/nimbus/internal/shared/id"
	"github.com/nimbuslabs/nimbus/internal/tools"
	"github.com/nimbuslabs/nimbus/internal/trace"
)

// ProtocolVersion is the MCP protocol revision advertised by initialize.
const ProtocolVersion = "2024-11-05"

// RPC method names.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// ServerInfo describes this server in the initialize handshake.
type ServerInfo struct {
	Name         string
	Version      string
	Instructions string
}

// Outcome is the result of dispatching one request. Notifications carry
// no body; SessionID is set only for initialize so the transport can
// surface it as a header.
type Outcome struct {
	Body         []byte
	Notification bool
	SessionID    string
}

// Dispatcher routes JSON-RPC requests to the tool registry and wraps
// tool execution in spans parented on the request-level span.
type Dispatcher struct {
	registry *tools.Registry
	tracer   *trace.Tracer
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	info     ServerInfo
}

// NewDispatcher creates a dispatcher over the given registry and tracer.
func NewDispatcher(registry *tools.Registry, tracer *trace.Tracer, logger *zap.Logger, info ServerInfo) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		tracer:   tracer,
		logger:   logger,
		info:     info,
	}
}

// WithMetrics attaches RPC and tool-call metrics.
func (d *Dispatcher) WithMetrics(m *monitoring.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// Handle runs one request through the protocol state machine:
// Received -> Parsed -> Dispatching -> Completed. Every non-notification
// request yields exactly one response; every tool span opened here is
// closed before the response is encoded.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) *Outcome {
	req, err := DecodeRequest(body)
	if err != nil {
		d.count("", "parse_error")
		return d.respond(nil, errorResponse(nil, CodeParseError, "Parse error", err.Error()))
	}
	if req.JSONRPC != Version || req.Method == "" {
		d.count(req.Method, "invalid_request")
		if req.IsNotification() {
			return &Outcome{Notification: true}
		}
		return d.respond(req, errorResponse(req.ID, CodeInvalidRequest, `Invalid Request: jsonrpc must be "2.0" and method is required`, nil))
	}

	// The request-level span carries the RPC method for every path,
	// including failures below.
	if span := trace.SpanFromContext(ctx); span != nil {
		span.SetAttribute("rpc.system", "jsonrpc")
		span.SetAttribute("rpc.method", req.Method)
	}

	var resp *Response
	sessionID := ""

	switch req.Method {
	case MethodInitialize:
		sessionID = id.NewSessionID().String()
		resp = resultResponse(req.ID, d.initializeResult())
		d.count(req.Method, "ok")
	case MethodInitialized:
		// Lifecycle notification, acknowledged silently.
		d.count(req.Method, "ok")
		return &Outcome{Notification: true}
	case MethodToolsList:
		resp = resultResponse(req.ID, d.toolsListResult())
		d.count(req.Method, "ok")
	case MethodToolsCall:
		resp = d.toolsCall(ctx, req)
	default:
		d.count(req.Method, "method_not_found")
		resp = errorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method, nil)
	}

	if req.IsNotification() {
		return &Outcome{Notification: true, SessionID: sessionID}
	}
	out := d.respond(req, resp)
	out.SessionID = sessionID
	return out
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// toolsCall resolves the tool, opens a span named after it as a child of
// the request span, invokes the registry and records the outcome on the
// span. No span is opened for a nonexistent tool.
func (d *Dispatcher) toolsCall(ctx context.Context, req *Request) *Response {
	var params callParams
	if len(req.Params) > 0 {
		if err := sonic.Unmarshal(req.Params, &params); err != nil {
			d.countTool("", "invalid_params")
			return errorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error(), nil)
		}
	}
	if params.Name == "" {
		d.countTool("", "invalid_params")
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params: name is required", nil)
	}
	if _, ok := d.registry.Get(params.Name); !ok {
		d.countTool(params.Name, "unknown_tool")
		return errorResponse(req.ID, CodeMethodNotFound, "Unknown tool: "+params.Name, nil)
	}
	if params.Arguments == nil {
		params.Arguments = make(map[string]any)
	}

	span := d.tracer.StartSpan(trace.ContextFromContext(ctx), params.Name)
	span.SetAttribute("rpc.method", MethodToolsCall)
	span.SetAttribute("tool.name", params.Name)
	if input, err := sonic.MarshalString(params.Arguments); err == nil {
		span.SetAttribute("input", input)
	}
	start := time.Now()

	result, terr := d.registry.Invoke(trace.ContextWithSpan(ctx, span), params.Name, params.Arguments)

	if terr != nil {
		span.SetStatus(trace.StatusError, terr.Message)
		span.End()
		d.countTool(params.Name, terr.Kind.String())
		d.recordToolDuration(params.Name, "error", time.Since(start))

		d.logger.Warn("tool call failed",
			zap.String("tool", params.Name),
			zap.String("kind", terr.Kind.String()),
			zap.String("message", terr.Message),
		)
		return errorResponse(req.ID, toolErrorCode(terr.Kind), terr.Message, terr.Detail)
	}

	if output, err := sonic.MarshalString(result); err == nil {
		span.SetAttribute("output", output)
	}
	span.SetStatus(trace.StatusOK, "")
	span.End()
	d.countTool(params.Name, "ok")
	d.recordToolDuration(params.Name, "ok", time.Since(start))

	d.logger.Info("tool call completed",
		zap.String("tool", params.Name),
		zap.String("trace_id", span.TraceID()),
		zap.String("span_id", span.SpanID()),
	)
	return resultResponse(req.ID, result)
}

func toolErrorCode(kind tools.Kind) int {
	switch kind {
	case tools.KindUnknownTool:
		return CodeMethodNotFound
	case tools.KindInvalidParams:
		return CodeInvalidParams
	default:
		return CodeInternalError
	}
}

func (d *Dispatcher) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    d.info.Name,
			"version": d.info.Version,
		},
		"instructions": d.info.Instructions,
	}
}

func (d *Dispatcher) toolsListResult() map[string]any {
	descriptors := d.registry.List()
	listed := make([]map[string]any, 0, len(descriptors))
	for _, desc := range descriptors {
		listed = append(listed, map[string]any{
			"name":         desc.Name,
			"description":  desc.Description,
			"inputSchema":  desc.InputSchema.JSONSchema(),
			"outputSchema": desc.OutputSchema.JSONSchema(),
		})
	}
	return map[string]any{"tools": listed}
}

// respond encodes the response envelope. An encode failure downgrades to
// a static internal-error body rather than dropping the response.
func (d *Dispatcher) respond(req *Request, resp *Response) *Outcome {
	body, err := EncodeResponse(resp)
	if err != nil {
		d.logger.Error("failed to encode response", zap.Error(err))
		fallback := `{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal error"}}`
		return &Outcome{Body: []byte(fallback)}
	}
	return &Outcome{Body: body}
}

func (d *Dispatcher) count(method, outcome string) {
	if d.metrics != nil {
		d.metrics.RecordRPCRequest(method, outcome)
	}
}

func (d *Dispatcher) countTool(tool, status string) {
	if d.metrics != nil {
		d.metrics.RecordToolCall(tool, status)
	}
}

func (d *Dispatcher) recordToolDuration(tool, status string, elapsed time.Duration) {
	if d.metrics != nil {
		d.metrics.RecordToolDuration(tool, status, elapsed)
	}
}
