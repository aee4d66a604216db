package trace

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nimbuslabs/nimbus/internal/shared/id"
)

// Exporter accepts closed spans for asynchronous delivery. Submit must
// never block the caller; delivery is best-effort.
type Exporter interface {
	Submit(span *Span)
}

// Tracer creates spans for a single service. It holds the only reference
// to the exporter; spans submit themselves through it on End.
type Tracer struct {
	service  string
	logger   *zap.Logger
	exporter Exporter
}

// New creates a tracer bound to a service name and exporter.
func New(service string, logger *zap.Logger, exporter Exporter) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{
		service:  service,
		logger:   logger,
		exporter: exporter,
	}
}

// StartSpan opens a span under the given parent context. A valid child
// context yields a genuine child span (same trace id, parent span id set);
// a root or invalid context yields a fresh trace. The tracer never
// fabricates a parent id.
func (t *Tracer) StartSpan(parent TraceContext, name string) *SpanHandle {
	span := &Span{
		SpanID:    id.NewSpanID(),
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
	}

	if parent.Valid() && !parent.IsRoot() {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = id.NewTraceID()
	}

	return &SpanHandle{span: span, tracer: t}
}

// StartSpanFromContext opens a span parented on the span stored in ctx,
// or a fresh trace when none is present, and returns a derived context
// carrying the new span.
func (t *Tracer) StartSpanFromContext(ctx context.Context, name string) (*SpanHandle, context.Context) {
	parent := NewRoot()
	if current := SpanFromContext(ctx); current != nil {
		parent = current.SpanContext()
	}
	handle := t.StartSpan(parent, name)
	return handle, ContextWithSpan(ctx, handle)
}

// Service returns the service name stamped on every span.
func (t *Tracer) Service() string {
	return t.service
}

type contextKey string

const spanKey contextKey = "trace_span"

// ContextWithSpan stores a span handle in the context for child creation.
func ContextWithSpan(ctx context.Context, handle *SpanHandle) context.Context {
	return context.WithValue(ctx, spanKey, handle)
}

// SpanFromContext retrieves the current span handle, or nil.
func SpanFromContext(ctx context.Context) *SpanHandle {
	if ctx == nil {
		return nil
	}
	handle, _ := ctx.Value(spanKey).(*SpanHandle)
	return handle
}

// ContextFromContext returns the trace context of the current span, or a
// fresh root when no span is active.
func ContextFromContext(ctx context.Context) TraceContext {
	if handle := SpanFromContext(ctx); handle != nil {
		return handle.SpanContext()
	}
	return NewRoot()
}
