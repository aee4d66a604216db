package trace

import (
	"fmt"
	"sync"
	"time"
)

// Status describes the outcome recorded on a span.
type Status int

const (
	StatusUnset Status = iota
	StatusOK
	StatusError
)

// String returns the OTLP-style status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unset"
	}
}

// Span is a timed record of one unit of work. It is mutated only through
// its SpanHandle while open; once ended it is frozen and handed to the
// exporter as-is.
type Span struct {
	TraceID       string         `json:"trace_id"`
	SpanID        string         `json:"span_id"`
	ParentID      string         `json:"parent_id,omitempty"`
	Name          string         `json:"name"`
	Service       string         `json:"service"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	Duration      time.Duration  `json:"duration"`
	Status        Status         `json:"status"`
	StatusMessage string         `json:"status_message,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// SpanHandle guards a span during its open lifetime. Safe for concurrent
// use. Mutation after End is a no-op: the span has already been submitted
// and must never change afterward.
type SpanHandle struct {
	mu     sync.Mutex
	span   *Span
	tracer *Tracer
	ended  bool
}

// SetAttribute records a scalar attribute on the open span. Non-scalar
// values are stringified so the exported span stays flat.
func (h *SpanHandle) SetAttribute(key string, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ended {
		return
	}
	if h.span.Attributes == nil {
		h.span.Attributes = make(map[string]any)
	}
	h.span.Attributes[key] = scalar(value)
}

// SetStatus records the span outcome. The message is kept only for
// error status, mirroring the OTLP status model.
func (h *SpanHandle) SetStatus(status Status, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ended {
		return
	}
	h.span.Status = status
	if status == StatusError {
		h.span.StatusMessage = message
	} else {
		h.span.StatusMessage = ""
	}
}

// End stamps the end timestamp, freezes the span and submits it to the
// exporter exactly once. Subsequent calls are no-ops.
func (h *SpanHandle) End() {
	h.mu.Lock()
	if h.ended {
		h.mu.Unlock()
		return
	}
	h.ended = true
	h.span.EndTime = time.Now()
	h.span.Duration = h.span.EndTime.Sub(h.span.StartTime)
	span := h.span
	tracer := h.tracer
	h.mu.Unlock()

	if tracer != nil && tracer.exporter != nil {
		tracer.exporter.Submit(span)
	}
}

// Ended reports whether End has been called.
func (h *SpanHandle) Ended() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ended
}

// SpanContext returns the trace context identifying this span, used to
// parent children of this span.
func (h *SpanHandle) SpanContext() TraceContext {
	h.mu.Lock()
	defer h.mu.Unlock()
	return TraceContext{
		TraceID: h.span.TraceID,
		SpanID:  h.span.SpanID,
		Flags:   FlagSampled,
	}
}

// TraceID returns the trace id of the underlying span.
func (h *SpanHandle) TraceID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.span.TraceID
}

// SpanID returns the span id of the underlying span.
func (h *SpanHandle) SpanID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.span.SpanID
}

// Snapshot returns a copy of the span as currently recorded. Intended
// for tests and debugging; the exporter receives the original.
func (h *SpanHandle) Snapshot() Span {
	h.mu.Lock()
	defer h.mu.Unlock()

	copied := *h.span
	if h.span.Attributes != nil {
		copied.Attributes = make(map[string]any, len(h.span.Attributes))
		for k, v := range h.span.Attributes {
			copied.Attributes[k] = v
		}
	}
	return copied
}

// scalar normalizes attribute values to strings, booleans and numbers.
func scalar(value any) any {
	switch v := value.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	default:
		return fmt.Sprint(v)
	}
}
