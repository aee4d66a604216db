package export

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/nimbuslabs/nimbus/internal/trace"
)

// LogSink writes spans to the structured log. It is the fallback when no
// collector endpoint is configured and keeps traces observable in
// development.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink writing to the given logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Name identifies the sink in logs and metrics.
func (s *LogSink) Name() string { return "log" }

// Export logs each span in the batch.
func (s *LogSink) Export(_ context.Context, spans []*trace.Span) error {
	for _, sp := range spans {
		fields := []zap.Field{
			zap.String("trace_id", sp.TraceID),
			zap.String("span_id", sp.SpanID),
			zap.String("name", sp.Name),
			zap.String("service", sp.Service),
			zap.Duration("duration", sp.Duration),
			zap.String("status", sp.Status.String()),
		}
		if sp.ParentID != "" {
			fields = append(fields, zap.String("parent_id", sp.ParentID))
		}
		if sp.Status == trace.StatusError {
			fields = append(fields, zap.String("status_message", sp.StatusMessage))
			s.logger.Warn("span completed with error", fields...)
			continue
		}
		s.logger.Info("span completed", fields...)
	}
	return nil
}

// MemorySink captures exported spans in memory for tests.
type MemorySink struct {
	mu    sync.Mutex
	spans []*trace.Span
	fail  error
}

// NewMemorySink creates an empty capture sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Name identifies the sink in logs and metrics.
func (s *MemorySink) Name() string { return "memory" }

// Export appends the batch, or fails when FailWith was set.
func (s *MemorySink) Export(_ context.Context, spans []*trace.Span) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.spans = append(s.spans, spans...)
	return nil
}

// FailWith makes subsequent Export calls return err (nil to recover).
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Spans returns a copy of everything captured so far.
func (s *MemorySink) Spans() []*trace.Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*trace.Span, len(s.spans))
	copy(out, s.spans)
	return out
}

// Len returns the number of captured spans.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spans)
}
