package export

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nimbuslabs/nimbus/internal/infrastructure/monitoring"
	"github.com/nimbuslabs/nimbus/internal/trace"
)

// Sink transmits a batch of closed spans to a backend. Export is called
// from the exporter's single worker goroutine only.
type Sink interface {
	Name() string
	Export(ctx context.Context, spans []*trace.Span) error
}

// DropPolicy decides which span is sacrificed when the buffer is full.
type DropPolicy string

const (
	// DropNewest drops the incoming span, keeping the backlog intact.
	DropNewest DropPolicy = "newest"
	// DropOldest evicts the head of the queue in favor of the incoming span.
	DropOldest DropPolicy = "oldest"
)

// Config controls buffering and flush cadence.
type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Policy        DropPolicy
	ExportTimeout time.Duration
}

// DefaultConfig mirrors the batch settings of a stock OTLP processor.
func DefaultConfig() Config {
	return Config{
		BufferSize:    2048,
		BatchSize:     64,
		FlushInterval: 200 * time.Millisecond,
		Policy:        DropNewest,
		ExportTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BatchSize > c.BufferSize {
		c.BatchSize = c.BufferSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.Policy != DropOldest {
		c.Policy = DropNewest
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = d.ExportTimeout
	}
	return c
}

// BatchExporter buffers spans and drains them to a sink in the background.
// It is the only piece of state shared between request goroutines; access
// goes through a single mutex-guarded enqueue, and the worker is the sole
// reader.
type BatchExporter struct {
	cfg     Config
	sink    Sink
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	queue   []*trace.Span
	stopped bool

	dropped  atomic.Uint64
	exported atomic.Uint64

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a BatchExporter and starts its flush worker.
func New(sink Sink, cfg Config, logger *zap.Logger) *BatchExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &BatchExporter{
		cfg:    cfg.withDefaults(),
		sink:   sink,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	e.queue = make([]*trace.Span, 0, e.cfg.BufferSize)

	e.wg.Add(1)
	go e.worker()

	return e
}

// WithMetrics attaches Prometheus counters for exported/dropped spans.
func (e *BatchExporter) WithMetrics(m *monitoring.Metrics) *BatchExporter {
	e.metrics = m
	return e
}

// Submit enqueues a closed span and returns immediately. When the buffer
// is full a span is dropped per the configured policy; Submit never blocks
// and never fails the request that produced the span.
func (e *BatchExporter) Submit(span *trace.Span) {
	if span == nil {
		return
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		e.countDropped(span, "shutdown")
		return
	}

	if len(e.queue) >= e.cfg.BufferSize {
		if e.cfg.Policy == DropOldest {
			evicted := e.queue[0]
			e.queue = append(e.queue[1:], span)
			e.mu.Unlock()
			e.countDropped(evicted, "buffer_full")
			e.notify()
			return
		}
		e.mu.Unlock()
		e.countDropped(span, "buffer_full")
		return
	}

	e.queue = append(e.queue, span)
	pending := len(e.queue)
	e.mu.Unlock()

	if pending >= e.cfg.BatchSize {
		e.notify()
	}
}

// Shutdown stops the worker and performs one bounded best-effort flush of
// the remaining buffer. Spans submitted afterwards are dropped.
func (e *BatchExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()

	for {
		batch := e.take()
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			e.discard(batch, "shutdown")
			return err
		}
		e.exportBatch(ctx, batch)
	}
}

// Dropped returns the number of spans dropped so far.
func (e *BatchExporter) Dropped() uint64 {
	return e.dropped.Load()
}

// Exported returns the number of spans successfully handed to the sink.
func (e *BatchExporter) Exported() uint64 {
	return e.exported.Load()
}

// Buffered returns the current queue depth.
func (e *BatchExporter) Buffered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *BatchExporter) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *BatchExporter) worker() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
		case <-e.wake:
		}
		e.flush()
	}
}

// flush drains the queue in batch-sized chunks.
func (e *BatchExporter) flush() {
	for {
		batch := e.take()
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ExportTimeout)
		e.exportBatch(ctx, batch)
		cancel()
	}
}

// take removes up to BatchSize spans from the head of the queue.
func (e *BatchExporter) take() []*trace.Span {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return nil
	}
	n := len(e.queue)
	if n > e.cfg.BatchSize {
		n = e.cfg.BatchSize
	}
	batch := make([]*trace.Span, n)
	copy(batch, e.queue[:n])
	e.queue = e.queue[n:]
	return batch
}

// exportBatch ships one batch. A sink failure drops the batch: the sink
// already performs its own bounded retry, and retry storms must not build
// up behind live traffic.
func (e *BatchExporter) exportBatch(ctx context.Context, batch []*trace.Span) {
	if err := e.sink.Export(ctx, batch); err != nil {
		e.logger.Warn("span batch export failed, dropping batch",
			zap.String("sink", e.sink.Name()),
			zap.Int("spans", len(batch)),
			zap.Error(err),
		)
		if e.metrics != nil {
			e.metrics.RecordExportFailure(e.sink.Name())
		}
		e.discard(batch, "export_failure")
		return
	}

	e.exported.Add(uint64(len(batch)))
	if e.metrics != nil {
		e.metrics.RecordSpansExported(e.sink.Name(), len(batch))
	}
}

func (e *BatchExporter) discard(batch []*trace.Span, reason string) {
	e.dropped.Add(uint64(len(batch)))
	if e.metrics != nil {
		e.metrics.RecordSpansDropped(reason, len(batch))
	}
}

func (e *BatchExporter) countDropped(span *trace.Span, reason string) {
	e.dropped.Add(1)
	if e.metrics != nil {
		e.metrics.RecordSpansDropped(reason, 1)
	}
	e.logger.Debug("span dropped",
		zap.String("reason", reason),
		zap.String("trace_id", span.TraceID),
		zap.String("span_id", span.SpanID),
	)
}
