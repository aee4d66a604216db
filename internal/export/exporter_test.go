package export

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuslabs/nimbus/internal/trace"
)

func testSpan(name string) *trace.Span {
	return &trace.Span{
		TraceID: "4bf92f3577b34da6a3ce929d0e0e4736",
		SpanID:  "00f067aa0ba902b7",
		Name:    name,
		Service: "test-service",
	}
}

// gateSink blocks every Export until the gate is opened, pinning the
// worker so tests can fill the queue behind it.
type gateSink struct {
	*MemorySink
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{MemorySink: NewMemorySink(), gate: make(chan struct{})}
}

func (g *gateSink) open() { close(g.gate) }

func (g *gateSink) Export(ctx context.Context, spans []*trace.Span) error {
	<-g.gate
	return g.MemorySink.Export(ctx, spans)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSubmitFlushesOnBatchSize(t *testing.T) {
	sink := NewMemorySink()
	exp := New(sink, Config{
		BufferSize:    64,
		BatchSize:     4,
		FlushInterval: time.Hour, // only the size trigger may fire
	}, nil)
	defer exp.Shutdown(context.Background())

	for i := 0; i < 4; i++ {
		exp.Submit(testSpan(fmt.Sprintf("span-%d", i)))
	}

	waitFor(t, func() bool { return sink.Len() == 4 }, "batch never flushed on size")
	assert.Equal(t, uint64(4), exp.Exported())
	assert.Equal(t, uint64(0), exp.Dropped())
}

func TestSubmitFlushesOnInterval(t *testing.T) {
	sink := NewMemorySink()
	exp := New(sink, Config{
		BufferSize:    64,
		BatchSize:     64, // size trigger unreachable
		FlushInterval: 10 * time.Millisecond,
	}, nil)
	defer exp.Shutdown(context.Background())

	exp.Submit(testSpan("lonely"))

	waitFor(t, func() bool { return sink.Len() == 1 }, "span never flushed on interval")
}

// fillBehindWorker pins the worker inside one export, then fills the
// queue back up so the next Submit sees a full buffer.
func fillBehindWorker(t *testing.T, exp *BatchExporter) {
	t.Helper()
	exp.Submit(testSpan("warm-a"))
	exp.Submit(testSpan("warm-b"))
	waitFor(t, func() bool { return exp.Buffered() == 0 }, "worker never picked up the warmup batch")

	exp.Submit(testSpan("first"))
	exp.Submit(testSpan("second"))
}

func TestSubmitDropNewestWhenFull(t *testing.T) {
	sink := newGateSink()
	exp := New(sink, Config{
		BufferSize:    2,
		BatchSize:     2,
		FlushInterval: time.Hour,
		Policy:        DropNewest,
	}, nil)

	fillBehindWorker(t, exp)
	exp.Submit(testSpan("overflow"))

	assert.Equal(t, uint64(1), exp.Dropped())
	assert.Equal(t, 2, exp.Buffered())

	sink.open()
	require.NoError(t, exp.Shutdown(context.Background()))
	names := make([]string, 0, 4)
	for _, sp := range sink.Spans() {
		names = append(names, sp.Name)
	}
	assert.Equal(t, []string{"warm-a", "warm-b", "first", "second"}, names)
}

func TestSubmitDropOldestWhenFull(t *testing.T) {
	sink := newGateSink()
	exp := New(sink, Config{
		BufferSize:    2,
		BatchSize:     2,
		FlushInterval: time.Hour,
		Policy:        DropOldest,
	}, nil)

	fillBehindWorker(t, exp)
	exp.Submit(testSpan("overflow"))

	assert.Equal(t, uint64(1), exp.Dropped())

	sink.open()
	require.NoError(t, exp.Shutdown(context.Background()))
	names := make([]string, 0, 4)
	for _, sp := range sink.Spans() {
		names = append(names, sp.Name)
	}
	assert.Equal(t, []string{"warm-a", "warm-b", "second", "overflow"}, names)
}

func TestExportFailureDropsBatchOnly(t *testing.T) {
	sink := NewMemorySink()
	sink.FailWith(errors.New("collector down"))
	exp := New(sink, Config{
		BufferSize:    64,
		BatchSize:     2,
		FlushInterval: time.Hour,
	}, nil)
	defer exp.Shutdown(context.Background())

	exp.Submit(testSpan("doomed-1"))
	exp.Submit(testSpan("doomed-2"))
	waitFor(t, func() bool { return exp.Dropped() == 2 }, "failed batch not counted as dropped")

	// The sink recovers; later spans must still go through.
	sink.FailWith(nil)
	exp.Submit(testSpan("survivor-1"))
	exp.Submit(testSpan("survivor-2"))
	waitFor(t, func() bool { return sink.Len() == 2 }, "exporter did not recover after sink failure")
	assert.Equal(t, uint64(2), exp.Exported())
}

func TestShutdownFlushesRemainder(t *testing.T) {
	sink := NewMemorySink()
	exp := New(sink, Config{
		BufferSize:    64,
		BatchSize:     8,
		FlushInterval: time.Hour,
	}, nil)

	for i := 0; i < 5; i++ {
		exp.Submit(testSpan(fmt.Sprintf("span-%d", i)))
	}
	require.NoError(t, exp.Shutdown(context.Background()))

	assert.Equal(t, 5, sink.Len())
	assert.Equal(t, uint64(5), exp.Exported())
}

func TestShutdownIsBounded(t *testing.T) {
	sink := NewMemorySink()
	exp := New(sink, Config{
		BufferSize:    64,
		BatchSize:     8,
		FlushInterval: time.Hour,
	}, nil)

	exp.Submit(testSpan("stranded"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := exp.Shutdown(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(1), exp.Dropped())
}

func TestSubmitAfterShutdownDrops(t *testing.T) {
	sink := NewMemorySink()
	exp := New(sink, DefaultConfig(), nil)
	require.NoError(t, exp.Shutdown(context.Background()))

	exp.Submit(testSpan("late"))

	assert.Equal(t, uint64(1), exp.Dropped())
	assert.Equal(t, 0, sink.Len())
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, 2048, c.BufferSize)
	assert.Equal(t, 64, c.BatchSize)
	assert.Equal(t, 200*time.Millisecond, c.FlushInterval)
	assert.Equal(t, DropNewest, c.Policy)

	// BatchSize is clamped to the buffer.
	c = Config{BufferSize: 4, BatchSize: 100}.withDefaults()
	assert.Equal(t, 4, c.BatchSize)
}
