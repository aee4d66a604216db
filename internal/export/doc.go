/*
Package export ships closed spans to an observability backend.

# Overview

The BatchExporter accepts spans through a non-blocking Submit, buffers
them in a bounded queue and drains the queue from a single background
worker in batches. Delivery is best-effort: when the buffer is full a
span is dropped according to the configured policy and counted, and a
failed transmission drops the batch after the sink's own bounded retry.
Export failures degrade observability, never the RPC path.

# Sinks

  - OTLPSink: OTLP/HTTP JSON span batches, gzip-compressed
  - LangfuseSink: Langfuse batch ingestion API
  - LogSink: structured log output, useful without a collector
  - MemorySink: in-process capture for tests
*/
package export
