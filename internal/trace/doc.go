/*
Package trace provides distributed tracing for the RPC server.

# Overview

This package implements lightweight tracing following OpenTelemetry
concepts with a minimal implementation tailored to the server's needs:
W3C trace-context propagation, span creation with parent-child linkage,
and hand-off of closed spans to a pluggable exporter.

# Components

  - TraceContext: immutable (trace id, span id, flags, state) tuple
  - Extract/Inject: W3C traceparent/tracestate codec over header maps
  - Tracer: span factory bound to a service name and an Exporter
  - SpanHandle: thread-safe span mutation and exactly-once close
  - Middleware: Gin middleware opening a request-level span

# Usage

	tracer := trace.New("weather", logger, exporter)
	router.Use(trace.Middleware(tracer))

	span := tracer.StartSpan(parentCtx, "get_weather")
	span.SetAttribute("tool.name", "get_weather")
	defer span.End()

# Propagation

Traces use the W3C headers:
  - traceparent: version-traceid-spanid-flags
  - tracestate: opaque vendor state, carried verbatim

A malformed or absent carrier is never an error; extraction degrades to
a freshly synthesized root context.
*/
package trace
