// Command server runs the traced weather tool server: a JSON-RPC 2.0
// endpoint over HTTP that propagates W3C trace context and exports a
// span per request and per tool call to the configured backend.
//
// Configuration is environment-driven; see internal/infrastructure/config.
package main
