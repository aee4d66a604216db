// Package rpc implements the JSON-RPC 2.0 protocol layer: envelope
// parsing, method routing (initialize, tools/list, tools/call and
// notifications) and the span wrapping around tool execution. Every
// non-notification request produces exactly one response; protocol
// failures map to the standard JSON-RPC error codes and never crash
// the server.
package rpc
