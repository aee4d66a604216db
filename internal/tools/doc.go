// Package tools provides the tool registry for RPC-exposed functions.
//
// Each tool is a named handler with a declared input/output schema.
// Lookups are by exact name; arguments are validated against the input
// schema before the handler runs, and handler panics are contained at
// the invocation boundary. The registry is written once at startup and
// read-only afterwards.
package tools
