package trace

import (
	"fmt"
	"strings"

	"github.com/nimbuslabs/nimbus/internal/shared/id"
)

// W3C trace-context header names.
const (
	TraceParentHeader = "traceparent"
	TraceStateHeader  = "tracestate"
)

// FlagSampled is the sampled bit of the trace flags.
const FlagSampled byte = 0x01

const (
	supportedVersion = "00"
	invalidVersion   = "ff"
	traceIDHexLen    = 32
	spanIDHexLen     = 16
)

// TraceContext identifies a position within a distributed trace. It is an
// immutable value: a zero TraceID never escapes Extract, and a context is
// either a root (empty SpanID) or a child of the span whose id it carries.
type TraceContext struct {
	TraceID string
	SpanID  string
	Flags   byte
	State   string
}

// IsRoot reports whether the context has no parent span.
func (tc TraceContext) IsRoot() bool {
	return tc.SpanID == ""
}

// Sampled reports whether the sampled flag is set.
func (tc TraceContext) Sampled() bool {
	return tc.Flags&FlagSampled != 0
}

// Valid reports whether the trace id is a well-formed non-zero 128-bit hex id.
func (tc TraceContext) Valid() bool {
	return isHexID(tc.TraceID, traceIDHexLen)
}

// NewRoot synthesizes a fresh sampled root context with no parent.
func NewRoot() TraceContext {
	return TraceContext{
		TraceID: id.NewTraceID(),
		Flags:   FlagSampled,
	}
}

// Extract parses a W3C trace-context carrier into a TraceContext.
//
// Extraction fails soft: a missing, malformed, all-zero or
// version-unsupported traceparent yields a freshly synthesized root
// context so the request is served either way. Header name lookup is
// case-insensitive per RFC 9110.
func Extract(carrier map[string]string) TraceContext {
	raw := carrierGet(carrier, TraceParentHeader)
	tc, ok := parseTraceParent(raw)
	if !ok {
		return NewRoot()
	}
	tc.State = carrierGet(carrier, TraceStateHeader)
	return tc
}

// Inject serializes a TraceContext into a carrier map, the inverse of
// Extract. Root contexts carry no span id and cannot be represented on
// the wire, so they inject nothing.
func Inject(tc TraceContext) map[string]string {
	carrier := make(map[string]string, 2)
	if !tc.Valid() || tc.IsRoot() {
		return carrier
	}
	carrier[TraceParentHeader] = fmt.Sprintf("%s-%s-%s-%02x", supportedVersion, tc.TraceID, tc.SpanID, tc.Flags)
	if tc.State != "" {
		carrier[TraceStateHeader] = tc.State
	}
	return carrier
}

// parseTraceParent parses "version-traceid-spanid-flags". All-zero trace
// or span ids are rejected as invalid per the W3C spec.
func parseTraceParent(value string) (TraceContext, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return TraceContext{}, false
	}

	parts := strings.Split(value, "-")
	if len(parts) < 4 {
		return TraceContext{}, false
	}

	version := strings.ToLower(parts[0])
	if len(version) != 2 || !isHex(version) || version == invalidVersion {
		return TraceContext{}, false
	}
	// Future versions may append fields; version 00 is exactly four.
	if version == supportedVersion && len(parts) != 4 {
		return TraceContext{}, false
	}

	traceID := strings.ToLower(parts[1])
	spanID := strings.ToLower(parts[2])
	flags := parts[3]

	if !isHexID(traceID, traceIDHexLen) || !isHexID(spanID, spanIDHexLen) {
		return TraceContext{}, false
	}
	if len(flags) != 2 || !isHex(flags) {
		return TraceContext{}, false
	}

	return TraceContext{
		TraceID: traceID,
		SpanID:  spanID,
		Flags:   hexByte(flags),
	}, true
}

// isHexID checks length, hex alphabet and the non-zero invariant.
func isHexID(s string, length int) bool {
	if len(s) != length || !isHex(s) {
		return false
	}
	for _, c := range s {
		if c != '0' {
			return true
		}
	}
	return false
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func hexByte(s string) byte {
	return hexNibble(s[0])<<4 | hexNibble(s[1])
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func carrierGet(carrier map[string]string, key string) string {
	if v, ok := carrier[key]; ok {
		return v
	}
	for k, v := range carrier {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
