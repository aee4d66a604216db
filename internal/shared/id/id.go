// Package id provides centralized ID generation for the server.
//
// Two ID families live here:
//   - W3C trace/span identifiers: raw crypto/rand hex (32 and 16 chars),
//     guaranteed non-zero as the trace-context wire format requires
//   - Request/session identifiers: prefixed ULIDs, lexicographically
//     sortable and readable in logs (req_*, sess_*)
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// RequestPrefix marks request-scoped ULIDs in logs.
	RequestPrefix = "req"
	// SessionPrefix marks session-scoped ULIDs.
	SessionPrefix = "sess"
)

// RequestID identifies a single inbound RPC request.
type RequestID string

// SessionID identifies an initialized client session.
type SessionID string

func (id RequestID) String() string { return string(id) }
func (id SessionID) String() string { return string(id) }

// ============================================================================
// Trace identifiers (W3C wire format)
// ============================================================================

// NewTraceID returns a 128-bit trace id as 32 lowercase hex characters.
// An all-zero id is invalid on the wire, so generation retries until the
// id is non-zero.
func NewTraceID() string {
	return randomHex(16)
}

// NewSpanID returns a 64-bit span id as 16 lowercase hex characters,
// never all-zero.
func NewSpanID() string {
	return randomHex(8)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	for {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand never fails on supported platforms; if it does,
			// there is no safe fallback for identifiers.
			panic(fmt.Sprintf("id: entropy source failed: %v", err))
		}
		if !allZero(buf) {
			return hex.EncodeToString(buf)
		}
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// ============================================================================
// ULID generator (request/session ids)
// ============================================================================

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewRequestID generates a new request ID.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewSessionID generates a new session ID.
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// IsValid checks if an ID string is a valid ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}
