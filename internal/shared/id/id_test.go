package id

import (
	"strings"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tid := NewTraceID()
		if len(tid) != 32 {
			t.Fatalf("trace id length = %d, want 32", len(tid))
		}
		if tid == strings.Repeat("0", 32) {
			t.Fatal("trace id must never be all-zero")
		}
		if seen[tid] {
			t.Fatalf("duplicate trace id: %s", tid)
		}
		seen[tid] = true
	}
}

func TestNewSpanID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		sid := NewSpanID()
		if len(sid) != 16 {
			t.Fatalf("span id length = %d, want 16", len(sid))
		}
		if sid == strings.Repeat("0", 16) {
			t.Fatal("span id must never be all-zero")
		}
		if seen[sid] {
			t.Fatalf("duplicate span id: %s", sid)
		}
		seen[sid] = true
	}
}

func TestHexLowercase(t *testing.T) {
	tid := NewTraceID()
	if tid != strings.ToLower(tid) {
		t.Errorf("trace id must be lowercase hex: %s", tid)
	}
}

func TestNewRequestID(t *testing.T) {
	rid := NewRequestID()
	if !strings.HasPrefix(rid.String(), "req_") {
		t.Errorf("request id missing prefix: %s", rid)
	}
	if !IsValid(strings.TrimPrefix(rid.String(), "req_")) {
		t.Errorf("request id is not a valid ULID: %s", rid)
	}
}

func TestNewSessionID(t *testing.T) {
	sid := NewSessionID()
	if !strings.HasPrefix(sid.String(), "sess_") {
		t.Errorf("session id missing prefix: %s", sid)
	}
}

func TestGeneratorUniqueness(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.GenerateString()
		if seen[id] {
			t.Fatalf("duplicate ULID: %s", id)
		}
		seen[id] = true
	}
}
