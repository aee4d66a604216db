package config

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != "8001" {
		t.Errorf("default port = %s, want 8001", cfg.Server.Port)
	}
	if cfg.Service.Name != "nimbus-weather" {
		t.Errorf("default service name = %s", cfg.Service.Name)
	}
	if cfg.Export.BufferSize != 2048 {
		t.Errorf("default buffer size = %d, want 2048", cfg.Export.BufferSize)
	}
	if cfg.Export.FlushInterval != 200*time.Millisecond {
		t.Errorf("default flush interval = %s, want 200ms", cfg.Export.FlushInterval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SERVICE_NAME", "weather-test")
	t.Setenv("EXPORT_SINK", "log")
	t.Setenv("EXPORT_DROP_POLICY", "oldest")
	t.Setenv("EXPORT_FLUSH_INTERVAL", "50ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "9999" {
		t.Errorf("port = %s, want 9999", cfg.Server.Port)
	}
	if cfg.Service.Name != "weather-test" {
		t.Errorf("service name = %s, want weather-test", cfg.Service.Name)
	}
	if cfg.Export.Sink != "log" {
		t.Errorf("sink = %s, want log", cfg.Export.Sink)
	}
	if cfg.Export.DropPolicy != "oldest" {
		t.Errorf("drop policy = %s, want oldest", cfg.Export.DropPolicy)
	}
	if cfg.Export.FlushInterval != 50*time.Millisecond {
		t.Errorf("flush interval = %s, want 50ms", cfg.Export.FlushInterval)
	}
}
