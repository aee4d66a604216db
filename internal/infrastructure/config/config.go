package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Service   ServiceConfig
	Export    ExportConfig
	Langfuse  LangfuseConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port     string `envconfig:"PORT" default:"8001"`
	Host     string `envconfig:"HOST" default:"0.0.0.0"`
	Endpoint string `envconfig:"MCP_ENDPOINT" default:"/mcp"`
}

// ServiceConfig identifies this service on every exported span.
type ServiceConfig struct {
	Name    string `envconfig:"SERVICE_NAME" default:"nimbus-weather"`
	Version string `envconfig:"SERVICE_VERSION" default:"1.0.0"`
}

// ExportConfig holds span exporter configuration.
type ExportConfig struct {
	// Sink selects the backend: "otlp", "langfuse" or "log".
	Sink            string        `envconfig:"EXPORT_SINK" default:"otlp"`
	Endpoint        string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"http://localhost:4318/v1/traces"`
	BatchSize       int           `envconfig:"EXPORT_BATCH_SIZE" default:"64"`
	FlushInterval   time.Duration `envconfig:"EXPORT_FLUSH_INTERVAL" default:"200ms"`
	BufferSize      int           `envconfig:"EXPORT_BUFFER_SIZE" default:"2048"`
	DropPolicy      string        `envconfig:"EXPORT_DROP_POLICY" default:"newest"`
	ShutdownTimeout time.Duration `envconfig:"EXPORT_SHUTDOWN_TIMEOUT" default:"5s"`
}

// LangfuseConfig holds credentials for the Langfuse ingestion sink.
type LangfuseConfig struct {
	Host      string `envconfig:"LANGFUSE_HOST" default:"https://cloud.langfuse.com"`
	PublicKey string `envconfig:"LANGFUSE_PUBLIC_KEY" default:""`
	SecretKey string `envconfig:"LANGFUSE_SECRET_KEY" default:""`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     "8001",
			Host:     "0.0.0.0",
			Endpoint: "/mcp",
		},
		Service: ServiceConfig{
			Name:    "nimbus-weather",
			Version: "1.0.0",
		},
		Export: ExportConfig{
			Sink:            "otlp",
			Endpoint:        "http://localhost:4318/v1/traces",
			BatchSize:       64,
			FlushInterval:   200 * time.Millisecond,
			BufferSize:      2048,
			DropPolicy:      "newest",
			ShutdownTimeout: 5 * time.Second,
		},
		Langfuse: LangfuseConfig{
			Host: "https://cloud.langfuse.com",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
