package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nimbuslabs/nimbus/internal/api/middleware"
	"github.com/nimbuslabs/nimbus/internal/export"
	"github.com/nimbuslabs/nimbus/internal/infrastructure/config"
	"github.com/nimbuslabs/nimbus/internal/infrastructure/logging"
	"github.com/nimbuslabs/nimbus/internal/infrastructure/monitoring"
	"github.com/nimbuslabs/nimbus/internal/providers/weather"
	"github.com/nimbuslabs/nimbus/internal/rpc"
	"github.com/nimbuslabs/nimbus/internal/tools"
	"github.com/nimbuslabs/nimbus/internal/trace"
)

const serverInstructions = "This server provides weather tools. Tools: get_weather " +
	"(get current weather for a location), get_forecast (get weather forecast for multiple days)."

// maxBodyBytes caps RPC request bodies.
const maxBodyBytes = 1 << 20

// Server wraps the HTTP server and its dependencies.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	dispatcher *rpc.Dispatcher
	registry   *tools.Registry
	tracer     *trace.Tracer
	exporter   *export.BatchExporter
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// New creates a new server instance.
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing server",
		zap.String("port", cfg.Server.Port),
		zap.String("endpoint", cfg.Server.Endpoint),
		zap.String("service", cfg.Service.Name),
		zap.String("export_sink", cfg.Export.Sink),
	)

	metrics := monitoring.NewMetrics()

	sink, err := buildSink(cfg, logger.Logger)
	if err != nil {
		return nil, err
	}
	exporter := export.New(sink, export.Config{
		BufferSize:    cfg.Export.BufferSize,
		BatchSize:     cfg.Export.BatchSize,
		FlushInterval: cfg.Export.FlushInterval,
		Policy:        export.DropPolicy(cfg.Export.DropPolicy),
	}, logger.Logger).WithMetrics(metrics)
	logger.Info("Span exporter initialized", zap.String("sink", sink.Name()))

	tracer := trace.New(cfg.Service.Name, logger.Logger, exporter)

	registry := tools.NewRegistry()
	if err := weather.NewProvider(logger.Logger).Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register weather tools: %w", err)
	}
	logger.Info("Tool registry initialized", zap.Int("tools", registry.Len()))

	dispatcher := rpc.NewDispatcher(registry, tracer, logger.Logger, rpc.ServerInfo{
		Name:         cfg.Service.Name,
		Version:      cfg.Service.Version,
		Instructions: serverInstructions,
	}).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(trace.Middleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	s := &Server{
		router:     router,
		dispatcher: dispatcher,
		registry:   registry,
		tracer:     tracer,
		exporter:   exporter,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
	}

	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.POST(cfg.Server.Endpoint, s.handleRPC)

	logger.Info("Server initialized successfully")
	return s, nil
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Exporter exposes the span exporter, mainly for tests.
func (s *Server) Exporter() *export.BatchExporter {
	return s.exporter
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the HTTP server, then flushes buffered spans once
// within the configured export timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), s.config.Export.ShutdownTimeout)
	defer cancel()
	if err := s.exporter.Shutdown(flushCtx); err != nil {
		s.logger.Warn("Exporter flush incomplete",
			zap.Uint64("dropped", s.exporter.Dropped()),
			zap.Error(err),
		)
	}
	s.logger.Info("Exporter drained",
		zap.Uint64("exported", s.exporter.Exported()),
		zap.Uint64("dropped", s.exporter.Dropped()),
	)

	s.logger.Sync()
	return nil
}

// handleRPC is the transport adapter for the JSON-RPC endpoint: it reads
// the body, hands it to the dispatcher with the request-scoped trace
// context, and writes the response. RPC-level errors ride HTTP 200; only
// an unreadable body is a transport failure.
func (s *Server) handleRPC(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	outcome := s.dispatcher.Handle(c.Request.Context(), body)

	if outcome.SessionID != "" {
		c.Header("Mcp-Session-Id", outcome.SessionID)
	}
	if outcome.Notification {
		c.Status(http.StatusAccepted)
		return
	}
	c.Data(http.StatusOK, "application/json", outcome.Body)
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":  s.config.Service.Name,
		"version":  s.config.Service.Version,
		"protocol": rpc.ProtocolVersion,
		"endpoint": s.config.Server.Endpoint,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"tools":          s.registry.Len(),
		"spans_buffered": s.exporter.Buffered(),
		"spans_dropped":  s.exporter.Dropped(),
	})
}

func buildSink(cfg *config.Config, logger *zap.Logger) (export.Sink, error) {
	switch cfg.Export.Sink {
	case "otlp":
		return export.NewOTLPSink(cfg.Export.Endpoint, cfg.Service.Name, nil), nil
	case "langfuse":
		if cfg.Langfuse.PublicKey == "" || cfg.Langfuse.SecretKey == "" {
			return nil, fmt.Errorf("langfuse sink requires LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY")
		}
		return export.NewLangfuseSink(cfg.Langfuse.Host, cfg.Langfuse.PublicKey, cfg.Langfuse.SecretKey, cfg.Service.Name), nil
	case "log":
		return export.NewLogSink(logger), nil
	default:
		return nil, fmt.Errorf("unknown export sink: %s", cfg.Export.Sink)
	}
}
