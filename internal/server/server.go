package server

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/newrelic/go-agent/v3/integrations/nrecho-v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/dmart-io/ingestd/internal/batcher"
	"github.com/dmart-io/ingestd/internal/config"
	"github.com/dmart-io/ingestd/internal/handler"
	"github.com/dmart-io/ingestd/internal/repository"
	"github.com/dmart-io/ingestd/internal/validator"
	"github.com/dmart-io/ingestd/internal/writer"
)

// Server holds the Echo app and dependencies.
type Server struct {
	Echo   *echo.Echo
	Config *config.Config
}

// New builds the Echo server and wires the ingestion pipeline.
// Caller must provide a non-nil pool; nrApp may be nil when APM is off.
func New(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, nrApp *newrelic.Application) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover(), middleware.Logger())
	if nrApp != nil {
		e.Use(nrecho.Middleware(nrApp))
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSAllowedOrigins,
	}))

	repo := repository.NewLogRepository(pool)

	ingest := &handler.IngestHandler{
		Validator:    validator.New(cfg.Ingest),
		Assembler:    batcher.New(cfg.Ingest),
		Writer:       writer.New(repo, cfg.Ingest, logger),
		MaxBodyBytes: cfg.Ingest.MaxBodyBytes,
		Logger:       logger,
	}
	health := &handler.HealthHandler{
		Pinger:  repo,
		Timeout: cfg.Ingest.ReadyTimeoutDuration(),
	}

	api := e.Group("/api/v1")
	api.GET("/health", health.Health)
	api.GET("/ready", health.Ready)
	api.POST("/ingest", ingest.IngestSingle)
	api.POST("/ingest/batch", ingest.IngestBatch)

	return &Server{Echo: e, Config: cfg}
}

// Start starts the HTTP server. Blocks until the context is cancelled or
// the server fails. On context cancel, Shutdown drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	s.Echo.Server.ReadTimeout = time.Duration(s.Config.Server.ReadTimeout) * time.Second
	s.Echo.Server.WriteTimeout = time.Duration(s.Config.Server.WriteTimeout) * time.Second
	s.Echo.Server.IdleTimeout = time.Duration(s.Config.Server.IdleTimeout) * time.Second

	go func() {
		<-ctx.Done()
		_ = s.Shutdown(context.Background())
	}()
	addr := ":" + s.Config.Server.Port
	return s.Echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}
