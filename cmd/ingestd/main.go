package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dmart-io/ingestd/internal/config"
	"github.com/dmart-io/ingestd/internal/database"
	"github.com/dmart-io/ingestd/internal/observability"
	"github.com/dmart-io/ingestd/internal/server"
)

func main() {
	// .env is a dev convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability)

	ctx := context.Background()
	if err := database.RunMigrations(ctx, cfg.Database.URL()); err != nil {
		logger.Fatal().Err(err).Msg("migrations")
	}

	pool, err := database.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database pool")
	}
	defer pool.Close()

	nrApp, err := observability.NewApp(cfg.Observability)
	if err != nil {
		logger.Fatal().Err(err).Msg("new relic application")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, logger, pool, nrApp)
	logger.Info().Str("port", cfg.Server.Port).Msg("starting ingest service")
	if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}
