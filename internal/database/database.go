package database

import (
	"context"
	"fmt"
	"time"

	pgxzero "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/multitracer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/rs/zerolog"

	"github.com/dmart-io/ingestd/internal/config"
)

// NewPool builds the pgx connection pool from config. Queries are traced
// through zerolog and, when APM is enabled, through the New Relic tracer.
// Caller must Close the pool.
func NewPool(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.Database.URL())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pc.MaxConns = int32(cfg.Database.MaxConns)
	pc.MinConns = int32(cfg.Database.MinConns)
	pc.MaxConnLifetime = time.Duration(cfg.Database.ConnMaxLifetime) * time.Second
	pc.MaxConnIdleTime = time.Duration(cfg.Database.ConnMaxIdleTime) * time.Second

	tracers := []pgx.QueryTracer{
		&tracelog.TraceLog{
			Logger:   pgxzero.NewLogger(logger),
			LogLevel: tracelog.LogLevelWarn,
		},
	}
	if cfg.Observability != nil && cfg.Observability.Enabled {
		tracers = append(tracers, nrpgx5.NewTracer())
	}
	pc.ConnConfig.Tracer = multitracer.New(tracers...)

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
