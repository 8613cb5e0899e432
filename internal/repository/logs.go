package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmart-io/ingestd/internal/model"
)

var logColumns = []string{"id", "ts", "message", "level", "service", "source", "hostname", "tag", "metadata", "ingested_at"}

// LogRepository persists validated log records.
type LogRepository struct {
	pool *pgxpool.Pool
}

// NewLogRepository returns a LogRepository using the given pool.
func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

// InsertBatch writes all records inside one transaction using COPY.
// The transaction holds exactly one connection and releases it on every
// exit path; on any error nothing is committed.
func (r *LogRepository) InsertBatch(ctx context.Context, records []model.LogRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"logs"}, logColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return rowValues(records[i]), nil
		}))
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// InsertRecord writes one record in its own implicit transaction.
func (r *LogRepository) InsertRecord(ctx context.Context, rec model.LogRecord) error {
	query := `
		INSERT INTO logs (id, ts, message, level, service, source, hostname, tag, metadata, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query, rowValues(rec)...)
	return err
}

// Ping verifies a connection can be acquired; used by the readiness probe.
func (r *LogRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func rowValues(rec model.LogRecord) []any {
	var meta any
	if len(rec.Metadata) > 0 {
		meta = rec.Metadata
	}
	return []any{
		rec.ID,
		rec.Timestamp,
		rec.Message,
		rec.Level,
		nullIfEmpty(rec.Service),
		nullIfEmpty(rec.Source),
		nullIfEmpty(rec.Hostname),
		nullIfEmpty(rec.Tag),
		meta,
		rec.IngestedAt,
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
