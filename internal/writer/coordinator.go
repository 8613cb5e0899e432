// Package writer owns the transactional boundary per batch: one bulk
// insert attempt, then a row-by-row fallback that isolates offending
// rows without failing the whole batch.
package writer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/dmart-io/ingestd/internal/config"
	"github.com/dmart-io/ingestd/internal/model"
)

// ErrStoreUnavailable is returned when the store cannot be reached; the
// caller is expected to retry the whole batch.
var ErrStoreUnavailable = errors.New("store unavailable")

// Store is the narrow persistence surface the coordinator needs. The
// repository implements it against Postgres; tests use an in-memory fake.
type Store interface {
	InsertBatch(ctx context.Context, records []model.LogRecord) error
	InsertRecord(ctx context.Context, rec model.LogRecord) error
}

// Coordinator turns a batch into per-record outcomes, in input order.
type Coordinator struct {
	store   Store
	timeout time.Duration
	logger  zerolog.Logger
}

// New builds a Coordinator writing through store with the configured
// per-operation timeout.
func New(store Store, cfg *config.IngestConfig, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		timeout: cfg.StoreTimeoutDuration(),
		logger:  logger,
	}
}

// Persist writes one batch and reports one outcome per record, same
// order. The common case is a single bulk transaction; when that fails
// on a constraint, the batch is rolled back and retried row by row so
// only offending rows are rejected. Transport failures reject every
// remaining record with store_unavailable and return ErrStoreUnavailable.
func (c *Coordinator) Persist(ctx context.Context, batch model.Batch) ([]model.Outcome, error) {
	if len(batch.Records) == 0 {
		return nil, nil
	}

	// Detached from client cancellation: a disconnect must not abort an
	// in-flight transaction. The store timeout still bounds every attempt.
	ctx = context.WithoutCancel(ctx)

	bctx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.store.InsertBatch(bctx, batch.Records)
	cancel()
	if err == nil {
		outcomes := make([]model.Outcome, len(batch.Records))
		for i := range outcomes {
			outcomes[i] = model.Accepted()
		}
		return outcomes, nil
	}

	if !isConstraintErr(err) {
		c.logger.Warn().Err(err).Int("records", len(batch.Records)).Msg("bulk insert failed, store unavailable")
		return rejectAll(len(batch.Records), model.ReasonStoreUnavailable), ErrStoreUnavailable
	}

	c.logger.Debug().Err(err).Int("records", len(batch.Records)).Msg("bulk insert hit constraint, retrying row by row")
	outcomes := make([]model.Outcome, len(batch.Records))
	for i, rec := range batch.Records {
		rctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.store.InsertRecord(rctx, rec)
		cancel()
		switch {
		case err == nil:
			outcomes[i] = model.Accepted()
		case isConstraintErr(err):
			c.logger.Debug().Err(err).Stringer("id", rec.ID).Msg("record rejected by constraint")
			outcomes[i] = model.Rejected(model.ReasonConstraintViolation)
		default:
			c.logger.Warn().Err(err).Int("remaining", len(batch.Records)-i).Msg("store lost during row fallback")
			for j := i; j < len(outcomes); j++ {
				outcomes[j] = model.Rejected(model.ReasonStoreUnavailable)
			}
			return outcomes, ErrStoreUnavailable
		}
	}
	return outcomes, nil
}

func rejectAll(n int, reason string) []model.Outcome {
	outcomes := make([]model.Outcome, n)
	for i := range outcomes {
		outcomes[i] = model.Rejected(reason)
	}
	return outcomes
}

// isConstraintErr reports whether err is a per-row data problem (integrity
// constraint or data exception) rather than a transport fault. Class 23
// covers unique/check/foreign-key violations, class 22 bad data values.
func isConstraintErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23") || strings.HasPrefix(pgErr.Code, "22")
	}
	return false
}
