package writer

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/dmart-io/ingestd/internal/config"
	"github.com/dmart-io/ingestd/internal/model"
)

type fakeStore struct {
	batchCalls int
	rowCalls   int
	batchErr   error
	rowErr     func(rec model.LogRecord) error
	inserted   []model.LogRecord
}

func (s *fakeStore) InsertBatch(ctx context.Context, records []model.LogRecord) error {
	s.batchCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.batchErr != nil {
		return s.batchErr
	}
	s.inserted = append(s.inserted, records...)
	return nil
}

func (s *fakeStore) InsertRecord(ctx context.Context, rec model.LogRecord) error {
	s.rowCalls++
	if s.rowErr != nil {
		if err := s.rowErr(rec); err != nil {
			return err
		}
	}
	s.inserted = append(s.inserted, rec)
	return nil
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func newCoordinator(store Store) *Coordinator {
	return New(store, &config.IngestConfig{StoreTimeout: 1}, zerolog.Nop())
}

func batchOf(msgs ...string) model.Batch {
	b := model.Batch{}
	for _, m := range msgs {
		b.Records = append(b.Records, model.LogRecord{Message: m, Size: len(m)})
	}
	return b
}

func TestPersist_BulkHappyPath(t *testing.T) {
	store := &fakeStore{}
	outcomes, err := newCoordinator(store).Persist(context.Background(), batchOf("a", "b", "c"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for i, out := range outcomes {
		if out.Status != model.StatusAccepted {
			t.Fatalf("outcome %d: expected accepted, got %+v", i, out)
		}
	}
	if store.batchCalls != 1 || store.rowCalls != 0 {
		t.Fatalf("expected exactly one bulk call, got batch=%d row=%d", store.batchCalls, store.rowCalls)
	}
}

func TestPersist_StoreUnavailable(t *testing.T) {
	store := &fakeStore{batchErr: errors.New("dial tcp 10.0.0.1:5432: connection refused")}
	outcomes, err := newCoordinator(store).Persist(context.Background(), batchOf("a", "b"))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	for i, out := range outcomes {
		if out.Status != model.StatusRejected || out.Reason != model.ReasonStoreUnavailable {
			t.Fatalf("outcome %d: expected store_unavailable rejection, got %+v", i, out)
		}
	}
	if len(store.inserted) != 0 {
		t.Fatalf("nothing should be committed, got %d rows", len(store.inserted))
	}
}

func TestPersist_ConstraintFallbackIsolatesBadRow(t *testing.T) {
	store := &fakeStore{
		batchErr: uniqueViolation(),
		rowErr: func(rec model.LogRecord) error {
			if rec.Message == "dup" {
				return uniqueViolation()
			}
			return nil
		},
	}
	outcomes, err := newCoordinator(store).Persist(context.Background(), batchOf("a", "dup", "b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []model.Outcome{model.Accepted(), model.Rejected(model.ReasonConstraintViolation), model.Accepted()}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Fatalf("outcome %d: expected %+v, got %+v", i, want[i], outcomes[i])
		}
	}
	if store.rowCalls != 3 {
		t.Fatalf("expected 3 row attempts, got %d", store.rowCalls)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("expected 2 committed rows, got %d", len(store.inserted))
	}
}

func TestPersist_TransportLossDuringFallback(t *testing.T) {
	store := &fakeStore{
		batchErr: uniqueViolation(),
		rowErr: func(rec model.LogRecord) error {
			if rec.Message == "b" {
				return errors.New("connection reset by peer")
			}
			return nil
		},
	}
	outcomes, err := newCoordinator(store).Persist(context.Background(), batchOf("a", "b", "c"))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	want := []model.Outcome{
		model.Accepted(),
		model.Rejected(model.ReasonStoreUnavailable),
		model.Rejected(model.ReasonStoreUnavailable),
	}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Fatalf("outcome %d: expected %+v, got %+v", i, want[i], outcomes[i])
		}
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected only the first row committed, got %d", len(store.inserted))
	}
}

func TestPersist_ClientCancelDoesNotAbortWrite(t *testing.T) {
	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // client already gone

	outcomes, err := newCoordinator(store).Persist(ctx, batchOf("a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcomes[0].Status != model.StatusAccepted {
		t.Fatalf("expected accepted despite cancelled request context, got %+v", outcomes[0])
	}
}

func TestPersist_EmptyBatch(t *testing.T) {
	store := &fakeStore{}
	outcomes, err := newCoordinator(store).Persist(context.Background(), model.Batch{})
	if err != nil || outcomes != nil {
		t.Fatalf("expected nil/nil for empty batch, got %v / %v", outcomes, err)
	}
	if store.batchCalls != 0 {
		t.Fatalf("store should not be touched for empty batch")
	}
}
