// Package batcher groups validated records into bounded write units.
// Bounding batch size bounds transaction duration and the memory held
// per write, which bounds worst-case latency under concurrent load.
package batcher

import (
	"github.com/dmart-io/ingestd/internal/config"
	"github.com/dmart-io/ingestd/internal/model"
)

// Assembler splits validated record sequences into batches that satisfy
// the size invariants: 1 <= len <= maxBatchSize and total bytes under
// maxBatchBytes. Records are never reordered and never span two batches.
type Assembler struct {
	maxBatchSize  int
	maxBatchBytes int
}

// New builds an Assembler from the ingest limits.
func New(cfg *config.IngestConfig) *Assembler {
	return &Assembler{
		maxBatchSize:  cfg.MaxBatchSize,
		maxBatchBytes: cfg.MaxBatchBytes,
	}
}

// Assemble splits records into one or more batches. The input must be
// already validated; an empty input yields no batches. A record larger
// than maxBatchBytes still gets a batch of its own (the validator's
// per-record ceiling is configured below the batch ceiling).
func (a *Assembler) Assemble(records []model.LogRecord) []model.Batch {
	if len(records) == 0 {
		return nil
	}

	batches := make([]model.Batch, 0, len(records)/a.maxBatchSize+1)
	var cur model.Batch
	for _, rec := range records {
		full := len(cur.Records) >= a.maxBatchSize ||
			(len(cur.Records) > 0 && cur.Bytes+rec.Size > a.maxBatchBytes)
		if full {
			batches = append(batches, cur)
			cur = model.Batch{}
		}
		cur.Records = append(cur.Records, rec)
		cur.Bytes += rec.Size
	}
	return append(batches, cur)
}
