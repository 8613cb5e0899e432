package config

import (
	"fmt"
	"time"
)

// Unknown-field policies for the record validator.
const (
	UnknownFieldsDrop   = "drop"
	UnknownFieldsReject = "reject"
)

// IngestConfig bounds the ingestion pipeline. All byte/record caps apply
// per request; store_timeout and ready_timeout are seconds.
type IngestConfig struct {
	MaxRecordBytes int    `koanf:"max_record_bytes"`
	MaxBatchSize   int    `koanf:"max_batch_size"`
	MaxBatchBytes  int    `koanf:"max_batch_bytes"`
	MaxBodyBytes   int    `koanf:"max_body_bytes"`
	UnknownFields  string `koanf:"unknown_fields"`
	StoreTimeout   int    `koanf:"store_timeout"`
	ReadyTimeout   int    `koanf:"ready_timeout"`
}

// DefaultIngestConfig returns the limits used when no env overrides are set.
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		MaxRecordBytes: 64 << 10,
		MaxBatchSize:   500,
		MaxBatchBytes:  1 << 20,
		MaxBodyBytes:   8 << 20,
		UnknownFields:  UnknownFieldsDrop,
		StoreTimeout:   10,
		ReadyTimeout:   2,
	}
}

// applyDefaults fills zero-valued fields so partial env overrides work.
func (c *IngestConfig) applyDefaults() {
	d := DefaultIngestConfig()
	if c.MaxRecordBytes == 0 {
		c.MaxRecordBytes = d.MaxRecordBytes
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	if c.MaxBatchBytes == 0 {
		c.MaxBatchBytes = d.MaxBatchBytes
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.UnknownFields == "" {
		c.UnknownFields = d.UnknownFields
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = d.ReadyTimeout
	}
}

// Validate checks cross-field invariants the batcher and validator rely on.
func (c *IngestConfig) Validate() error {
	if c.UnknownFields != UnknownFieldsDrop && c.UnknownFields != UnknownFieldsReject {
		return fmt.Errorf("unknown_fields must be %q or %q, got %q", UnknownFieldsDrop, UnknownFieldsReject, c.UnknownFields)
	}
	if c.MaxRecordBytes > c.MaxBatchBytes {
		return fmt.Errorf("max_record_bytes (%d) must not exceed max_batch_bytes (%d)", c.MaxRecordBytes, c.MaxBatchBytes)
	}
	if c.MaxBatchBytes > c.MaxBodyBytes {
		return fmt.Errorf("max_batch_bytes (%d) must not exceed max_body_bytes (%d)", c.MaxBatchBytes, c.MaxBodyBytes)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be at least 1, got %d", c.MaxBatchSize)
	}
	return nil
}

// StoreTimeoutDuration returns the per-batch store timeout.
func (c *IngestConfig) StoreTimeoutDuration() time.Duration {
	return time.Duration(c.StoreTimeout) * time.Second
}

// ReadyTimeoutDuration returns the readiness probe timeout.
func (c *IngestConfig) ReadyTimeoutDuration() time.Duration {
	return time.Duration(c.ReadyTimeout) * time.Second
}
