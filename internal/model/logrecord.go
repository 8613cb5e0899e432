package model

import (
	"time"

	"github.com/google/uuid"
)

// RawRecord is one log record as decoded from the wire, before validation.
// Fields holds the top-level keys of the submitted object; the fluent-bit
// pair form [timestamp, {record}] is flattened into Fields by the decoder.
// Size is the byte length of the record as it was received.
type RawRecord struct {
	Fields map[string]any
	Size   int
}

// LogRecord is a validated, normalized record ready for insertion.
// Owned by the request that produced it; never shared across requests.
type LogRecord struct {
	ID         uuid.UUID
	Timestamp  time.Time
	Message    string
	Level      string // normalized to lowercase, defaults to "info"
	Service    string
	Source     string
	Hostname   string
	Tag        string
	Metadata   map[string]any
	Size       int
	IngestedAt time.Time
}

// Batch is a size-bounded, order-preserving group of validated records
// written in one transactional attempt. Consumed exactly once.
type Batch struct {
	Records []LogRecord
	Bytes   int
}

// Outcome statuses.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Rejection reasons reported to callers.
const (
	ReasonEmptyMessage        = "empty_message"
	ReasonTooLarge            = "too_large"
	ReasonUnknownField        = "unknown_field"
	ReasonStoreUnavailable    = "store_unavailable"
	ReasonConstraintViolation = "constraint_violation"
	ReasonPayloadTooLarge     = "payload_too_large"
	ReasonMalformed           = "malformed"
)

// Outcome is the per-record accept/reject verdict, positionally aligned
// with the submitted records.
type Outcome struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Accepted returns an accepted outcome.
func Accepted() Outcome { return Outcome{Status: StatusAccepted} }

// Rejected returns a rejected outcome with the given reason.
func Rejected(reason string) Outcome { return Outcome{Status: StatusRejected, Reason: reason} }
