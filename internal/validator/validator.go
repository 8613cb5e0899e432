// Package validator normalizes raw log records into insertable rows.
// Validation is pure: no I/O, deterministic given the same input and
// receipt time. A failure is local to one record and never aborts
// siblings in the same request.
package validator

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmart-io/ingestd/internal/config"
	"github.com/dmart-io/ingestd/internal/model"
)

// InvalidRecord reports why a single record failed validation.
type InvalidRecord struct {
	Reason string
}

func (e *InvalidRecord) Error() string { return "invalid record: " + e.Reason }

// Field aliases follow fluent-bit output conventions.
var (
	messageKeys   = []string{"log", "message", "msg"}
	timestampKeys = []string{"@timestamp", "timestamp", "time"}
	levelKeys     = []string{"level", "severity"}
	sourceKeys    = []string{"source", "_source"}
	serviceKeys   = []string{"service", "service_name"}
	hostnameKeys  = []string{"hostname", "host"}
	tagKeys       = []string{"tag", "fluent_tag"}
)

var allowedFields = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, group := range [][]string{
		messageKeys, timestampKeys, levelKeys, sourceKeys, serviceKeys, hostnameKeys, tagKeys,
		{"id", "metadata"},
	} {
		for _, k := range group {
			set[k] = struct{}{}
		}
	}
	return set
}()

// Validator checks raw records against the accepted schema.
type Validator struct {
	maxRecordBytes int
	rejectUnknown  bool
}

// New builds a Validator from the ingest limits.
func New(cfg *config.IngestConfig) *Validator {
	return &Validator{
		maxRecordBytes: cfg.MaxRecordBytes,
		rejectUnknown:  cfg.UnknownFields == config.UnknownFieldsReject,
	}
}

// Validate normalizes one raw record. Checks run in a fixed order:
// message present and non-empty, raw size under the per-record ceiling,
// timestamp parseable (else defaulted to receivedAt), field set within
// the allow-list (unknown fields dropped or rejected per config).
func (v *Validator) Validate(raw model.RawRecord, receivedAt time.Time) (model.LogRecord, error) {
	msg := firstString(raw.Fields, messageKeys)
	if msg == "" {
		return model.LogRecord{}, &InvalidRecord{Reason: model.ReasonEmptyMessage}
	}

	if raw.Size > v.maxRecordBytes {
		return model.LogRecord{}, &InvalidRecord{Reason: model.ReasonTooLarge}
	}

	ts := receivedAt
	for _, k := range timestampKeys {
		if val, ok := raw.Fields[k]; ok {
			if parsed, ok := parseTimestamp(val); ok {
				ts = parsed
			}
			break
		}
	}

	var metadata map[string]any
	if m, ok := raw.Fields["metadata"].(map[string]any); ok && len(m) > 0 {
		metadata = m
	}
	for k := range raw.Fields {
		if _, ok := allowedFields[k]; !ok {
			if v.rejectUnknown {
				return model.LogRecord{}, &InvalidRecord{Reason: model.ReasonUnknownField}
			}
			// drop policy: unknown fields are simply not carried over
		}
	}

	id := uuid.New()
	if s, ok := raw.Fields["id"].(string); ok {
		if parsed, err := uuid.Parse(s); err == nil {
			id = parsed
		}
	}

	level := strings.ToLower(firstString(raw.Fields, levelKeys))
	if level == "" {
		level = "info"
	}

	return model.LogRecord{
		ID:         id,
		Timestamp:  ts.UTC(),
		Message:    msg,
		Level:      level,
		Service:    firstString(raw.Fields, serviceKeys),
		Source:     firstString(raw.Fields, sourceKeys),
		Hostname:   firstString(raw.Fields, hostnameKeys),
		Tag:        firstString(raw.Fields, tagKeys),
		Metadata:   metadata,
		Size:       raw.Size,
		IngestedAt: receivedAt.UTC(),
	}, nil
}

func firstString(fields map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// parseTimestamp accepts unix seconds (fractional allowed) and the common
// string encodings fluent-bit emits. ok is false when unparseable; the
// caller then falls back to receipt time.
func parseTimestamp(val any) (time.Time, bool) {
	switch t := val.(type) {
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		sec := int64(t)
		nsec := int64((t - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), true
	case int64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.Unix(t, 0).UTC(), true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
