package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"

	"github.com/dmart-io/ingestd/internal/batcher"
	"github.com/dmart-io/ingestd/internal/model"
	"github.com/dmart-io/ingestd/internal/response"
	"github.com/dmart-io/ingestd/internal/validator"
	"github.com/dmart-io/ingestd/internal/writer"
)

// Persister is the write side of the pipeline as the handler sees it.
type Persister interface {
	Persist(ctx context.Context, batch model.Batch) ([]model.Outcome, error)
}

var (
	errPayloadTooLarge = errors.New("request body too large")
	errBadEncoding     = errors.New("bad content encoding")
)

// IngestHandler drives decode -> validate -> assemble -> persist for the
// single and batch ingest endpoints. It holds no per-request state.
type IngestHandler struct {
	Validator    *validator.Validator
	Assembler    *batcher.Assembler
	Writer       Persister
	MaxBodyBytes int
	Logger       zerolog.Logger

	parsers fastjson.ParserPool
}

type batchResult struct {
	Results  []model.Outcome `json:"results"`
	Accepted int             `json:"accepted"`
	Rejected int             `json:"rejected"`
}

// IngestSingle handles POST /api/v1/ingest: one record, one verdict.
// Accepts a JSON object or the fluent-bit [timestamp, {record}] pair.
func (h *IngestHandler) IngestSingle(c echo.Context) error {
	body, err := h.readBody(c)
	if err != nil {
		return h.bodyError(c, err)
	}

	p := h.parsers.Get()
	defer h.parsers.Put(p)
	v, err := p.ParseBytes(body)
	if err != nil {
		return response.BadRequest(c, "invalid JSON body", err.Error())
	}

	raw, ok := decodeRecord(v)
	if !ok {
		return response.BadRequest(c, "expected a log record object", model.ReasonMalformed)
	}

	rec, err := h.Validator.Validate(raw, time.Now())
	if err != nil {
		var inv *validator.InvalidRecord
		if errors.As(err, &inv) {
			return response.Status(c, http.StatusBadRequest, model.Rejected(inv.Reason), "")
		}
		return response.InternalError(c, "validation failed", err.Error())
	}

	batches := h.Assembler.Assemble([]model.LogRecord{rec})
	outcomes, err := h.Writer.Persist(c.Request().Context(), batches[0])
	if errors.Is(err, writer.ErrStoreUnavailable) {
		return response.Status(c, http.StatusServiceUnavailable, outcomes[0], "")
	}
	if outcomes[0].Status == model.StatusRejected {
		return response.Status(c, http.StatusBadRequest, outcomes[0], "")
	}
	return response.Accepted(c, outcomes[0], "")
}

// IngestBatch handles POST /api/v1/ingest/batch: an array of records,
// one outcome per record in submission order. One bad record never fails
// the request; only malformed framing or transport failure does.
func (h *IngestHandler) IngestBatch(c echo.Context) error {
	body, err := h.readBody(c)
	if err != nil {
		return h.bodyError(c, err)
	}

	p := h.parsers.Get()
	defer h.parsers.Put(p)
	v, err := p.ParseBytes(body)
	if err != nil {
		return response.BadRequest(c, "invalid JSON body", err.Error())
	}
	arr, err := v.Array()
	if err != nil {
		return response.BadRequest(c, "expected an array of log records", model.ReasonMalformed)
	}

	receivedAt := time.Now()
	outcomes := make([]model.Outcome, len(arr))
	records := make([]model.LogRecord, 0, len(arr))
	positions := make([]int, 0, len(arr)) // original index of each validated record

	for i, el := range arr {
		raw, ok := decodeRecord(el)
		if !ok {
			outcomes[i] = model.Rejected(model.ReasonMalformed)
			continue
		}
		rec, err := h.Validator.Validate(raw, receivedAt)
		if err != nil {
			var inv *validator.InvalidRecord
			if errors.As(err, &inv) {
				outcomes[i] = model.Rejected(inv.Reason)
			} else {
				outcomes[i] = model.Rejected(model.ReasonMalformed)
			}
			continue
		}
		records = append(records, rec)
		positions = append(positions, i)
	}

	// Persist every sub-batch even if an earlier one lost the store; a
	// transport error is scoped to its own batch.
	cursor := 0
	for _, batch := range h.Assembler.Assemble(records) {
		batchOutcomes, err := h.Writer.Persist(c.Request().Context(), batch)
		if err != nil && !errors.Is(err, writer.ErrStoreUnavailable) {
			h.Logger.Error().Err(err).Msg("persist batch")
		}
		for _, out := range batchOutcomes {
			outcomes[positions[cursor]] = out
			cursor++
		}
	}

	accepted := 0
	unavailable := false
	for _, out := range outcomes {
		if out.Status == model.StatusAccepted {
			accepted++
		} else if out.Reason == model.ReasonStoreUnavailable {
			unavailable = true
		}
	}

	result := batchResult{Results: outcomes, Accepted: accepted, Rejected: len(outcomes) - accepted}
	status := http.StatusOK
	if accepted == 0 && len(outcomes) > 0 {
		if unavailable {
			status = http.StatusServiceUnavailable
		} else {
			status = http.StatusBadRequest
		}
	}
	return response.Status(c, status, result, "")
}

// readBody reads the request body, transparently decoding gzip (fluent-bit
// http output compresses when configured to) and enforcing the body cap on
// the decoded bytes.
func (h *IngestHandler) readBody(c echo.Context) ([]byte, error) {
	r := io.Reader(c.Request().Body)
	if strings.EqualFold(c.Request().Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errBadEncoding
		}
		defer gz.Close()
		r = gz
	}
	body, err := io.ReadAll(io.LimitReader(r, int64(h.MaxBodyBytes)+1))
	if err != nil {
		return nil, err
	}
	if len(body) > h.MaxBodyBytes {
		return nil, errPayloadTooLarge
	}
	return body, nil
}

func (h *IngestHandler) bodyError(c echo.Context, err error) error {
	if errors.Is(err, errPayloadTooLarge) {
		return response.PayloadTooLarge(c, "request body exceeds limit", model.ReasonPayloadTooLarge)
	}
	return response.BadRequest(c, "could not read request body", err.Error())
}

// decodeRecord turns one JSON value into a RawRecord. Accepts a plain
// object or the fluent-bit pair form [timestamp, {record}]; the pair's
// timestamp is folded into the field map when the record has none.
func decodeRecord(v *fastjson.Value) (model.RawRecord, bool) {
	size := len(v.MarshalTo(nil))
	switch v.Type() {
	case fastjson.TypeObject:
		fields, _ := jsonValueToGo(v).(map[string]any)
		return model.RawRecord{Fields: fields, Size: size}, true
	case fastjson.TypeArray:
		arr, _ := v.Array()
		if len(arr) != 2 || arr[1].Type() != fastjson.TypeObject {
			return model.RawRecord{}, false
		}
		fields, _ := jsonValueToGo(arr[1]).(map[string]any)
		hasTS := false
		for _, k := range []string{"@timestamp", "timestamp", "time"} {
			if _, ok := fields[k]; ok {
				hasTS = true
				break
			}
		}
		if !hasTS {
			if ts := jsonValueToGo(arr[0]); ts != nil {
				fields["timestamp"] = ts
			}
		}
		return model.RawRecord{Fields: fields, Size: size}, true
	default:
		return model.RawRecord{}, false
	}
}

func jsonValueToGo(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		o, _ := v.Object()
		m := make(map[string]any)
		o.Visit(func(key []byte, val *fastjson.Value) {
			m[string(key)] = jsonValueToGo(val)
		})
		return m
	case fastjson.TypeArray:
		arr, _ := v.Array()
		out := make([]any, 0, len(arr))
		for _, item := range arr {
			out = append(out, jsonValueToGo(item))
		}
		return out
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		return string(b)
	case fastjson.TypeNumber:
		f, _ := v.Float64()
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}
