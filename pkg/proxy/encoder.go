package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/proxy/types"
	"mercator-hq/luthien/pkg/streaming"
	"mercator-hq/luthien/pkg/telemetry/logging"
	"mercator-hq/luthien/pkg/telemetry/metrics"
	"mercator-hq/luthien/pkg/transaction"
)

// ErrNoResponse means a policy chain finished without attaching a response.
var ErrNoResponse = errors.New("transaction has no response")

// Stream error kinds, used as the metrics label.
const (
	StreamErrorSource     = "source"
	StreamErrorDisconnect = "client_disconnect"
	StreamErrorWrite      = "write"
)

var (
	frameDone   = []byte("data: " + streaming.DoneMarker + "\n\n")
	framePrefix = []byte("data: ")
)

// WriteBuffered writes a complete response. The backend's headers are kept
// except hop-by-hop ones and headers the proxy already set.
func WriteBuffered(w http.ResponseWriter, tx *transaction.Transaction) error {
	resp := tx.Response
	if resp == nil || resp.Body == nil {
		return ErrNoResponse
	}

	h := w.Header()
	for k, vs := range transaction.ForwardHeader(resp.Header) {
		if _, set := h[k]; !set {
			h[k] = vs
		}
	}
	h.Del("Content-Encoding")
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := w.Write(resp.Body)
	return err
}

// StreamResult summarizes one streamed response.
type StreamResult struct {
	// Chunks is the number of frames written, excluding the terminator.
	Chunks int

	// Err is the error that ended the stream early, if any.
	Err error

	// Disconnected is true when the client went away before the end.
	Disconnected bool
}

// StreamEncoder writes a transaction's iterator as Server-Sent Events.
type StreamEncoder struct {
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewStreamEncoder returns an encoder. Both arguments may be nil.
func NewStreamEncoder(logger *slog.Logger, m *metrics.Collector) *StreamEncoder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &StreamEncoder{logger: logger, metrics: m}
}

// Encode pulls chunks until the iterator is exhausted, fails, or ctx is done.
// Each chunk is flushed as its own frame. A pull error becomes one error frame
// followed by the terminator. The iterator is always closed.
func (e *StreamEncoder) Encode(ctx context.Context, w http.ResponseWriter, tx *transaction.Transaction) StreamResult {
	it := tx.Response.Stream
	defer it.Close()

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Del("Content-Length")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	var res StreamResult
	for {
		if err := ctx.Err(); err != nil {
			return e.disconnected(ctx, tx, res, err)
		}

		c, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			if werr := e.write(w, rc, frameDone); werr != nil {
				return e.writeFailed(ctx, tx, res, werr)
			}
			return res
		}
		if err != nil {
			if ctx.Err() != nil {
				return e.disconnected(ctx, tx, res, err)
			}
			return e.failed(ctx, w, rc, tx, res, err)
		}

		if err := e.write(w, rc, frame(c.Data)); err != nil {
			return e.writeFailed(ctx, tx, res, err)
		}
		res.Chunks++
		e.metrics.RecordStreamChunk()
	}
}

// frame encodes data as one event, with a data line per line of data.
func frame(data []byte) []byte {
	var buf bytes.Buffer
	for line := range bytes.SplitSeq(data, []byte("\n")) {
		buf.Write(framePrefix)
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

func (e *StreamEncoder) write(w http.ResponseWriter, rc *http.ResponseController, parts ...[]byte) error {
	for _, p := range parts {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return rc.Flush()
}

// failed reports a mid-stream error to the client as an error event.
func (e *StreamEncoder) failed(ctx context.Context, w http.ResponseWriter, rc *http.ResponseController, tx *transaction.Transaction, res StreamResult, err error) StreamResult {
	res.Err = err
	e.metrics.RecordStreamError(StreamErrorSource)

	resp := types.NewErrorResponse(http.StatusBadGateway, "error while streaming response", types.CodeStreamError, "")
	if perr, ok := policy.AsError(err); ok {
		_, resp = PolicyErrorResponse(perr)
	}
	e.logger.ErrorContext(ctx, "stream failed",
		"transaction_id", tx.ID,
		"chunks_sent", res.Chunks,
		"error", err,
	)

	data, merr := json.Marshal(resp)
	if merr != nil {
		return res
	}
	if werr := e.write(w, rc, frame(data), frameDone); werr != nil {
		res.Disconnected = true
	}
	return res
}

func (e *StreamEncoder) disconnected(ctx context.Context, tx *transaction.Transaction, res StreamResult, err error) StreamResult {
	res.Err = err
	res.Disconnected = true
	e.metrics.RecordStreamError(StreamErrorDisconnect)
	e.logger.WarnContext(ctx, "client disconnected during streaming",
		"transaction_id", tx.ID,
		"chunks_sent", res.Chunks,
	)
	return res
}

func (e *StreamEncoder) writeFailed(ctx context.Context, tx *transaction.Transaction, res StreamResult, err error) StreamResult {
	res.Err = err
	res.Disconnected = true
	e.metrics.RecordStreamError(StreamErrorWrite)
	e.logger.WarnContext(ctx, "failed to write stream frame",
		"transaction_id", tx.ID,
		"chunks_sent", res.Chunks,
		"error", err,
	)
	return res
}
