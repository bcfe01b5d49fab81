package streaming

import (
	"bufio"
	"bytes"
	"context"
	"io"
)

const (
	// DoneMarker is the payload of the event that terminates an SSE stream.
	DoneMarker = "[DONE]"

	maxEventSize = 1 << 20
)

var dataPrefix = []byte("data:")

// sseReader reads Server-Sent Events from a backend response body.
type sseReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	data    []byte
	pending bool
	done    bool
	closed  bool
}

// NewSSEReader returns an iterator over the data events of an SSE body.
// The data lines of an event are joined with newlines and the event ends at
// a blank line or at the end of the body. Comment lines and non-data fields
// are skipped; the "data: [DONE]" event ends the stream. The body is closed
// by Close.
//
// Cancellation relies on the body honouring the request context, which is the
// case for bodies returned by net/http for a request built with that context.
func NewSSEReader(body io.ReadCloser) Iterator {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &sseReader{body: body, scanner: scanner}
}

func (r *sseReader) Next(ctx context.Context) (Chunk, error) {
	if r.closed {
		return Chunk{}, ErrClosed
	}
	if r.done {
		return Chunk{}, io.EOF
	}

	for {
		if err := ctx.Err(); err != nil {
			return Chunk{}, err
		}

		if !r.scanner.Scan() {
			r.done = true
			if err := r.scanner.Err(); err != nil {
				return Chunk{}, &SourceError{Source: "sse", Message: "failed to read stream", Cause: err}
			}
			if r.pending {
				return r.dispatch()
			}
			return Chunk{}, io.EOF
		}

		line := r.scanner.Bytes()
		if len(line) == 0 {
			if !r.pending {
				continue
			}
			return r.dispatch()
		}
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}

		data := bytes.TrimPrefix(line, dataPrefix)
		data = bytes.TrimPrefix(data, []byte(" "))
		if r.pending {
			r.data = append(r.data, '\n')
		}
		r.data = append(r.data, data...)
		r.pending = true
	}
}

// dispatch emits the buffered event and resets the buffer.
func (r *sseReader) dispatch() (Chunk, error) {
	data := bytes.Clone(r.data)
	r.data = r.data[:0]
	r.pending = false

	if string(data) == DoneMarker {
		r.done = true
		return Chunk{}, io.EOF
	}
	return Chunk{Data: data}, nil
}

func (r *sseReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.body.Close()
}
