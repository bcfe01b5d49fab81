package streaming

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Iterator is a lazy, finite, single-pass source of chunks.
//
// Next returns the next chunk, io.EOF once the source is exhausted, or any
// other error if producing the chunk failed. After io.EOF or an error, the
// iterator is spent and further calls return io.EOF. Close releases the
// upstream source and may be called at any point, including before
// exhaustion. Iterators are not safe for concurrent use.
type Iterator interface {
	Next(ctx context.Context) (Chunk, error)
	Close() error
}

// FromChunks returns an iterator over a fixed sequence of chunks.
func FromChunks(chunks ...Chunk) Iterator {
	return &sliceIterator{chunks: chunks}
}

type sliceIterator struct {
	chunks []Chunk
	pos    int
	closed bool
}

func (s *sliceIterator) Next(ctx context.Context) (Chunk, error) {
	if s.closed {
		return Chunk{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if s.pos >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *sliceIterator) Close() error {
	s.closed = true
	return nil
}

// TransformFunc rewrites one chunk. Returning ErrSkipChunk drops the chunk;
// any other error terminates the stream.
type TransformFunc func(ctx context.Context, c Chunk) (Chunk, error)

// FinishFunc observes the end of a stream exactly once. err is nil when the
// upstream was exhausted normally, ErrClosed when the consumer stopped early,
// and the terminating error otherwise.
type FinishFunc func(ctx context.Context, err error)

// Transform wraps src in an iterator that applies fn to every chunk as it is
// pulled. Either fn or finish may be nil. Closing the returned iterator closes
// src.
func Transform(src Iterator, fn TransformFunc, finish FinishFunc) Iterator {
	return &transformIterator{src: src, fn: fn, finish: finish}
}

type transformIterator struct {
	src    Iterator
	fn     TransformFunc
	finish FinishFunc
	done   bool
}

func (t *transformIterator) Next(ctx context.Context) (Chunk, error) {
	if t.done {
		return Chunk{}, io.EOF
	}

	for {
		c, err := t.src.Next(ctx)
		if err != nil {
			t.done = true
			if errors.Is(err, io.EOF) {
				t.end(ctx, nil)
				return Chunk{}, io.EOF
			}
			t.end(ctx, err)
			return Chunk{}, err
		}

		if t.fn == nil {
			return c, nil
		}

		out, err := t.fn(ctx, c)
		if errors.Is(err, ErrSkipChunk) {
			continue
		}
		if err != nil {
			t.done = true
			t.end(ctx, err)
			return Chunk{}, err
		}
		return out, nil
	}
}

func (t *transformIterator) Close() error {
	if !t.done {
		t.done = true
		t.end(context.Background(), ErrClosed)
	}
	return t.src.Close()
}

func (t *transformIterator) end(ctx context.Context, err error) {
	if t.finish != nil {
		t.finish(ctx, err)
		t.finish = nil
	}
}

// Collect drains it into a slice and closes it. This is the explicit opt-in
// for callers that need the complete response before acting.
func Collect(ctx context.Context, it Iterator) ([]Chunk, error) {
	defer it.Close()

	var chunks []Chunk
	for {
		c, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, c)
	}
}

// Text concatenates the delta content of chunks in order.
func Text(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		if s, ok := c.Content(); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}
