package streaming

import (
	"errors"
	"fmt"
)

// ErrSkipChunk is returned by a TransformFunc to drop the current chunk from
// the stream. The wrapper moves on to the next upstream chunk.
var ErrSkipChunk = errors.New("skip chunk")

// ErrClosed is returned by Next after Close has been called.
var ErrClosed = errors.New("iterator closed")

// SourceError represents a failure reading from the upstream source.
type SourceError struct {
	// Source names the upstream kind ("sse", "openai").
	Source string

	// Message describes what failed.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s stream: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s stream: %s", e.Source, e.Message)
}

// Unwrap returns the underlying cause.
func (e *SourceError) Unwrap() error {
	return e.Cause
}

// ChunkError represents a chunk whose payload could not be interpreted.
type ChunkError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ChunkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("chunk: %s: %v", e.Message, e.Cause)
	}
	return "chunk: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *ChunkError) Unwrap() error {
	return e.Cause
}
