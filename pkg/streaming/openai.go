package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// openaiStream adapts a go-openai chat completion stream to an Iterator.
type openaiStream struct {
	stream *openai.ChatCompletionStream
	done   bool
	closed bool
}

// NewOpenAIStream returns an iterator over an SDK-native stream. Each
// response is re-encoded as a chat.completion.chunk event.
func NewOpenAIStream(stream *openai.ChatCompletionStream) Iterator {
	return &openaiStream{stream: stream}
}

func (s *openaiStream) Next(ctx context.Context) (Chunk, error) {
	if s.closed {
		return Chunk{}, ErrClosed
	}
	if s.done {
		return Chunk{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}

	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		s.done = true
		return Chunk{}, io.EOF
	}
	if err != nil {
		s.done = true
		return Chunk{}, &SourceError{Source: "openai", Message: "failed to receive chunk", Cause: err}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return Chunk{}, &SourceError{Source: "openai", Message: "failed to encode chunk", Cause: err}
	}
	return Chunk{Data: data}, nil
}

func (s *openaiStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.stream.Close()
}
