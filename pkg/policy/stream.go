package policy

import (
	"context"

	"mercator-hq/luthien/pkg/streaming"
	"mercator-hq/luthien/pkg/transaction"
)

// ChunkProcessor is implemented by policies that rewrite streamed chunks.
// Returning streaming.ErrSkipChunk drops the chunk; any other error ends the
// stream and is reported to the client as an error event.
type ChunkProcessor interface {
	ProcessChunk(ctx context.Context, c streaming.Chunk, tx *transaction.Transaction) (streaming.Chunk, error)
}

// StreamFinisher is implemented by policies that observe the end of a
// stream. err follows streaming.FinishFunc: nil on normal exhaustion,
// streaming.ErrClosed when the client went away, the failure otherwise.
type StreamFinisher interface {
	FinishStream(ctx context.Context, tx *transaction.Transaction, err error)
}

// WrapStream layers p's stream hooks over tx's response iterator. It reports
// false, leaving tx alone, when tx is not streaming or p has no hooks.
func WrapStream(tx *transaction.Transaction, p any) bool {
	if !tx.IsStreaming() {
		return false
	}

	processor, hasChunk := p.(ChunkProcessor)
	finisher, hasFinish := p.(StreamFinisher)
	if !hasChunk && !hasFinish {
		return false
	}

	var fn streaming.TransformFunc
	if hasChunk {
		fn = func(ctx context.Context, c streaming.Chunk) (streaming.Chunk, error) {
			return processor.ProcessChunk(ctx, c, tx)
		}
	}

	var finish streaming.FinishFunc
	if hasFinish {
		finish = func(ctx context.Context, err error) {
			finisher.FinishStream(ctx, tx, err)
		}
	}

	tx.Response.Stream = streaming.Transform(tx.Response.Stream, fn, finish)
	return true
}
