package streaming

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFromChunks_PreservesOrder(t *testing.T) {
	chunks := []Chunk{
		TextChunk("c1", "gpt-4", "one"),
		TextChunk("c1", "gpt-4", "two"),
		TextChunk("c1", "gpt-4", "three"),
	}

	got, err := Collect(context.Background(), FromChunks(chunks...))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(got) != len(chunks) {
		t.Fatalf("Collect() returned %d chunks, want %d", len(got), len(chunks))
	}
	for i := range chunks {
		if string(got[i].Data) != string(chunks[i].Data) {
			t.Errorf("chunk %d = %s, want %s", i, got[i].Data, chunks[i].Data)
		}
	}
}

func TestFromChunks_ExhaustedStaysExhausted(t *testing.T) {
	it := FromChunks(TextChunk("c1", "gpt-4", "x"))
	ctx := context.Background()

	if _, err := it.Next(ctx); err != nil {
		t.Fatalf("first Next() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := it.Next(ctx); !errors.Is(err, io.EOF) {
			t.Errorf("Next() after exhaustion error = %v, want io.EOF", err)
		}
	}
}

func TestFromChunks_CancelledContext(t *testing.T) {
	it := FromChunks(TextChunk("c1", "gpt-4", "x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := it.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}

func TestTransform(t *testing.T) {
	upper := func(_ context.Context, c Chunk) (Chunk, error) {
		s, ok := c.Content()
		if !ok {
			return c, nil
		}
		return c.WithContent(strings.ToUpper(s))
	}
	skipB := func(_ context.Context, c Chunk) (Chunk, error) {
		if s, _ := c.Content(); s == "b" {
			return c, ErrSkipChunk
		}
		return c, nil
	}

	tests := []struct {
		name  string
		input []string
		fn    TransformFunc
		want  []string
	}{
		{
			name:  "nil transform passes through",
			input: []string{"a", "b", "c"},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "uppercase",
			input: []string{"a", "b", "c"},
			fn:    upper,
			want:  []string{"A", "B", "C"},
		},
		{
			name:  "skip chunk",
			input: []string{"a", "b", "c"},
			fn:    skipB,
			want:  []string{"a", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var src []Chunk
			for _, s := range tt.input {
				src = append(src, TextChunk("id", "gpt-4", s))
			}

			got, err := Collect(context.Background(), Transform(FromChunks(src...), tt.fn, nil))
			if err != nil {
				t.Fatalf("Collect() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chunks, want %d", len(got), len(tt.want))
			}
			for i, c := range got {
				s, _ := c.Content()
				if s != tt.want[i] {
					t.Errorf("chunk %d content = %q, want %q", i, s, tt.want[i])
				}
			}
		})
	}
}

func TestTransform_Lazy(t *testing.T) {
	var calls int
	fn := func(_ context.Context, c Chunk) (Chunk, error) {
		calls++
		return c, nil
	}

	it := Transform(FromChunks(
		TextChunk("id", "m", "a"),
		TextChunk("id", "m", "b"),
		TextChunk("id", "m", "c"),
	), fn, nil)

	if calls != 0 {
		t.Fatalf("transform called %d times before Next, want 0", calls)
	}
	if _, err := it.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("transform called %d times after one Next, want 1", calls)
	}
}

func TestTransform_FinishCalledOnce(t *testing.T) {
	tests := []struct {
		name    string
		drain   bool
		wantErr error
	}{
		{name: "exhausted", drain: true, wantErr: nil},
		{name: "closed early", drain: false, wantErr: ErrClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var finished int
			var gotErr error
			it := Transform(FromChunks(TextChunk("id", "m", "a"), TextChunk("id", "m", "b")), nil,
				func(_ context.Context, err error) {
					finished++
					gotErr = err
				})

			if tt.drain {
				for {
					if _, err := it.Next(context.Background()); err != nil {
						break
					}
				}
			} else {
				if _, err := it.Next(context.Background()); err != nil {
					t.Fatalf("Next() error = %v", err)
				}
			}
			it.Close()
			it.Close()

			if finished != 1 {
				t.Errorf("finish called %d times, want 1", finished)
			}
			if !errors.Is(gotErr, tt.wantErr) {
				t.Errorf("finish err = %v, want %v", gotErr, tt.wantErr)
			}
		})
	}
}

func TestTransform_ErrorTerminates(t *testing.T) {
	boom := errors.New("boom")
	it := Transform(FromChunks(TextChunk("id", "m", "a"), TextChunk("id", "m", "b")),
		func(_ context.Context, c Chunk) (Chunk, error) { return c, boom }, nil)

	if _, err := it.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Next() error = %v, want %v", err, boom)
	}
	if _, err := it.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after error = %v, want io.EOF", err)
	}
}

func TestText(t *testing.T) {
	chunks := []Chunk{
		TextChunk("id", "m", "Hello"),
		FinishChunk("id", "m", "stop"),
		TextChunk("id", "m", ", world"),
	}
	if got := Text(chunks); got != "Hello, world" {
		t.Errorf("Text() = %q, want %q", got, "Hello, world")
	}
}
