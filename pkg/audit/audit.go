package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Outcomes recorded in Entry.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeAborted = "aborted"
)

// Entry summarizes one transaction.
type Entry struct {
	TransactionID string
	Principal     string
	Model         string
	Streaming     bool
	Status        int

	// Chunks is the number of stream chunks delivered. Zero for buffered calls.
	Chunks int

	Outcome  string
	Error    string
	Duration time.Duration

	// RecordedAt is set by the sink when zero.
	RecordedAt time.Time
}

// Sink persists entries.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// Pruner is implemented by sinks that can delete old entries.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Filter selects entries in Query. Zero fields match everything.
type Filter struct {
	Principal string
	Since     time.Time
	Limit     int
}

// StorageError represents a failure of a sink's backend.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("audit storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// MemorySink keeps entries in memory.
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends e.
func (m *MemorySink) Record(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

// Query returns matching entries, newest first.
func (m *MemorySink) Query(_ context.Context, f Filter) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if f.Principal != "" && e.Principal != f.Principal {
			continue
		}
		if !f.Since.IsZero() && e.RecordedAt.Before(f.Since) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Entries returns every entry in recording order.
func (m *MemorySink) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries...)
}

// Prune deletes entries recorded before the cutoff.
func (m *MemorySink) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	var deleted int64
	for _, e := range m.entries {
		if e.RecordedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return deleted, nil
}
