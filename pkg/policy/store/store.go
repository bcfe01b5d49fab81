package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get when no record has the requested name.
var ErrNotFound = errors.New("policy configuration not found")

// Record is one persisted policy configuration.
type Record struct {
	Name        string         `yaml:"name" json:"name"`
	Type        string         `yaml:"type" json:"type"`
	Config      map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
	Active      bool           `yaml:"active" json:"active"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
}

// Validate checks the fields every store requires.
func (r Record) Validate() error {
	if r.Name == "" {
		return errors.New("policy configuration has no name")
	}
	if r.Type == "" {
		return fmt.Errorf("policy configuration %q has no type", r.Name)
	}
	return nil
}

// Store fetches policy configurations by name. Get returns inactive records
// too; deciding what inactive means is up to the caller.
type Store interface {
	Get(ctx context.Context, name string) (*Record, error)
}

// Lister is implemented by stores that can enumerate their records.
type Lister interface {
	List(ctx context.Context) ([]Record, error)
}

// Writer is implemented by stores that accept updates.
type Writer interface {
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, name string) error
}

// MemoryStore keeps records in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore returns a store holding records. Later records replace
// earlier ones with the same name.
func NewMemoryStore(records ...Record) *MemoryStore {
	m := &MemoryStore{records: make(map[string]Record, len(records))}
	for _, r := range records {
		m.records[r.Name] = r
	}
	return m
}

// Get returns a copy of the named record.
func (m *MemoryStore) Get(_ context.Context, name string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &r, nil
}

// List returns every record sorted by name.
func (m *MemoryStore) List(context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedRecords(m.records), nil
}

// Put stores rec, replacing any record with the same name.
func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Name] = rec
	return nil
}

// Delete removes the named record. Deleting a missing record is not an error.
func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

func sortedRecords(records map[string]Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
