package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore serves records parsed from a YAML policy file. The file is read
// by NewFileStore and again on every Reload; Get never touches the disk.
type FileStore struct {
	path string

	mu      sync.RWMutex
	records map[string]Record
}

// fileDocument is the on-disk layout.
type fileDocument struct {
	Policies []fileRecord `yaml:"policies"`
}

// fileRecord lets "active" default to true when omitted.
type fileRecord struct {
	Name        string         `yaml:"name"`
	Type        string         `yaml:"type"`
	Config      map[string]any `yaml:"config"`
	Active      *bool          `yaml:"active"`
	Description string         `yaml:"description"`
}

// NewFileStore reads path and returns a store over its records.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the policy file path.
func (s *FileStore) Path() string {
	return s.path
}

// Reload re-reads the file. On error the previous records stay in place.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read policy file %q: %w", s.path, err)
	}

	records, err := ParseYAML(data)
	if err != nil {
		return fmt.Errorf("policy file %q: %w", s.path, err)
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

// Get returns the named record.
func (s *FileStore) Get(_ context.Context, name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &r, nil
}

// List returns every record sorted by name.
func (s *FileStore) List(context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedRecords(s.records), nil
}

// ParseYAML decodes a policy document. Names must be unique.
func ParseYAML(data []byte) (map[string]Record, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policies: %w", err)
	}

	records := make(map[string]Record, len(doc.Policies))
	for i, fr := range doc.Policies {
		rec := Record{
			Name:        fr.Name,
			Type:        fr.Type,
			Config:      fr.Config,
			Active:      fr.Active == nil || *fr.Active,
			Description: fr.Description,
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("policies[%d]: %w", i, err)
		}
		if _, dup := records[rec.Name]; dup {
			return nil, fmt.Errorf("policies[%d]: duplicate policy name %q", i, rec.Name)
		}
		records[rec.Name] = rec
	}
	return records, nil
}
