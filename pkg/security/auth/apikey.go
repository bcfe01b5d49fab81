package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/luthien/pkg/config"
)

// StaticLookup validates keys against a fixed set held in memory. Keys are
// indexed by hash.
type StaticLookup struct {
	mu   sync.RWMutex
	keys map[string]KeyInfo
}

// NewStaticLookup creates a lookup with the given configured keys.
func NewStaticLookup(keys []config.APIKeyConfig) *StaticLookup {
	s := &StaticLookup{keys: make(map[string]KeyInfo, len(keys))}
	now := time.Now()
	for _, k := range keys {
		s.keys[HashKey(k.Key)] = KeyInfo{
			Hash:      HashKey(k.Key),
			Principal: k.Principal,
			Name:      k.Name,
			Disabled:  k.Disabled,
			CreatedAt: now,
		}
	}
	return s
}

// Lookup returns the principal owning key.
func (s *StaticLookup) Lookup(ctx context.Context, key string) (*Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	info, ok := s.keys[HashKey(key)]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidKey
	}
	if info.Disabled {
		return nil, ErrKeyDisabled
	}
	return &Principal{ID: info.Principal, Name: info.Name, CreatedAt: info.CreatedAt}, nil
}

// Add registers key for principal.
func (s *StaticLookup) Add(key, principal, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := HashKey(key)
	s.keys[h] = KeyInfo{Hash: h, Principal: principal, Name: name, CreatedAt: time.Now()}
}

// Remove forgets key.
func (s *StaticLookup) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, HashKey(key))
}

// List returns all keys ordered by principal.
func (s *StaticLookup) List() []KeyInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]KeyInfo, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Principal != out[j].Principal {
			return out[i].Principal < out[j].Principal
		}
		return out[i].Hash < out[j].Hash
	})
	return out
}
