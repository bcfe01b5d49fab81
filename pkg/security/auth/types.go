package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidKey is returned when no principal owns the key.
	ErrInvalidKey = errors.New("invalid API key")

	// ErrKeyDisabled is returned for a known but disabled key.
	ErrKeyDisabled = errors.New("API key disabled")
)

// Principal is the caller a key belongs to.
type Principal struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// CredentialLookup resolves a presented key.
type CredentialLookup interface {
	Lookup(ctx context.Context, key string) (*Principal, error)
}

// KeyInfo describes a stored key without revealing it.
type KeyInfo struct {
	Hash      string
	Principal string
	Name      string
	Disabled  bool
	CreatedAt time.Time
}

// Chain tries each lookup in order. ErrInvalidKey moves on to the next
// lookup; any other result is final.
type Chain []CredentialLookup

// Lookup implements CredentialLookup.
func (c Chain) Lookup(ctx context.Context, key string) (*Principal, error) {
	for _, l := range c {
		p, err := l.Lookup(ctx, key)
		if errors.Is(err, ErrInvalidKey) {
			continue
		}
		return p, err
	}
	return nil, ErrInvalidKey
}
