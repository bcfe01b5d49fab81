package auth

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/luthien/pkg/config"
)

func TestStaticLookup_Lookup(t *testing.T) {
	lookup := NewStaticLookup([]config.APIKeyConfig{
		{Key: "lk-valid", Principal: "alice", Name: "laptop"},
		{Key: "lk-disabled", Principal: "bob", Disabled: true},
	})

	tests := []struct {
		name      string
		key       string
		wantErr   error
		wantOwner string
	}{
		{name: "valid key", key: "lk-valid", wantOwner: "alice"},
		{name: "disabled key", key: "lk-disabled", wantErr: ErrKeyDisabled},
		{name: "unknown key", key: "lk-nope", wantErr: ErrInvalidKey},
		{name: "empty key", key: "", wantErr: ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := lookup.Lookup(context.Background(), tt.key)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Lookup() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if p.ID != tt.wantOwner {
				t.Errorf("principal = %q, want %q", p.ID, tt.wantOwner)
			}
		})
	}
}

func TestStaticLookup_AddRemove(t *testing.T) {
	lookup := NewStaticLookup(nil)
	lookup.Add("lk-new", "carol", "ci")

	if _, err := lookup.Lookup(context.Background(), "lk-new"); err != nil {
		t.Fatalf("Lookup() after Add error = %v", err)
	}
	keys := lookup.List()
	if len(keys) != 1 || keys[0].Hash != HashKey("lk-new") {
		t.Errorf("List() = %+v", keys)
	}

	lookup.Remove("lk-new")
	if _, err := lookup.Lookup(context.Background(), "lk-new"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Lookup() after Remove error = %v", err)
	}
}

func TestSQLiteLookup(t *testing.T) {
	ctx := context.Background()
	lookup, err := NewSQLiteLookup(filepath.Join(t.TempDir(), "keys.db"))
	if err != nil {
		t.Fatalf("NewSQLiteLookup() error = %v", err)
	}
	defer lookup.Close()

	if err := lookup.Add(ctx, "lk-alice", "alice", "laptop"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	p, err := lookup.Lookup(ctx, "lk-alice")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if p.ID != "alice" || p.Name != "laptop" || p.CreatedAt.IsZero() {
		t.Errorf("principal = %+v", p)
	}

	if _, err := lookup.Lookup(ctx, "lk-other"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Lookup(unknown) error = %v", err)
	}

	if err := lookup.SetDisabled(ctx, HashKey("lk-alice"), true); err != nil {
		t.Fatalf("SetDisabled() error = %v", err)
	}
	if _, err := lookup.Lookup(ctx, "lk-alice"); !errors.Is(err, ErrKeyDisabled) {
		t.Errorf("Lookup(disabled) error = %v", err)
	}
	if err := lookup.SetDisabled(ctx, "nope", true); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("SetDisabled(unknown) error = %v", err)
	}

	keys, err := lookup.List(ctx)
	if err != nil || len(keys) != 1 || !keys[0].Disabled {
		t.Errorf("List() = %+v, %v", keys, err)
	}
	for _, k := range keys {
		if strings.Contains(k.Hash, "lk-alice") {
			t.Error("stored key is not hashed")
		}
	}
}

func TestChain(t *testing.T) {
	first := NewStaticLookup([]config.APIKeyConfig{{Key: "a", Principal: "one"}, {Key: "off", Principal: "x", Disabled: true}})
	second := NewStaticLookup([]config.APIKeyConfig{{Key: "b", Principal: "two"}, {Key: "off", Principal: "y"}})
	chain := Chain{first, second}

	p, err := chain.Lookup(context.Background(), "b")
	if err != nil || p.ID != "two" {
		t.Errorf("Lookup(b) = %v, %v", p, err)
	}
	if _, err := chain.Lookup(context.Background(), "off"); !errors.Is(err, ErrKeyDisabled) {
		t.Errorf("disabled key in first lookup should be final, got %v", err)
	}
	if _, err := chain.Lookup(context.Background(), "c"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Lookup(c) error = %v", err)
	}
}

func TestExtractKey(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		wantKey    string
		wantHeader string
		wantOK     bool
	}{
		{name: "bearer", headers: map[string]string{"Authorization": "Bearer lk-1"}, wantKey: "lk-1", wantHeader: "Authorization", wantOK: true},
		{name: "lowercase scheme", headers: map[string]string{"Authorization": "bearer lk-1"}, wantKey: "lk-1", wantHeader: "Authorization", wantOK: true},
		{name: "x-api-key", headers: map[string]string{"X-API-Key": "lk-2"}, wantKey: "lk-2", wantHeader: "X-API-Key", wantOK: true},
		{name: "wrong scheme", headers: map[string]string{"Authorization": "Basic abc"}},
		{name: "scheme only", headers: map[string]string{"Authorization": "Bearer "}},
		{name: "none", headers: map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := make(http.Header)
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			key, header, ok := ExtractKey(h, DefaultKeySources())
			if ok != tt.wantOK || key != tt.wantKey || header != tt.wantHeader {
				t.Errorf("ExtractKey() = %q, %q, %v; want %q, %q, %v", key, header, ok, tt.wantKey, tt.wantHeader, tt.wantOK)
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	b, _ := GenerateKey()
	if a == b || !strings.HasPrefix(a, KeyPrefix) {
		t.Errorf("GenerateKey() = %q, %q", a, b)
	}
	if len(HashKey(a)) != 64 {
		t.Errorf("HashKey() length = %d, want 64", len(HashKey(a)))
	}
}
