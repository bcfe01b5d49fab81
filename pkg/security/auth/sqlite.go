package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const keySchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    key_hash TEXT PRIMARY KEY,
    principal TEXT NOT NULL,
    name TEXT,
    disabled BOOLEAN NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);
`

// SQLiteLookup resolves keys stored as hashes in a SQLite database.
type SQLiteLookup struct {
	db *sql.DB
}

// NewSQLiteLookup opens (creating if needed) the key database at path.
func NewSQLiteLookup(path string) (*SQLiteLookup, error) {
	if path == "" {
		return nil, fmt.Errorf("key database path is required")
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open key database: %w", err)
	}
	if _, err := db.Exec(keySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create key schema: %w", err)
	}
	return &SQLiteLookup{db: db}, nil
}

// Lookup returns the principal owning key.
func (s *SQLiteLookup) Lookup(ctx context.Context, key string) (*Principal, error) {
	var (
		p        Principal
		name     sql.NullString
		disabled bool
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT principal, name, disabled, created_at FROM api_keys WHERE key_hash = ?",
		HashKey(key),
	).Scan(&p.ID, &name, &disabled, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up key: %w", err)
	}
	if disabled {
		return nil, ErrKeyDisabled
	}
	p.Name = name.String
	return &p, nil
}

// Add stores key for principal. Adding an existing key replaces its owner
// and re-enables it.
func (s *SQLiteLookup) Add(ctx context.Context, key, principal, name string) error {
	if key == "" || principal == "" {
		return fmt.Errorf("key and principal are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (key_hash, principal, name, disabled, created_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(key_hash) DO UPDATE SET
			principal = excluded.principal,
			name = excluded.name,
			disabled = 0`,
		HashKey(key), principal, name, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	return nil
}

// SetDisabled enables or disables the key with the given hash.
func (s *SQLiteLookup) SetDisabled(ctx context.Context, hash string, disabled bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET disabled = ? WHERE key_hash = ?", disabled, hash)
	if err != nil {
		return fmt.Errorf("failed to update key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidKey
	}
	return nil
}

// List returns all stored keys ordered by principal.
func (s *SQLiteLookup) List(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key_hash, principal, name, disabled, created_at FROM api_keys ORDER BY principal, key_hash")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var (
			k    KeyInfo
			name sql.NullString
		)
		if err := rows.Scan(&k.Hash, &k.Principal, &name, &k.Disabled, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		k.Name = name.String
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Ping checks the database connection.
func (s *SQLiteLookup) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteLookup) Close() error {
	return s.db.Close()
}
