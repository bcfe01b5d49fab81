package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore keeps records in a SQLite database. The parameter bag is stored
// as JSON, so numbers come back as float64; the loader's decoder converts
// them.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("db path cannot be empty")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports single writer

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS policy_configs (
		name TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		config TEXT NOT NULL DEFAULT '{}',
		is_active INTEGER NOT NULL DEFAULT 1,
		description TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);
	`)
	return err
}

// Get returns the named record.
func (s *SQLiteStore) Get(ctx context.Context, name string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, type, config, is_active, description FROM policy_configs WHERE name = ?`, name)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load policy %q: %w", name, err)
	}
	return rec, nil
}

// List returns every record sorted by name.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type, config, is_active, description FROM policy_configs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Put inserts or replaces rec.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	cfg := rec.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config for %q: %w", rec.Name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policy_configs (name, type, config, is_active, description, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			type = excluded.type,
			config = excluded.config,
			is_active = excluded.is_active,
			description = excluded.description,
			updated_at = excluded.updated_at
	`, rec.Name, rec.Type, string(data), rec.Active, rec.Description, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save policy %q: %w", rec.Name, err)
	}
	return nil
}

// Delete removes the named record.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM policy_configs WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete policy %q: %w", name, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec    Record
		config string
	)
	if err := row.Scan(&rec.Name, &rec.Type, &config, &rec.Active, &rec.Description); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(config), &rec.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &rec, nil
}
