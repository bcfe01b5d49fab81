package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    transaction_id TEXT NOT NULL,
    principal TEXT,
    model TEXT,
    streaming BOOLEAN NOT NULL,
    status INTEGER,
    chunks INTEGER,
    outcome TEXT NOT NULL,
    error TEXT,
    duration_ms INTEGER,
    recorded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_recorded_at ON audit_entries(recorded_at);
CREATE INDEX IF NOT EXISTS idx_audit_principal ON audit_entries(principal);
`

// SQLiteSink stores entries in a SQLite database.
type SQLiteSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteSink opens (creating if needed) the database at path.
func NewSQLiteSink(path string, logger *slog.Logger) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("audit database path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit.sqlite")

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "open", Cause: err}
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &StorageError{Backend: "sqlite", Operation: "create_schema", Cause: err}
	}

	logger.Info("audit storage initialized", "path", path)
	return &SQLiteSink{db: db, logger: logger}, nil
}

// Record inserts e.
func (s *SQLiteSink) Record(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	var errVal any
	if e.Error != "" {
		errVal = e.Error
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (
			transaction_id, principal, model, streaming, status, chunks,
			outcome, error, duration_ms, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TransactionID, e.Principal, e.Model, e.Streaming, e.Status, e.Chunks,
		e.Outcome, errVal, e.Duration.Milliseconds(), e.RecordedAt.UTC(),
	)
	if err != nil {
		return &StorageError{Backend: "sqlite", Operation: "record", Cause: err}
	}
	return nil
}

// Query returns matching entries, newest first.
func (s *SQLiteSink) Query(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Principal != "" {
		where = append(where, "principal = ?")
		args = append(args, f.Principal)
	}
	if !f.Since.IsZero() {
		where = append(where, "recorded_at >= ?")
		args = append(args, f.Since.UTC())
	}

	query := `SELECT transaction_id, principal, model, streaming, status, chunks,
		outcome, error, duration_ms, recorded_at FROM audit_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY recorded_at DESC, id DESC"

	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "query", Cause: err}
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			principal  sql.NullString
			model      sql.NullString
			errText    sql.NullString
			durationMs int64
		)
		if err := rows.Scan(&e.TransactionID, &principal, &model, &e.Streaming, &e.Status,
			&e.Chunks, &e.Outcome, &errText, &durationMs, &e.RecordedAt); err != nil {
			return nil, &StorageError{Backend: "sqlite", Operation: "scan", Cause: err}
		}
		e.Principal = principal.String
		e.Model = model.String
		e.Error = errText.String
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Backend: "sqlite", Operation: "scan", Cause: err}
	}
	return entries, nil
}

// Prune deletes entries recorded before the cutoff.
func (s *SQLiteSink) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_entries WHERE recorded_at < ?", before.UTC())
	if err != nil {
		return 0, &StorageError{Backend: "sqlite", Operation: "prune", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Backend: "sqlite", Operation: "prune", Cause: err}
	}
	return n, nil
}

// Ping checks the database connection.
func (s *SQLiteSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
