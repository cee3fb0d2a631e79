// Package history implements the sync history store (C8): an
// append-only SQLite audit log of every device operation a session
// attempted, independent of (and much slimmer than) the message-relay
// persistence layer this package repurposes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded operation outcome.
type Entry struct {
	ID        int64
	Operation string
	Detail    string
	Error     string
	At        time.Time
}

// Store is an append-only SQLite-backed audit log of device operations.
// It implements device.HistoryStore.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates the database at path if it doesn't exist and ensures its
// schema, matching the connect-then-init pattern of the teacher's
// persistence layer.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: pinging database: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	const query = `
	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation TEXT NOT NULL,
		detail TEXT,
		error TEXT,
		at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_operations_at ON operations(at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("history: creating schema: %w", err)
	}
	return nil
}

// Record appends one operation outcome to the log. A failure to persist
// is logged, not returned: history is best-effort bookkeeping and must
// never be the reason a device operation fails.
func (s *Store) Record(ctx context.Context, operation, detail string, opErr error) {
	errText := ""
	if opErr != nil {
		errText = opErr.Error()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operations (operation, detail, error, at) VALUES (?, ?, ?, ?)`,
		operation, detail, errText, time.Now())
	if err != nil {
		s.log.Warn("history: failed to record operation", "operation", operation, "error", err)
	}
}

// Recent returns the most recently recorded entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation, detail, error, at FROM operations ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying recent operations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Operation, &e.Detail, &e.Error, &e.At); err != nil {
			return nil, fmt.Errorf("history: scanning row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
