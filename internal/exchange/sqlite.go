package exchange

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

const schema = `
CREATE TABLE IF NOT EXISTS exchanges (
    id TEXT PRIMARY KEY,
    request_id TEXT,
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    target TEXT,
    status INTEGER NOT NULL,
    payload TEXT,
    body_bytes INTEGER DEFAULT 0,
    duration_ms INTEGER DEFAULT 0,
    failure TEXT,
    ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exchanges_ts ON exchanges(ts);
`

// SQLite persists exchanges so the ring survives restarts.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the exchange database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create exchange db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open exchange db: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create exchange schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Insert stores one entry.
func (s *SQLite) Insert(e Entry) error {
	_, err := s.db.Exec(`
		INSERT INTO exchanges (id, request_id, method, path, target, status, payload, body_bytes, duration_ms, failure, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.Method, e.Path, e.Target, e.Status, e.Payload,
		e.BodyBytes, e.DurationMs, e.Failure, e.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest entries, oldest first.
func (s *SQLite) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, request_id, method, path, target, status, payload, body_bytes, duration_ms, failure, ts
		FROM (SELECT * FROM exchanges ORDER BY ts DESC, rowid DESC LIMIT ?)
		ORDER BY ts ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Method, &e.Path, &e.Target, &e.Status,
			&e.Payload, &e.BodyBytes, &e.DurationMs, &e.Failure, &ts); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune keeps only the newest keep rows.
func (s *SQLite) Prune(keep int) error {
	_, err := s.db.Exec(`
		DELETE FROM exchanges WHERE id NOT IN (
			SELECT id FROM exchanges ORDER BY ts DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("prune exchanges: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
