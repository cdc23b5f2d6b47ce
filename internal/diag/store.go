package diag

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// maxHistoryRows bounds the rolling window of persisted error/protocol
// events so the database does not grow without limit across a long-lived
// daemon's lifetime.
const maxHistoryRows = 5000

// Store is a pure-Go (no cgo) sqlite-backed history of dispatch errors and
// protocol auto-detection counters, surviving daemon restarts. It backs the
// "glue, stats counters" line item of spec.md's component table.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the sqlite database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create diagnostics directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate diagnostics database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS error_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			method TEXT NOT NULL,
			code INTEGER NOT NULL,
			message TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS protocol_stats (
			kind TEXT PRIMARY KEY,
			count INTEGER NOT NULL DEFAULT 0
		);
	`)
	return err
}

// RecordError appends one dispatch-error event and trims the table to
// maxHistoryRows most recent entries.
func (s *Store) RecordError(method string, code int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`INSERT INTO error_events (ts, method, code, message) VALUES (?, ?, ?, ?)`,
		time.Now().Unix(), method, code, message,
	); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		DELETE FROM error_events WHERE id NOT IN (
			SELECT id FROM error_events ORDER BY id DESC LIMIT ?
		)`, maxHistoryRows)
	return err
}

// RecentErrors returns the last n error events, most recent first.
func (s *Store) RecentErrors(n int) ([]ErrorEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT ts, method, code, message FROM error_events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ErrorEvent
	for rows.Next() {
		var e ErrorEvent
		var ts int64
		if err := rows.Scan(&ts, &e.Method, &e.Code, &e.Message); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ErrorEvent is one persisted dispatch-error record.
type ErrorEvent struct {
	Timestamp time.Time
	Method    string
	Code      int
	Message   string
}

// IncrementProtocolCounter bumps the named protocol-detection counter
// ("auto_jsonrpc", "auto_mcp", "forced_jsonrpc", "forced_mcp") by one.
func (s *Store) IncrementProtocolCounter(kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO protocol_stats (kind, count) VALUES (?, 1)
		ON CONFLICT(kind) DO UPDATE SET count = count + 1
	`, kind)
	return err
}

// ProtocolCounters returns the full set of protocol-detection counters.
func (s *Store) ProtocolCounters() (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT kind, count FROM protocol_stats`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		out[kind] = count
	}
	return out, rows.Err()
}
