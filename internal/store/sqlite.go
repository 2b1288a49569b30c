package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/sherox/internal/event"

	_ "modernc.org/sqlite"
)

// SQLite keeps events in a single table, one JSON record per key.
type SQLite struct {
	db *sql.DB
}

var _ KV = (*SQLite)(nil)

// Open initializes the database connection, creating directories as needed.
func Open(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// InitSchema ensures the events table exists.
func (s *SQLite) InitSchema(ctx context.Context) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS emergency_events (
			key TEXT PRIMARY KEY,
			record TEXT NOT NULL,
			stored_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Put stores the record under key. An existing key is left untouched.
func (s *SQLite) Put(ctx context.Context, key string, ev event.EmergencyEvent) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	record, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", key, err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO emergency_events (key, record) VALUES (?, ?)
		 ON CONFLICT(key) DO NOTHING;`,
		key,
		string(record),
	)
	if err != nil {
		return fmt.Errorf("put event %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put event %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("put event %s: %w", key, ErrKeyExists)
	}
	return nil
}

// Get loads the record stored under key.
func (s *SQLite) Get(ctx context.Context, key string) (event.EmergencyEvent, bool, error) {
	if s.db == nil {
		return event.EmergencyEvent{}, false, ErrNotInitialized
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM emergency_events WHERE key = ?;`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return event.EmergencyEvent{}, false, nil
	}
	if err != nil {
		return event.EmergencyEvent{}, false, fmt.Errorf("get event %s: %w", key, err)
	}
	var ev event.EmergencyEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return event.EmergencyEvent{}, false, fmt.Errorf("decode event %s: %w", key, err)
	}
	return ev, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM emergency_events WHERE key = ?;`, key); err != nil {
		return fmt.Errorf("delete event %s: %w", key, err)
	}
	return nil
}

// GetMany loads several records in one query.
func (s *SQLite) GetMany(ctx context.Context, keys []string) ([]*event.EmergencyEvent, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	out := make([]*event.EmergencyEvent, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT key, record FROM emergency_events WHERE key IN (`+placeholders(len(keys))+`);`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	found := make(map[string]*event.EmergencyEvent, len(keys))
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev event.EmergencyEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", key, err)
		}
		found[key] = &ev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	for i, k := range keys {
		out[i] = found[k]
	}
	return out, nil
}

// DeleteMany removes all keys in one transaction.
func (s *SQLite) DeleteMany(ctx context.Context, keys []string) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM emergency_events WHERE key = ?;`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k); err != nil {
			return fmt.Errorf("delete event %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// Keys lists stored keys starting with prefix.
func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT key FROM emergency_events WHERE substr(key, 1, ?) = ? ORDER BY key ASC;`,
		len(prefix),
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
