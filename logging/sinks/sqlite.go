package sinks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"ccw/server/logging"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	type     TEXT    NOT NULL,
	tick     INTEGER NOT NULL,
	time     TEXT    NOT NULL,
	severity TEXT    NOT NULL,
	category TEXT,
	actor    TEXT,
	payload  TEXT,
	extra    TEXT
);
CREATE INDEX IF NOT EXISTS events_type_tick ON events(type, tick);
`

// SQLite journals events into a local database so window timings can be
// analysed offline.
type SQLite struct {
	mu     sync.Mutex
	db     *sql.DB
	insert *sql.Stmt
}

// OpenSQLite opens (or creates) the journal database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite sink: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite sink: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite sink: apply schema: %w", err)
	}
	insert, err := db.PrepareContext(ctx,
		`INSERT INTO events (type, tick, time, severity, category, actor, payload, extra) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite sink: prepare insert: %w", err)
	}
	return &SQLite{db: db, insert: insert}, nil
}

func (s *SQLite) Write(event logging.Event) error {
	payload, err := nullableJSON(event.Payload)
	if err != nil {
		return fmt.Errorf("sqlite sink: encode payload: %w", err)
	}
	var extra sql.NullString
	if len(event.Extra) > 0 {
		if extra, err = nullableJSON(event.Extra); err != nil {
			return fmt.Errorf("sqlite sink: encode extra: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.insert.Exec(
		string(event.Type),
		int64(event.Tick),
		event.Time.UTC().Format(time.RFC3339Nano),
		event.Severity.String(),
		event.Category,
		formatEntity(event.Actor),
		payload,
		extra,
	)
	return err
}

// CountByType reports how many journaled events exist per event type.
func (s *SQLite) CountByType(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM events GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: count events: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			eventType string
			count     int
		)
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("sqlite sink: scan count: %w", err)
		}
		counts[eventType] = count
	}
	return counts, rows.Err()
}

func (s *SQLite) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insert.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

func nullableJSON(value any) (sql.NullString, error) {
	if value == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
