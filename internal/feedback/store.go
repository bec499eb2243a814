// Package feedback persists per-turn outcome records so operators can
// review how the bot answered (or failed to answer) recent turns.
package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one turn outcome.
type Record struct {
	TurnID    string
	Channel   string
	ChatID    string
	Kind      string // text_response | image_analysis | "" on failure
	Success   bool
	ErrorKind string
	Model     string
	LatencyMs int64
	CreatedAt time.Time
}

// Store writes turn outcomes to SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turn_outcomes (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		turn_id     TEXT NOT NULL,
		channel     TEXT NOT NULL,
		chat_id     TEXT,
		kind        TEXT,
		success     INTEGER NOT NULL,
		error_kind  TEXT,
		model       TEXT,
		latency_ms  INTEGER DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_turn_outcomes_time ON turn_outcomes(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts one turn outcome.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turn_outcomes (turn_id, channel, chat_id, kind, success, error_kind, model, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TurnID, rec.Channel, rec.ChatID, rec.Kind, boolToInt(rec.Success),
		rec.ErrorKind, rec.Model, rec.LatencyMs, rec.CreatedAt,
	)
	return err
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_id, channel, chat_id, kind, success, error_kind, model, latency_ms, created_at
		 FROM turn_outcomes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var success int
		if err := rows.Scan(&rec.TurnID, &rec.Channel, &rec.ChatID, &rec.Kind,
			&success, &rec.ErrorKind, &rec.Model, &rec.LatencyMs, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Success = success != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
