// Package sqlite implements a Transport that keeps the most recent payload
// in a single-row SQLite table.
//
// Pipeline position:
//
//	format/json → transport/sqlite
//
// Only the latest payload is stored: every Send upserts row id=1. There is
// no history.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("transport/sqlite: no saved payload")

const schema = `CREATE TABLE IF NOT EXISTS latest_snapshot (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	payload   TEXT    NOT NULL,
	stored_at INTEGER NOT NULL
);`

const upsert = `INSERT INTO latest_snapshot (id, payload, stored_at) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, stored_at = excluded.stored_at;`

// Config controls Store behaviour.
type Config struct {
	// Path of the database file (required).
	Path string

	// OpTimeout bounds each statement (default 2s).
	OpTimeout time.Duration
}

// Store persists the latest payload. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	timeout time.Duration
	logger  *slog.Logger

	closeOnce sync.Once
}

// Open creates the parent directory, opens the database and applies the
// schema.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("transport/sqlite: path is required")
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("transport/sqlite: mkdir: %w", err)
	}

	dsn := "file:" + cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("transport/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("transport/sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("transport/sqlite: migrate: %w", err)
	}

	logger.Info("transport/sqlite: opened", "path", cfg.Path)
	return &Store{db: db, timeout: cfg.OpTimeout, logger: logger}, nil
}

// Send replaces the stored payload with data.
func (s *Store) Send(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, upsert, string(data), time.Now().UnixMilli()); err != nil {
		s.logger.Error("transport/sqlite: upsert failed", "error", err.Error(), "bytes", len(data))
		return fmt.Errorf("transport/sqlite: upsert: %w", err)
	}
	s.logger.Debug("transport/sqlite: saved latest", "bytes", len(data))
	return nil
}

// Load returns the stored payload and when it was saved, or ErrNotFound.
func (s *Store) Load() ([]byte, error) {
	data, _, err := s.LoadWithTime()
	return data, err
}

// LoadWithTime is Load plus the save time.
func (s *Store) LoadWithTime() ([]byte, time.Time, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var (
		payload  string
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT payload, stored_at FROM latest_snapshot WHERE id = 1`).
		Scan(&payload, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("transport/sqlite: load: %w", err)
	}
	return []byte(payload), time.UnixMilli(storedAt), nil
}

// Close releases the database handle. It is safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
