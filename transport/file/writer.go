// Package file implements Transports that write formatted snapshots to disk
// or to any io.Writer.
//
// Pipeline position:
//
//	format/json → transport/file
//
// LatestFile keeps exactly one file holding the most recent payload, the
// relay's durable copy that survives restarts. WriterTransport streams one
// JSON record per line, used by the agent's dry-run mode.
package file

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned by LatestFile.Load when nothing has been saved yet.
var ErrNotFound = errors.New("transport/file: no saved payload")

// ─────────────────────────────────────────────────────────────────────────────
// Transport interface
// ─────────────────────────────────────────────────────────────────────────────

// Transport delivers one pre-formatted message (JSON bytes from format/json).
// Close flushes and releases resources.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// ─────────────────────────────────────────────────────────────────────────────
// LatestFile
// ─────────────────────────────────────────────────────────────────────────────

// LatestFile replaces the file at Path on every Send. The write goes to a
// temporary file in the same directory which is then renamed over Path, so
// readers never observe a partial payload.
type LatestFile struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewLatestFile creates the parent directory of path if needed.
func NewLatestFile(path string, logger *slog.Logger) (*LatestFile, error) {
	if path == "" {
		return nil, fmt.Errorf("transport/file: path is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transport/file: mkdir %s: %w", dir, err)
	}
	return &LatestFile{path: path, logger: logger}, nil
}

// Path returns the destination file.
func (l *LatestFile) Path() string { return l.path }

// Send atomically replaces the file content with data.
func (l *LatestFile) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		l.logger.Error("transport/file: create temp failed", "path", l.path, "error", err.Error())
		return fmt.Errorf("transport/file: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		l.logger.Error("transport/file: write failed", "path", l.path, "error", err.Error(), "bytes", len(data))
		return fmt.Errorf("transport/file: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("transport/file: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("transport/file: chmod: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		l.logger.Error("transport/file: rename failed", "path", l.path, "error", err.Error())
		return fmt.Errorf("transport/file: rename: %w", err)
	}

	l.logger.Debug("transport/file: saved latest", "path", l.path, "bytes", len(data))
	return nil
}

// Load returns the last saved payload, or ErrNotFound.
func (l *LatestFile) Load() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transport/file: read %s: %w", l.path, err)
	}
	return data, nil
}

// Close is a no-op; every Send leaves the file closed.
func (l *LatestFile) Close() error { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// WriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// WriterTransport writes each message to an io.Writer followed by a newline.
// It is safe for concurrent use.
type WriterTransport struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

// NewWriter constructs a WriterTransport. A nil w means os.Stdout.
func NewWriter(w io.Writer, logger *slog.Logger) *WriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if w == nil {
		w = os.Stdout
	}
	return &WriterTransport{w: w, logger: logger}
}

// Send writes data and a trailing newline as one record. The mutex keeps
// concurrent records from interleaving.
func (t *WriterTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := make([]byte, 0, len(data)+1)
	line = append(line, data...)
	line = append(line, '\n')
	if _, err := t.w.Write(line); err != nil {
		t.logger.Error("transport/file: write failed", "error", err.Error(), "bytes", len(data))
		return fmt.Errorf("transport/file: write: %w", err)
	}
	return nil
}

// Close is a no-op; the writer's owner closes it.
func (t *WriterTransport) Close() error { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
