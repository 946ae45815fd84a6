// Package json serialises snapshots for persistence and for the agent's push.
//
// Pipeline position:
//
//	ingress (receive) → format/json → transport/file, transport/sqlite
//	agent (collect)   → format/json → POST /api/update
//
// A snapshot received by the relay is opaque: its Raw bytes are re-indented
// or compacted, never re-encoded, so unknown fields survive untouched. A
// snapshot built in-process (no Raw) is marshalled from its typed fields.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vpbank/routerpulse/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Formatter interface
// ─────────────────────────────────────────────────────────────────────────────

// Formatter serialises a snapshot into a byte slice.
type Formatter interface {
	Format(s models.Snapshot) ([]byte, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented, human-readable JSON when true.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint=true.
	// Defaults to two spaces when empty and PrettyPrint=true.
	Indent string
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONFormatter
// ─────────────────────────────────────────────────────────────────────────────

// JSONFormatter implements Formatter. It is safe for concurrent use; all
// fields are immutable after construction.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter. If logger is nil, a no-op logger is
// substituted.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// Format returns s as JSON. The returned slice is always non-nil on success.
func (f *JSONFormatter) Format(s models.Snapshot) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if len(s.Raw) > 0 {
		data, err = f.reformat(s.Raw)
	} else {
		data, err = f.marshal(s)
	}
	if err != nil {
		f.logger.Error("format/json: format failed",
			"raw", len(s.Raw) > 0,
			"error", err.Error(),
		)
		return nil, err
	}

	f.logger.Debug("format/json: formatted snapshot",
		"bytes", len(data),
		"clients", len(s.Clients),
	)
	return data, nil
}

func (f *JSONFormatter) reformat(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if f.cfg.PrettyPrint {
		err = json.Indent(&buf, raw, "", f.cfg.Indent)
	} else {
		err = json.Compact(&buf, raw)
	}
	if err != nil {
		return nil, fmt.Errorf("format/json: reformat raw: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *JSONFormatter) marshal(s models.Snapshot) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if f.cfg.PrettyPrint {
		data, err = json.MarshalIndent(s, "", f.cfg.Indent)
	} else {
		data, err = json.Marshal(s)
	}
	if err != nil {
		return nil, fmt.Errorf("format/json: marshal: %w", err)
	}
	return data, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
