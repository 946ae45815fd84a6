package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	jsonformat "github.com/vpbank/routerpulse/format/json"
	"github.com/vpbank/routerpulse/models"
	"github.com/vpbank/routerpulse/transport/file"
)

// Output delivers a collected snapshot.
type Output interface {
	Publish(ctx context.Context, snap models.Snapshot) error
}

// ─────────────────────────────────────────────────────────────────────────────
// HTTPPusher
// ─────────────────────────────────────────────────────────────────────────────

// maxAckBytes bounds how much of the relay's reply is read.
const maxAckBytes = 64 << 10

// HTTPPusher POSTs snapshots to the relay's update endpoint.
type HTTPPusher struct {
	url     string
	timeout time.Duration
	client  *http.Client
	format  jsonformat.Formatter
	logger  *slog.Logger
}

// NewHTTPPusher builds a pusher for url. A zero timeout means 5s; a nil
// client means http.DefaultClient.
func NewHTTPPusher(url string, timeout time.Duration, client *http.Client, logger *slog.Logger) *HTTPPusher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPusher{
		url:     url,
		timeout: timeout,
		client:  client,
		format:  jsonformat.New(jsonformat.Config{}, logger),
		logger:  logger,
	}
}

// Publish sends snap as compact JSON. Any non-2xx reply is an error.
func (p *HTTPPusher) Publish(ctx context.Context, snap models.Snapshot) error {
	body, err := p.format.Format(snap)
	if err != nil {
		return fmt.Errorf("agent: format snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("agent: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("agent: push failed", "url", p.url, "error", err.Error())
		return fmt.Errorf("agent: push %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	reply, _ := io.ReadAll(io.LimitReader(resp.Body, maxAckBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(reply, "message").String()
		p.logger.Warn("agent: relay rejected snapshot",
			"url", p.url,
			"status", resp.StatusCode,
			"message", msg,
		)
		return fmt.Errorf("agent: relay returned %d: %s", resp.StatusCode, msg)
	}

	p.logger.Debug("agent: pushed snapshot",
		"url", p.url,
		"bytes", len(body),
		"id", gjson.GetBytes(reply, "id").String(),
	)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// WriterOutput
// ─────────────────────────────────────────────────────────────────────────────

// WriterOutput prints each snapshot as one JSON line instead of pushing it.
type WriterOutput struct {
	format    jsonformat.Formatter
	transport file.Transport
}

// NewWriterOutput writes to w, or stdout when w is nil.
func NewWriterOutput(w io.Writer, logger *slog.Logger) *WriterOutput {
	return &WriterOutput{
		format:    jsonformat.New(jsonformat.Config{}, logger),
		transport: file.NewWriter(w, logger),
	}
}

// Publish formats snap and writes it.
func (o *WriterOutput) Publish(_ context.Context, snap models.Snapshot) error {
	data, err := o.format.Format(snap)
	if err != nil {
		return fmt.Errorf("agent: format snapshot: %w", err)
	}
	return o.transport.Send(data)
}
