// Package poller implements the fetch → derive → store cycle that keeps the
// dashboard's Snapshot Store and chart series up to date.
//
// A Fetcher retrieves the relay's latest snapshot; the Ingestor runs one
// cycle per call to Poll and is driven by the scheduler on a fixed cadence.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vpbank/routerpulse/models"
	"github.com/vpbank/routerpulse/pkg/routerpulse/store"
)

// maxBodyBytes bounds how much of a relay response is read.
const maxBodyBytes = 4 << 20

// ─────────────────────────────────────────────────────────────────────────────
// Fetcher interface
// ─────────────────────────────────────────────────────────────────────────────

// Fetcher retrieves the most recent snapshot. Implementations return ErrNoData
// when the source has nothing yet, and the typed errors in errors.go for
// every other failure.
type Fetcher interface {
	Fetch(ctx context.Context) (models.Snapshot, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// HTTPFetcher (remote relay)
// ─────────────────────────────────────────────────────────────────────────────

// HTTPFetcher reads the relay's GET endpoint. Every request bypasses caches.
type HTTPFetcher struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPFetcher creates a fetcher for url. timeout bounds each request; zero
// leaves only the caller's context deadline in effect.
func NewHTTPFetcher(url string, timeout time.Duration, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &HTTPFetcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context) (models.Snapshot, error) {
	var zero models.Snapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return zero, &TransportError{URL: f.url, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return zero, &TransportError{URL: f.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return zero, &ProtocolError{URL: f.url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return zero, &TransportError{URL: f.url, Err: fmt.Errorf("read body: %w", err)}
	}

	if models.IsWaitingMarker(body) {
		return zero, ErrNoData
	}

	snap, err := models.ParseSnapshot(body)
	if err != nil {
		return zero, &MalformedPayload{Err: err}
	}
	if err := requireObject(snap); err != nil {
		return zero, err
	}

	f.logger.Debug("poller: fetched snapshot",
		"url", f.url,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// StoreFetcher (in-process relay)
// ─────────────────────────────────────────────────────────────────────────────

// StoreFetcher reads straight from the relay's Snapshot Store when the relay
// and the dashboard run in the same process.
type StoreFetcher struct {
	src *store.SnapshotStore
}

// NewStoreFetcher wraps src.
func NewStoreFetcher(src *store.SnapshotStore) *StoreFetcher {
	return &StoreFetcher{src: src}
}

// Fetch implements Fetcher.
func (f *StoreFetcher) Fetch(ctx context.Context) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, &TransportError{URL: "local", Err: err}
	}
	rec, err := f.src.Latest()
	if errors.Is(err, store.ErrNoData) {
		return models.Snapshot{}, ErrNoData
	}
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := requireObject(rec.Snapshot); err != nil {
		return models.Snapshot{}, err
	}
	return rec.Snapshot, nil
}

// requireObject rejects snapshots whose raw payload is valid JSON but not an
// object (null, numbers, strings, arrays). The relay stores those verbatim;
// the dashboard has nothing to chart from them.
func requireObject(s models.Snapshot) error {
	if len(s.Raw) > 0 && !models.IsObject(s.Raw) {
		return &MalformedPayload{Err: models.ErrNotObject}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
