// Package ingress implements the relay: agents POST snapshots, the dashboard
// (or anything else) GETs the latest one back.
//
// Every accepted payload replaces the relay's Snapshot Store unconditionally
// and is then handed to the configured sinks for best-effort persistence.
// A sink failure is logged and counted, never reported to the agent.
package ingress

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	fmtjson "github.com/vpbank/routerpulse/format/json"
	"github.com/vpbank/routerpulse/models"
	"github.com/vpbank/routerpulse/pkg/routerpulse/store"
)

// Routes mounted by Register.
const (
	RouteUpdate = "/api/update"
	RouteData   = "/api/data"
	RouteRoot   = "/"
)

// ReceivedMessage is the acknowledgement text of a successful POST.
const ReceivedMessage = "Router data received"

// ─────────────────────────────────────────────────────────────────────────────
// Interfaces for dependency injection
// ─────────────────────────────────────────────────────────────────────────────

// Transport is the subset of transport/file and transport/sqlite used for
// persistence.
type Transport interface {
	Send(data []byte) error
}

// Recorder receives ingress counters. *telemetry.Metrics implements it.
type Recorder interface {
	IncIngest(result string)
	IncPersistError(backend string)
}

// Ingest result labels, matching telemetry.IngestAccepted/IngestRejected.
const (
	resultAccepted = "accepted"
	resultRejected = "rejected"
)

type nopRecorder struct{}

func (nopRecorder) IncIngest(string)       {}
func (nopRecorder) IncPersistError(string) {}

// ─────────────────────────────────────────────────────────────────────────────
// Server
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the relay endpoints.
type Config struct {
	// MaxBodyBytes bounds a POST body (default 1 MiB).
	MaxBodyBytes int64

	// Recorder receives counters. Default: discard.
	Recorder Recorder
}

type sink struct {
	name      string
	formatter fmtjson.Formatter
	transport Transport
}

// Server serves the relay endpoints on top of a Snapshot Store.
type Server struct {
	store  *store.SnapshotStore
	sinks  []sink
	cfg    Config
	logger *slog.Logger
}

// New creates a relay Server writing to st.
func New(cfg Config, st *store.SnapshotStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Server{store: st, cfg: cfg, logger: logger}
}

// AddSink registers a persistence target. Sinks run in registration order
// after every accepted payload. Call before serving.
func (s *Server) AddSink(name string, f fmtjson.Formatter, t Transport) {
	s.sinks = append(s.sinks, sink{name: name, formatter: f, transport: t})
}

// Register mounts the relay routes on r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc(RouteUpdate, s.handleUpdate).Methods(http.MethodPost)
	r.HandleFunc(RouteData, s.handleData).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc(RouteRoot, s.handleRoot).Methods(http.MethodGet, http.MethodHead)
}

// Restore seeds the store from a previously persisted payload, so the relay
// keeps serving the last snapshot across restarts.
func (s *Server) Restore(data []byte) error {
	snap, err := models.ParseSnapshot(data)
	if err != nil {
		return fmt.Errorf("ingress: restore: %w", err)
	}
	s.store.Put(snap)
	s.logger.Info("ingress: restored last snapshot", "bytes", len(data))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────────────────────────────────────

type ack struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		s.cfg.Recorder.IncIngest(resultRejected)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.logger.Warn("ingress: payload too large", "limit", tooLarge.Limit, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusRequestEntityTooLarge, ack{Status: "error", Message: "payload too large"})
			return
		}
		s.logger.Warn("ingress: read body failed", "error", err.Error(), "remote", r.RemoteAddr)
		writeJSON(w, http.StatusBadRequest, ack{Status: "error", Message: "could not read body"})
		return
	}

	snap, err := models.ParseSnapshot(body)
	if err != nil {
		s.cfg.Recorder.IncIngest(resultRejected)
		s.logger.Warn("ingress: rejected payload", "error", err.Error(), "bytes", len(body), "remote", r.RemoteAddr)
		writeJSON(w, http.StatusBadRequest, ack{Status: "error", Message: "invalid JSON"})
		return
	}

	rec := s.store.Put(snap)
	id := uuid.NewString()
	s.cfg.Recorder.IncIngest(resultAccepted)
	s.logger.Info("ingress: snapshot received",
		"id", id,
		"bytes", len(body),
		"remote", r.RemoteAddr,
		"timestamp", rec.Timestamp,
	)

	s.persist(id, snap)

	writeJSON(w, http.StatusOK, ack{Status: "ok", Message: ReceivedMessage, ID: id})
}

func (s *Server) persist(id string, snap models.Snapshot) {
	for _, sk := range s.sinks {
		data, err := sk.formatter.Format(snap)
		if err == nil {
			err = sk.transport.Send(data)
		}
		if err != nil {
			s.cfg.Recorder.IncPersistError(sk.name)
			s.logger.Error("ingress: persist failed",
				"id", id,
				"backend", sk.name,
				"error", err.Error(),
			)
		}
	}
}

func (s *Server) handleData(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	rec, ok := s.store.Get()
	if !ok {
		writeJSON(w, http.StatusOK, models.NewWaitingMarker())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Snapshot.Raw)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "routerpulse relay running\n")
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
