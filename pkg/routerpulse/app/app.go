// Package app wires the relay and dashboard together and manages their
// lifecycle.
//
// Write path (relay):
//
//	agent → POST /api/update → ingress → relay store
//	                                  ↘ format/json → transport/file, transport/sqlite
//
// Read path (dashboard):
//
//	Scheduler → Ingestor → Fetcher (HTTP or in-process relay store) →
//	dashboard store + chart series → /api/dashboard, /ws
//
// One HTTP listener serves both paths plus /metrics and /healthz.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	fmtjson "github.com/vpbank/routerpulse/format/json"
	"github.com/vpbank/routerpulse/pkg/routerpulse/config"
	"github.com/vpbank/routerpulse/pkg/routerpulse/dashboard"
	"github.com/vpbank/routerpulse/pkg/routerpulse/ingress"
	"github.com/vpbank/routerpulse/pkg/routerpulse/poller"
	"github.com/vpbank/routerpulse/pkg/routerpulse/scheduler"
	"github.com/vpbank/routerpulse/pkg/routerpulse/series"
	"github.com/vpbank/routerpulse/pkg/routerpulse/store"
	"github.com/vpbank/routerpulse/pkg/routerpulse/telemetry"
	"github.com/vpbank/routerpulse/producer/samples"
	filetransport "github.com/vpbank/routerpulse/transport/file"
	sqlitetransport "github.com/vpbank/routerpulse/transport/sqlite"
)

// Routes owned by the app itself.
const (
	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config holds the top-level settings for the server.
type Config struct {
	// Settings is the loaded configuration. Default: config.Defaults().
	Settings *config.Config

	// Clock drives store timestamps and chart labels. Default: wall clock.
	Clock store.Clock

	// NewTicker drives the poll cadence. Default: scheduler.NewRealTicker.
	NewTicker scheduler.TickerFactory

	// Location renders chart labels. Default: time.Local.
	Location *time.Location
}

func (c *Config) withDefaults() {
	if c.Settings == nil {
		c.Settings = config.Defaults()
	}
	if c.Clock == nil {
		c.Clock = store.RealClock{}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// persister is a sink that can also hand back what it last stored.
type persister interface {
	Send(data []byte) error
	Load() ([]byte, error)
	Close() error
}

type namedPersister struct {
	name string
	persister
}

// App owns every component. Create one with New, start it with Start, and
// stop it with Stop (or cancel the context passed to Start).
type App struct {
	cfg    Config
	logger *slog.Logger

	metrics    *telemetry.Metrics
	relayStore *store.SnapshotStore
	relay      *ingress.Server
	persisters []namedPersister
	ingestor   *poller.Ingestor
	sched      *scheduler.Scheduler
	hub        *dashboard.Hub
	view       *dashboard.Handler
	handler    http.Handler

	server   *http.Server
	listener net.Listener

	cancel   context.CancelFunc
	group    *errgroup.Group
	done     <-chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// New builds every component without starting anything. It fails only when
// a persistence backend cannot be opened or the dashboard cannot be wired.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg.withDefaults()
	s := cfg.Settings

	a := &App{cfg: cfg, logger: logger, metrics: telemetry.New()}

	// ── 1. Relay ────────────────────────────────────────────────────────
	if s.Relay.On() {
		a.relayStore = store.New(cfg.Clock)
		a.relay = ingress.New(ingress.Config{
			MaxBodyBytes: s.Relay.MaxBodyBytes,
			Recorder:     a.metrics,
		}, a.relayStore, logger)

		if err := a.openPersisters(); err != nil {
			a.closePersisters()
			return nil, err
		}
		a.restore()
	}

	// ── 2. Dashboard poller ─────────────────────────────────────────────
	var fetcher poller.Fetcher
	switch {
	case s.Poll.URL != "":
		fetcher = poller.NewHTTPFetcher(s.Poll.URL, s.Poll.Timeout, logger)
	case a.relayStore != nil:
		fetcher = poller.NewStoreFetcher(a.relayStore)
	default:
		a.closePersisters()
		return nil, errors.New("app: poll.url is required when the relay is disabled")
	}

	ing, err := poller.New(poller.Config{
		Fetcher:      fetcher,
		Producer:     samples.New(cfg.Location, logger),
		Store:        store.New(cfg.Clock),
		Series:       series.NewChartSet(s.Series.Capacity),
		Clock:        cfg.Clock,
		FetchTimeout: s.Poll.Timeout,
	}, logger)
	if err != nil {
		a.closePersisters()
		return nil, fmt.Errorf("app: build ingestor: %w", err)
	}
	a.ingestor = ing

	a.sched = scheduler.New(scheduler.Config{
		Interval:  s.Poll.Interval,
		NewTicker: cfg.NewTicker,
	}, func(ctx context.Context) { ing.Poll(ctx) }, logger)

	// ── 3. Live view ────────────────────────────────────────────────────
	a.hub = dashboard.NewHub(logger)
	a.view = dashboard.NewHandler(ing, a.sched, a.hub, s.CORS.AllowedOrigins, logger)

	ing.OnCycle(a.metrics.ObserveCycle)
	ing.OnCycle(a.view.Publish)

	a.metrics.WatchAge(ing.Store().Age)
	a.metrics.WatchSeries(ing.Series())
	a.metrics.WatchGauge("ws_clients", "Connected dashboard websocket clients.", func() float64 {
		return float64(a.hub.Clients())
	})

	// ── 4. Router ───────────────────────────────────────────────────────
	r := mux.NewRouter()
	r.Use(a.metrics.Middleware)
	r.Handle(RouteMetrics, a.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc(RouteHealth, a.handleHealth).Methods(http.MethodGet, http.MethodHead)
	a.view.Register(r)
	if a.relay != nil {
		a.relay.Register(r)
	}
	a.handler = ingress.CORS(s.CORS.AllowedOrigins)(r)

	return a, nil
}

// openPersisters opens the configured backends and registers them as relay
// sinks. The file copy is pretty-printed for humans; SQLite stores it compact.
func (a *App) openPersisters() error {
	s := a.cfg.Settings
	if s.Persist.File != "" {
		lf, err := filetransport.NewLatestFile(s.Persist.File, a.logger)
		if err != nil {
			return fmt.Errorf("app: open file persistence: %w", err)
		}
		a.persisters = append(a.persisters, namedPersister{name: "file", persister: lf})
		a.relay.AddSink("file", fmtjson.New(fmtjson.Config{PrettyPrint: true}, a.logger), lf)
	}
	if s.Persist.SQLite != "" {
		db, err := sqlitetransport.Open(sqlitetransport.Config{Path: s.Persist.SQLite}, a.logger)
		if err != nil {
			return fmt.Errorf("app: open sqlite persistence: %w", err)
		}
		a.persisters = append(a.persisters, namedPersister{name: "sqlite", persister: db})
		a.relay.AddSink("sqlite", fmtjson.New(fmtjson.Config{}, a.logger), db)
	}
	return nil
}

// restore seeds the relay from the first backend that holds a payload.
// Failures are logged; the relay then starts empty.
func (a *App) restore() {
	for _, p := range a.persisters {
		data, err := p.Load()
		if errors.Is(err, filetransport.ErrNotFound) || errors.Is(err, sqlitetransport.ErrNotFound) {
			continue
		}
		if err != nil {
			a.logger.Warn("app: load persisted snapshot failed", "backend", p.name, "error", err.Error())
			continue
		}
		if err := a.relay.Restore(data); err != nil {
			a.logger.Warn("app: persisted snapshot unusable", "backend", p.name, "error", err.Error())
			continue
		}
		return
	}
}

// Start binds the listener and launches the HTTP server, the scheduler and
// the websocket hub. Bind errors are returned synchronously.
func (a *App) Start(ctx context.Context) error {
	s := a.cfg.Settings

	ln, err := net.Listen("tcp", s.HTTP.Listen)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", s.HTTP.Listen, err)
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	a.group = g
	a.done = gctx.Done()

	g.Go(func() error {
		if err := a.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.sched.Start(gctx)
		return nil
	})

	a.logger.Info("app: running",
		"addr", ln.Addr().String(),
		"relay", a.relay != nil,
		"poll_source", a.pollSource(),
		"interval", a.sched.Interval().String(),
		"persist_backends", len(a.persisters),
	)
	return nil
}

func (a *App) pollSource() string {
	if u := a.cfg.Settings.Poll.URL; u != "" {
		return u
	}
	return "in-process"
}

// Done is closed when the app begins shutting down, either because Stop was
// called, the Start context ended, or a component failed.
func (a *App) Done() <-chan struct{} { return a.done }

// Stop shuts everything down and returns the first component error, if any.
// Safe to call more than once.
func (a *App) Stop() error {
	a.stopOnce.Do(func() {
		a.logger.Info("app: shutting down")
		if a.cancel != nil {
			a.cancel()
		}
		if a.group != nil {
			a.stopErr = a.group.Wait()
		}
		a.closePersisters()
		a.logger.Info("app: shutdown complete")
	})
	return a.stopErr
}

func (a *App) closePersisters() {
	for _, p := range a.persisters {
		if err := p.Close(); err != nil {
			a.logger.Error("app: close persistence", "backend", p.name, "error", err.Error())
		}
	}
}

// Addr returns the bound listener address, or "" before Start.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Handler returns the fully wired HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Ingestor exposes the dashboard's state machine.
func (a *App) Ingestor() *poller.Ingestor { return a.ingestor }

// Scheduler exposes the poll scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Metrics exposes the Prometheus collectors.
func (a *App) Metrics() *telemetry.Metrics { return a.metrics }

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
