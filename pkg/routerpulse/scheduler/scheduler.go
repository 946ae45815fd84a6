// Package scheduler runs a Job on a fixed period and accepts manual refresh
// triggers. All cycles run on the single scheduling goroutine.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 3 * time.Second

// ─────────────────────────────────────────────────────────────────────────────
// Interfaces for dependency injection
// ─────────────────────────────────────────────────────────────────────────────

// Job is one cycle of work, e.g. Ingestor.Poll or the agent's collect+push.
// The scheduler never runs two Jobs at once.
type Job func(ctx context.Context)

// Ticker abstracts time.Ticker so tests can fire ticks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker with period d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker is the production TickerFactory.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the scheduling cadence.
type Config struct {
	// Interval between periodic polls. Default: DefaultInterval.
	Interval time.Duration

	// NewTicker builds the period timer. Default: NewRealTicker.
	NewTicker TickerFactory
}

// Scheduler runs its Job once on Start, then once per tick and once per
// Trigger. A manual trigger does not reset the periodic timer.
type Scheduler struct {
	job       Job
	interval  time.Duration
	newTicker TickerFactory
	logger    *slog.Logger

	trigger chan struct{}
	done    chan struct{}
	cycles  atomic.Uint64
}

// New creates a Scheduler. It does NOT start automatically; call Start.
func New(cfg Config, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewRealTicker
	}
	return &Scheduler{
		job:       job,
		interval:  cfg.Interval,
		newTicker: cfg.NewTicker,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start runs the scheduling loop. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)

	s.logger.Info("scheduler: started", "interval", s.interval.String())

	ticker := s.newTicker(s.interval)
	defer ticker.Stop()

	// Poll immediately so the dashboard does not wait a full period.
	s.fire(ctx, "start")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped", "cycles", s.cycles.Load())
			return
		case <-ticker.C():
			s.fire(ctx, "tick")
		case <-s.trigger:
			s.fire(ctx, "manual")
		}
	}
}

// Trigger requests an immediate cycle. It never blocks; it returns false when
// a trigger is already pending, in which case the two requests coalesce.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stop waits for the scheduling loop to exit. The caller must cancel the
// context passed to Start before calling Stop.
func (s *Scheduler) Stop() {
	<-s.done
}

// Cycles returns how many times the Job has run (for monitoring / tests).
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

// Interval returns the configured polling period.
func (s *Scheduler) Interval() time.Duration { return s.interval }

func (s *Scheduler) fire(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	s.job(ctx)
	s.cycles.Add(1)
	s.logger.Debug("scheduler: fired job", "reason", reason)
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
