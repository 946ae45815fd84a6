package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/vpbank/routerpulse/models"
	"github.com/vpbank/routerpulse/pkg/routerpulse/series"
	"github.com/vpbank/routerpulse/pkg/routerpulse/store"
	"github.com/vpbank/routerpulse/producer/samples"
)

// Status is the connection flag shown on the dashboard.
type Status string

const (
	StatusPending Status = "pending"
	StatusLive    Status = "live"
	StatusOffline Status = "offline"
)

// CycleResult describes one completed (or skipped) call to Poll.
type CycleResult struct {
	Outcome   Outcome
	Status    Status
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// View is a consistent copy of everything the presenter needs, taken under
// the lock that guards cycle updates.
type View struct {
	Record    store.Record
	HasData   bool
	Status    Status
	Age       time.Duration
	Charts    map[string]series.Chart
	LastError string
	LastCycle time.Time
}

// Config wires the Ingestor to its collaborators. Only Fetcher is required.
type Config struct {
	Fetcher Fetcher

	// Producer derives the chart samples. Default: samples.New(nil, logger).
	Producer samples.Producer

	// Store receives every successfully fetched snapshot. Default: a new store.
	Store *store.SnapshotStore

	// Series must contain the "wan" and "cpu" series.
	// Default: series.NewChartSet(series.DefaultCapacity).
	Series *series.Set

	// Clock drives labels and cycle timestamps. Default: store.RealClock.
	Clock store.Clock

	// FetchTimeout bounds each Fetch. Zero means no extra deadline.
	FetchTimeout time.Duration
}

// Ingestor runs the fetch → derive → store cycle. Each successful cycle puts
// the snapshot and appends both samples as one atomic update; a failed cycle
// mutates nothing but the status flag.
type Ingestor struct {
	fetcher   Fetcher
	producer  samples.Producer
	snapshots *store.SnapshotStore
	charts    *series.Set
	clock     store.Clock
	timeout   time.Duration
	logger    *slog.Logger

	// cycle admits one Poll at a time; extra callers are dropped.
	cycle sync.Mutex

	mu        sync.RWMutex
	status    Status
	lastErr   string
	lastCycle time.Time

	obsMu     sync.RWMutex
	observers []func(CycleResult)
}

// New validates cfg and returns a ready Ingestor in the pending state.
func New(cfg Config, logger *slog.Logger) (*Ingestor, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("poller: fetcher is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = store.RealClock{}
	}
	if cfg.Producer == nil {
		cfg.Producer = samples.New(nil, logger)
	}
	if cfg.Store == nil {
		cfg.Store = store.New(cfg.Clock)
	}
	if cfg.Series == nil {
		cfg.Series = series.NewChartSet(series.DefaultCapacity)
	}
	names := cfg.Series.Names()
	for _, want := range []string{models.SeriesWAN, models.SeriesCPU} {
		if !slices.Contains(names, want) {
			return nil, fmt.Errorf("poller: series set lacks %q: %w", want, series.ErrUnknownSeries)
		}
	}

	return &Ingestor{
		fetcher:   cfg.Fetcher,
		producer:  cfg.Producer,
		snapshots: cfg.Store,
		charts:    cfg.Series,
		clock:     cfg.Clock,
		timeout:   cfg.FetchTimeout,
		logger:    logger,
		status:    StatusPending,
	}, nil
}

// OnCycle registers fn to be called after every Poll, skipped ones included.
// Observers run on the polling goroutine and must not block.
func (i *Ingestor) OnCycle(fn func(CycleResult)) {
	i.obsMu.Lock()
	i.observers = append(i.observers, fn)
	i.obsMu.Unlock()
}

// Poll runs one cycle. Failures are absorbed: they are logged, reflected in
// the returned result and the status flag, and never retried here.
func (i *Ingestor) Poll(ctx context.Context) CycleResult {
	if !i.cycle.TryLock() {
		res := CycleResult{
			Outcome:   OutcomeSkipped,
			Status:    i.Status(),
			Err:       ErrCycleInProgress,
			StartedAt: i.clock.Now(),
		}
		i.logger.Debug("poller: cycle dropped, another is in progress")
		i.notify(res)
		return res
	}
	defer i.cycle.Unlock()

	start := i.clock.Now()
	snap, err := i.fetch(ctx)

	res := CycleResult{Outcome: Classify(err), Err: err, StartedAt: start}
	if err != nil {
		i.mu.Lock()
		i.status = StatusOffline
		i.lastErr = err.Error()
		i.lastCycle = start
		i.mu.Unlock()

		if errors.Is(err, ErrNoData) {
			i.logger.Info("poller: relay has no data yet")
		} else {
			i.logger.Warn("poller: cycle failed",
				"outcome", string(res.Outcome),
				"error", err.Error(),
			)
		}
		res.Status = StatusOffline
	} else {
		d := i.producer.Produce(snap, i.clock.Now())

		i.mu.Lock()
		i.snapshots.Put(snap)
		// Both series are verified in New, so neither append can fail.
		_ = i.charts.Append(models.SeriesWAN, d.WAN.Value, d.WAN.Label)
		_ = i.charts.Append(models.SeriesCPU, d.CPU.Value, d.CPU.Label)
		i.status = StatusLive
		i.lastErr = ""
		i.lastCycle = start
		i.mu.Unlock()

		res.Status = StatusLive
	}

	res.Duration = i.clock.Now().Sub(start)
	i.logger.Debug("poller: cycle complete",
		"outcome", string(res.Outcome),
		"status", string(res.Status),
		"duration_ms", res.Duration.Milliseconds(),
	)
	i.notify(res)
	return res
}

func (i *Ingestor) fetch(ctx context.Context) (models.Snapshot, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	return i.fetcher.Fetch(ctx)
}

func (i *Ingestor) notify(res CycleResult) {
	i.obsMu.RLock()
	obs := i.observers
	i.obsMu.RUnlock()
	for _, fn := range obs {
		fn(res)
	}
}

// Status returns the current connection flag.
func (i *Ingestor) Status() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status
}

// View returns a consistent copy of the dashboard state.
func (i *Ingestor) View() View {
	i.mu.RLock()
	defer i.mu.RUnlock()

	rec, has := i.snapshots.Get()
	return View{
		Record:    rec,
		HasData:   has,
		Status:    i.status,
		Age:       i.snapshots.Age(),
		Charts:    i.charts.Charts(),
		LastError: i.lastErr,
		LastCycle: i.lastCycle,
	}
}

// Store exposes the snapshot store the Ingestor writes to.
func (i *Ingestor) Store() *store.SnapshotStore { return i.snapshots }

// Series exposes the chart series the Ingestor appends to.
func (i *Ingestor) Series() *series.Set { return i.charts }
