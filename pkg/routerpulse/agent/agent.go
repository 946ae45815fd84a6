package agent

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/vpbank/routerpulse/models"
)

// Source produces one snapshot per call.
type Source interface {
	Collect(ctx context.Context) (models.Snapshot, error)
}

// Agent couples a Source to an Output. Tick is the scheduler job.
type Agent struct {
	source Source
	output Output
	logger *slog.Logger

	pushed atomic.Uint64
	failed atomic.Uint64
}

// New creates an Agent.
func New(source Source, output Output, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Agent{source: source, output: output, logger: logger}
}

// Tick collects one snapshot and publishes it. A failed collect skips the
// publish; the relay keeps serving the previous snapshot.
func (a *Agent) Tick(ctx context.Context) {
	snap, err := a.source.Collect(ctx)
	if err != nil {
		a.failed.Add(1)
		a.logger.Warn("agent: collect failed, skipping tick", "error", err.Error())
		return
	}
	if err := a.output.Publish(ctx, snap); err != nil {
		a.failed.Add(1)
		a.logger.Warn("agent: publish failed", "error", err.Error())
		return
	}
	a.pushed.Add(1)
}

// Pushed returns the number of snapshots delivered.
func (a *Agent) Pushed() uint64 { return a.pushed.Load() }

// Failed returns the number of ticks that delivered nothing.
func (a *Agent) Failed() uint64 { return a.failed.Load() }

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
