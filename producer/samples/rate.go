package samples

import (
	"sync"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Counter delta state
// ─────────────────────────────────────────────────────────────────────────────

// Rollover boundaries for SNMP counters.
const (
	WrapCounter32 = uint64(^uint32(0))
	WrapCounter64 = ^uint64(0)
)

// counterEntry holds the previously observed value and the time it was recorded.
type counterEntry struct {
	Value  uint64
	SeenAt time.Time
}

// CounterState tracks the last known value of every named counter so that
// the router agent can turn cumulative byte counters into rates. It is safe
// for concurrent use.
type CounterState struct {
	mu      sync.Mutex
	entries map[string]counterEntry
}

// NewCounterState creates a ready-to-use CounterState.
func NewCounterState() *CounterState {
	return &CounterState{entries: make(map[string]counterEntry)}
}

// DeltaResult is returned by Delta. Both fields are meaningful only when Valid
// is true.
type DeltaResult struct {
	// Delta is the increase since the last sample, counter wraps accounted for.
	Delta uint64

	// Elapsed is the time between the previous sample and this one.
	Elapsed time.Duration

	// Valid is false on the first observation of a key, when the
	// timestamps do not move forward, or after a 64-bit counter reset.
	Valid bool
}

// PerSecond returns Delta / Elapsed, or 0 when the result is not valid.
func (r DeltaResult) PerSecond() float64 {
	if !r.Valid || r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Delta) / r.Elapsed.Seconds()
}

// Delta records the current counter value and, if a previous sample exists,
// returns the delta and elapsed time. If current < previous a 32-bit counter
// is assumed to have wrapped once at wrap; a 64-bit counter is treated as
// reset and the result is not valid.
func (s *CounterState) Delta(key string, current uint64, now time.Time, wrap uint64) DeltaResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.entries[key]
	s.entries[key] = counterEntry{Value: current, SeenAt: now}

	if !exists {
		return DeltaResult{}
	}

	elapsed := now.Sub(prev.SeenAt)
	if elapsed <= 0 {
		return DeltaResult{}
	}

	var delta uint64
	switch {
	case current >= prev.Value:
		delta = current - prev.Value
	case wrap == WrapCounter64:
		// A 64-bit counter does not wrap in practice; a drop means the
		// device restarted. The new value becomes the baseline.
		return DeltaResult{}
	default:
		delta = (wrap - prev.Value) + current + 1
	}

	return DeltaResult{Delta: delta, Elapsed: elapsed, Valid: true}
}

// Reset forgets every counter, e.g. after the agent re-targets a router.
func (s *CounterState) Reset() {
	s.mu.Lock()
	s.entries = make(map[string]counterEntry)
	s.mu.Unlock()
}
