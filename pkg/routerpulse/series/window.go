// Package series implements the fixed-capacity sliding windows that back the
// dashboard charts. Each Window is a strict FIFO: once full, every Append
// evicts exactly one sample (the oldest) before adding the new one.
package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/vpbank/routerpulse/models"
)

// DefaultCapacity is the number of samples kept per series.
const DefaultCapacity = 20

// ErrUnknownSeries is returned when a Set is asked for a name it was not
// constructed with.
var ErrUnknownSeries = errors.New("series: unknown series")

// ─────────────────────────────────────────────────────────────────────────────
// Window
// ─────────────────────────────────────────────────────────────────────────────

// Window is a ring buffer of samples ordered oldest → newest. It is not safe
// for concurrent use on its own; Set provides the locking.
type Window struct {
	buf   []models.Sample
	start int // index of the oldest sample
	n     int
}

// NewWindow creates an empty window. capacity <= 0 falls back to
// DefaultCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{buf: make([]models.Sample, capacity)}
}

// Append pushes one sample, evicting the oldest when the window is full.
// Non-finite values are stored as 0.
func (w *Window) Append(value float64, label string) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}
	s := models.Sample{Label: label, Value: value}

	if w.n == len(w.buf) {
		w.buf[w.start] = s
		w.start = (w.start + 1) % len(w.buf)
		return
	}
	w.buf[(w.start+w.n)%len(w.buf)] = s
	w.n++
}

// Len returns the number of samples currently held.
func (w *Window) Len() int { return w.n }

// Cap returns the fixed capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Samples returns a copy of the samples, oldest first.
func (w *Window) Samples() []models.Sample {
	out := make([]models.Sample, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Values returns a copy of the values, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)].Value
	}
	return out
}

// Labels returns a copy of the labels, parallel to Values.
func (w *Window) Labels() []string {
	out := make([]string, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)].Label
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Set
// ─────────────────────────────────────────────────────────────────────────────

// Set is a fixed collection of independently bounded, named windows.
// It is safe for concurrent use.
type Set struct {
	mu      sync.RWMutex
	windows map[string]*Window
}

// NewSet creates one window of the given capacity per name.
func NewSet(capacity int, names ...string) *Set {
	s := &Set{windows: make(map[string]*Window, len(names))}
	for _, name := range names {
		s.windows[name] = NewWindow(capacity)
	}
	return s
}

// NewChartSet creates the two dashboard series, "wan" and "cpu".
func NewChartSet(capacity int) *Set {
	return NewSet(capacity, models.SeriesWAN, models.SeriesCPU)
}

// Append pushes one (label, value) pair to the named series.
func (s *Set) Append(name string, value float64, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownSeries, name)
	}
	w.Append(value, label)
	return nil
}

// Values returns the named series' values oldest first, or nil for an
// unknown name.
func (s *Set) Values(name string) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.windows[name]; ok {
		return w.Values()
	}
	return nil
}

// Labels returns the named series' labels oldest first, or nil for an
// unknown name.
func (s *Set) Labels(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.windows[name]; ok {
		return w.Labels()
	}
	return nil
}

// Len returns the length of the named series (0 when unknown).
func (s *Set) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.windows[name]; ok {
		return w.Len()
	}
	return 0
}

// Names returns the series names in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.windows))
	for name := range s.windows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chart is a label/value projection of one series, shaped for chart data.
type Chart struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// Charts returns a consistent copy of every series.
func (s *Set) Charts() map[string]Chart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Chart, len(s.windows))
	for name, w := range s.windows {
		out[name] = Chart{Labels: w.Labels(), Values: w.Values()}
	}
	return out
}
