package store_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vpbank/routerpulse/models"
	"github.com/vpbank/routerpulse/pkg/routerpulse/store"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func mustParse(t *testing.T, body string) models.Snapshot {
	t.Helper()
	s, err := models.ParseSnapshot([]byte(body))
	if err != nil {
		t.Fatalf("ParseSnapshot(%s): %v", body, err)
	}
	return s
}

func TestGet_BeforeFirstPut(t *testing.T) {
	s := store.New(newFakeClock())

	if _, ok := s.Get(); ok {
		t.Error("Get should report no data before the first Put")
	}
	if _, err := s.Latest(); !errors.Is(err, store.ErrNoData) {
		t.Errorf("Latest err = %v, want ErrNoData", err)
	}
	if age := s.Age(); age != store.NeverUpdated {
		t.Errorf("Age = %v, want NeverUpdated", age)
	}
}

func TestPut_LastWriteWins(t *testing.T) {
	s := store.New(newFakeClock())

	s.Put(mustParse(t, `{"cpu":"0.5 0 0","mem":"1/2"}`))
	s.Put(mustParse(t, `{"cpu":"0.2 0 0"}`))

	rec, ok := s.Get()
	if !ok {
		t.Fatal("Get should report data")
	}
	if rec.Snapshot.CPU != "0.2 0 0" {
		t.Errorf("CPU = %q, want %q", rec.Snapshot.CPU, "0.2 0 0")
	}
	// No merge: mem from the first write must be gone.
	if rec.Snapshot.Mem != "" {
		t.Errorf("Mem = %q, want empty (no merge)", rec.Snapshot.Mem)
	}
}

func TestPut_ReceiptTimestamp(t *testing.T) {
	clk := newFakeClock()
	s := store.New(clk)

	rec := s.Put(mustParse(t, `{}`))
	if !rec.Timestamp.Equal(clk.Now()) {
		t.Errorf("Timestamp = %v, want receipt time %v", rec.Timestamp, clk.Now())
	}
	if !rec.StoredAt.Equal(clk.Now()) {
		t.Errorf("StoredAt = %v, want %v", rec.StoredAt, clk.Now())
	}
}

func TestPut_ExplicitTimestampKeptForDisplay(t *testing.T) {
	clk := newFakeClock()
	s := store.New(clk)

	rec := s.Put(mustParse(t, `{"_ts":1700000000000}`))
	if !rec.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("Timestamp = %v, want payload _ts", rec.Timestamp)
	}
	if s.Age() != 0 {
		t.Errorf("Age = %v, want 0 (measured from the put)", s.Age())
	}
}

func TestAge_GrowsAndResets(t *testing.T) {
	clk := newFakeClock()
	s := store.New(clk)

	s.Put(mustParse(t, `{}`))
	clk.Advance(4 * time.Second)
	if got := s.Age(); got != 4*time.Second {
		t.Errorf("Age = %v, want 4s", got)
	}
	clk.Advance(6 * time.Second)
	if got := s.Age(); got != 10*time.Second {
		t.Errorf("Age = %v, want 10s", got)
	}

	s.Put(mustParse(t, `{}`))
	if got := s.Age(); got != 0 {
		t.Errorf("Age after Put = %v, want 0", got)
	}
}

func TestIndependentInstances(t *testing.T) {
	a := store.New(nil)
	b := store.New(nil)

	a.Put(mustParse(t, `{"cpu":"1 1 1"}`))
	if _, ok := b.Get(); ok {
		t.Error("writes to one store must not leak into another")
	}
}

func TestConcurrentPutGet(t *testing.T) {
	s := store.New(nil)
	snap := mustParse(t, `{"cpu":"0.1 0 0"}`)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Put(snap)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Get()
			_ = s.Age()
		}()
	}
	wg.Wait()

	if _, ok := s.Get(); !ok {
		t.Error("expected data after concurrent puts")
	}
}
