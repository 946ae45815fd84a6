package samples_test

import (
	"testing"
	"time"

	"github.com/vpbank/routerpulse/models"
	"github.com/vpbank/routerpulse/producer/samples"
)

func parse(t *testing.T, body string) models.Snapshot {
	t.Helper()
	s, err := models.ParseSnapshot([]byte(body))
	if err != nil {
		t.Fatalf("ParseSnapshot(%s): %v", body, err)
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Derivation rules
// ─────────────────────────────────────────────────────────────────────────────

func TestWANSample(t *testing.T) {
	cases := []struct {
		body string
		want float64
	}{
		{`{"wan":{"speed":512.7}}`, 513},
		{`{"wan":{"speed":512.5}}`, 513},
		{`{"wan":{"speed":512.4}}`, 512},
		{`{"wan":{"speed":10}}`, 10},
		{`{"wan":{}}`, 0},
		{`{"wan":{"speed":"fast"}}`, 0},
		{`{}`, 0},
	}
	for _, tc := range cases {
		if got := samples.WANSample(parse(t, tc.body)); got != tc.want {
			t.Errorf("WANSample(%s) = %v, want %v", tc.body, got, tc.want)
		}
	}
}

func TestCPUSample(t *testing.T) {
	cases := []struct {
		body string
		want float64
	}{
		{`{"cpu":"0.42 0.10 0.01"}`, 0.42},
		{`{"cpu":"  1.5\t0.2 0.1"}`, 1.5},
		{`{"cpu":"bad data"}`, 0},
		{`{"cpu":""}`, 0},
		{`{"cpu":"NaN 0 0"}`, 0},
		{`{"cpu":"Inf 0 0"}`, 0},
		{`{"cpu":"Infinity"}`, 0},
		{`{"cpu":"0.42, 0.10, 0.01"}`, 0.42},
		{`{"cpu":"1.5abc"}`, 1.5},
		{`{"cpu":"-.5x"}`, -0.5},
		{`{"cpu":"2e1, 1"}`, 20},
		{`{"cpu":"3e, 1"}`, 3},
		{`{"cpu":"1e999"}`, 0},
		{`{"cpu":".,"}`, 0},
		{`{}`, 0},
	}
	for _, tc := range cases {
		if got := samples.CPUSample(parse(t, tc.body)); got != tc.want {
			t.Errorf("CPUSample(%s) = %v, want %v", tc.body, got, tc.want)
		}
	}
}

func TestSampleProducer_Produce(t *testing.T) {
	p := samples.New(time.UTC, nil)
	at := time.Date(2026, 10, 15, 9, 5, 7, 0, time.UTC)

	d := p.Produce(parse(t, `{"cpu":"0.5 0 0","wan":{"speed":10}}`), at)

	if d.WAN.Value != 10 || d.CPU.Value != 0.5 {
		t.Errorf("Derived = %+v", d)
	}
	if d.WAN.Label != "09:05:07" || d.CPU.Label != "09:05:07" {
		t.Errorf("labels = %q / %q, want 09:05:07", d.WAN.Label, d.CPU.Label)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// CounterState
// ─────────────────────────────────────────────────────────────────────────────

func TestCounterState_FirstObservationInvalid(t *testing.T) {
	cs := samples.NewCounterState()
	r := cs.Delta("wan.rx", 100, time.Now(), samples.WrapCounter64)
	if r.Valid {
		t.Error("first observation should not be valid")
	}
	if r.PerSecond() != 0 {
		t.Errorf("PerSecond = %v, want 0", r.PerSecond())
	}
}

func TestCounterState_Rate(t *testing.T) {
	cs := samples.NewCounterState()
	t0 := time.Now()
	cs.Delta("wan.rx", 1000, t0, samples.WrapCounter64)
	r := cs.Delta("wan.rx", 6000, t0.Add(5*time.Second), samples.WrapCounter64)

	if !r.Valid || r.Delta != 5000 {
		t.Fatalf("result = %+v, want delta 5000", r)
	}
	if got := r.PerSecond(); got != 1000 {
		t.Errorf("PerSecond = %v, want 1000", got)
	}
}

func TestCounterState_Counter32Wrap(t *testing.T) {
	cs := samples.NewCounterState()
	t0 := time.Now()
	cs.Delta("c", samples.WrapCounter32-9, t0, samples.WrapCounter32)
	r := cs.Delta("c", 10, t0.Add(time.Second), samples.WrapCounter32)

	if !r.Valid || r.Delta != 20 {
		t.Errorf("result = %+v, want delta 20", r)
	}
}

func TestCounterState_Counter64DropIsReset(t *testing.T) {
	cs := samples.NewCounterState()
	t0 := time.Now()
	cs.Delta("c", 9_000_000_000, t0, samples.WrapCounter64)
	if r := cs.Delta("c", 1000, t0.Add(time.Second), samples.WrapCounter64); r.Valid {
		t.Errorf("result = %+v, want invalid after a drop", r)
	}
	r := cs.Delta("c", 3000, t0.Add(2*time.Second), samples.WrapCounter64)
	if !r.Valid || r.Delta != 2000 {
		t.Errorf("result = %+v, want delta 2000 from the new baseline", r)
	}
}

func TestCounterState_NonMonotonicTime(t *testing.T) {
	cs := samples.NewCounterState()
	t0 := time.Now()
	cs.Delta("c", 1, t0, samples.WrapCounter64)
	if r := cs.Delta("c", 2, t0, samples.WrapCounter64); r.Valid {
		t.Error("zero elapsed time should be invalid")
	}
}

func TestCounterState_Reset(t *testing.T) {
	cs := samples.NewCounterState()
	t0 := time.Now()
	cs.Delta("c", 1, t0, samples.WrapCounter64)
	cs.Reset()
	if r := cs.Delta("c", 2, t0.Add(time.Second), samples.WrapCounter64); r.Valid {
		t.Error("observation after Reset should be treated as first")
	}
}
