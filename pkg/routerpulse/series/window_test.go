package series_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/vpbank/routerpulse/models"
	"github.com/vpbank/routerpulse/pkg/routerpulse/series"
)

func TestWindow_BelowCapacity(t *testing.T) {
	w := series.NewWindow(20)
	for i := 1; i <= 5; i++ {
		w.Append(float64(i), fmt.Sprintf("t%02d", i))
	}

	if w.Len() != 5 {
		t.Fatalf("Len = %d, want 5", w.Len())
	}
	vals := w.Values()
	labels := w.Labels()
	for i := 0; i < 5; i++ {
		if vals[i] != float64(i+1) {
			t.Errorf("Values[%d] = %v, want %v", i, vals[i], i+1)
		}
		if want := fmt.Sprintf("t%02d", i+1); labels[i] != want {
			t.Errorf("Labels[%d] = %q, want %q", i, labels[i], want)
		}
	}
}

func TestWindow_EvictsOldestFirst(t *testing.T) {
	w := series.NewWindow(20)
	for i := 1; i <= 27; i++ {
		w.Append(float64(i), fmt.Sprintf("t%02d", i))
		if w.Len() > 20 {
			t.Fatalf("capacity invariant broken after append %d: Len = %d", i, w.Len())
		}
	}

	if w.Len() != 20 {
		t.Fatalf("Len = %d, want 20", w.Len())
	}
	vals := w.Values()
	for i, v := range vals {
		if want := float64(i + 8); v != want {
			t.Errorf("Values[%d] = %v, want %v", i, v, want)
		}
	}
	if got := w.Labels()[0]; got != "t08" {
		t.Errorf("oldest label = %q, want t08", got)
	}
	if got := w.Labels()[19]; got != "t27" {
		t.Errorf("newest label = %q, want t27", got)
	}
}

func TestWindow_ExactlyFullThenOne(t *testing.T) {
	w := series.NewWindow(3)
	w.Append(1, "a")
	w.Append(2, "b")
	w.Append(3, "c")
	w.Append(4, "d")

	got := w.Samples()
	want := []models.Sample{{Label: "b", Value: 2}, {Label: "c", Value: 3}, {Label: "d", Value: 4}}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Samples[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWindow_NonFiniteCoercedToZero(t *testing.T) {
	w := series.NewWindow(5)
	w.Append(math.NaN(), "nan")
	w.Append(math.Inf(1), "+inf")
	w.Append(math.Inf(-1), "-inf")

	for i, v := range w.Values() {
		if v != 0 {
			t.Errorf("Values[%d] = %v, want 0", i, v)
		}
	}
}

func TestWindow_DefaultCapacity(t *testing.T) {
	if c := series.NewWindow(0).Cap(); c != series.DefaultCapacity {
		t.Errorf("Cap = %d, want %d", c, series.DefaultCapacity)
	}
}

func TestWindow_ReturnsCopies(t *testing.T) {
	w := series.NewWindow(3)
	w.Append(1, "a")
	vals := w.Values()
	vals[0] = 99
	if w.Values()[0] != 1 {
		t.Error("mutating the returned slice must not affect the window")
	}
}

func TestSet_IndependentSeries(t *testing.T) {
	s := series.NewChartSet(20)
	for i := 0; i < 25; i++ {
		if err := s.Append(models.SeriesWAN, float64(i), "x"); err != nil {
			t.Fatalf("Append wan: %v", err)
		}
	}
	if err := s.Append(models.SeriesCPU, 0.5, "x"); err != nil {
		t.Fatalf("Append cpu: %v", err)
	}

	if got := s.Len(models.SeriesWAN); got != 20 {
		t.Errorf("wan Len = %d, want 20", got)
	}
	if got := s.Len(models.SeriesCPU); got != 1 {
		t.Errorf("cpu Len = %d, want 1", got)
	}
}

func TestSet_UnknownSeries(t *testing.T) {
	s := series.NewChartSet(20)
	err := s.Append("disk", 1, "x")
	if !errors.Is(err, series.ErrUnknownSeries) {
		t.Errorf("err = %v, want ErrUnknownSeries", err)
	}
	if s.Values("disk") != nil || s.Labels("disk") != nil {
		t.Error("unknown series projections should be nil")
	}
}

func TestSet_NamesAndCharts(t *testing.T) {
	s := series.NewChartSet(4)
	_ = s.Append(models.SeriesCPU, 0.42, "12:00:00")

	names := s.Names()
	if len(names) != 2 || names[0] != "cpu" || names[1] != "wan" {
		t.Errorf("Names = %v, want [cpu wan]", names)
	}

	charts := s.Charts()
	cpu := charts[models.SeriesCPU]
	if len(cpu.Values) != 1 || cpu.Values[0] != 0.42 || cpu.Labels[0] != "12:00:00" {
		t.Errorf("cpu chart = %+v", cpu)
	}
	if wan := charts[models.SeriesWAN]; len(wan.Values) != 0 {
		t.Errorf("wan chart = %+v, want empty", wan)
	}
}
