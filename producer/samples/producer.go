// Package samples derives the charted scalars from a telemetry snapshot.
//
// Pipeline position:
//
//	poller (fetch) → producer/samples (derive) → series.Set (append)
//
// Derivation never fails: missing, malformed or non-finite inputs become 0.
// That coercion is deliberate and covered by tests.
package samples

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vpbank/routerpulse/models"
)

// LabelLayout is the display format of sample labels (local wall-clock time).
const LabelLayout = "15:04:05"

// ─────────────────────────────────────────────────────────────────────────────
// Derivation rules
// ─────────────────────────────────────────────────────────────────────────────

// WANSample returns the instantaneous WAN speed rounded half-up, or 0 when
// the snapshot has no wan object.
func WANSample(s models.Snapshot) float64 {
	if s.WAN == nil {
		return 0
	}
	return finiteOrZero(math.Floor(s.WAN.Speed + 0.5))
}

// CPUSample returns the leading number of the first whitespace-separated
// token of the cpu field (the 1-minute load average), or 0 when the token
// does not start with one. Trailing text is ignored, so "0.42," reads 0.42.
func CPUSample(s models.Snapshot) float64 {
	fields := strings.Fields(s.CPU)
	if len(fields) == 0 {
		return 0
	}
	num := numericPrefix(fields[0])
	if num == "" {
		return 0
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	return finiteOrZero(v)
}

// numericPrefix returns the longest prefix of tok that is a decimal number:
// optional sign, digits with an optional fraction, optional exponent.
func numericPrefix(tok string) string {
	i := 0
	if i < len(tok) && (tok[i] == '+' || tok[i] == '-') {
		i++
	}
	digits := 0
	for ; i < len(tok) && isDigit(tok[i]); i++ {
		digits++
	}
	if i < len(tok) && tok[i] == '.' {
		i++
		for ; i < len(tok) && isDigit(tok[i]); i++ {
			digits++
		}
	}
	if digits == 0 {
		return ""
	}
	end := i
	if i < len(tok) && (tok[i] == 'e' || tok[i] == 'E') {
		j := i + 1
		if j < len(tok) && (tok[j] == '+' || tok[j] == '-') {
			j++
		}
		k := j
		for ; k < len(tok) && isDigit(tok[k]); k++ {
		}
		if k > j {
			end = k
		}
	}
	return tok[:end]
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ─────────────────────────────────────────────────────────────────────────────
// Producer
// ─────────────────────────────────────────────────────────────────────────────

// Derived holds one sample per charted series for a single poll cycle.
type Derived struct {
	WAN models.Sample
	CPU models.Sample
}

// Producer turns a snapshot into its per-series samples.
type Producer interface {
	Produce(s models.Snapshot, at time.Time) Derived
}

// SampleProducer is the production Producer. It is stateless and safe for
// concurrent use.
type SampleProducer struct {
	loc    *time.Location
	logger *slog.Logger
}

// New constructs a SampleProducer. Labels are rendered in loc (nil means
// time.Local). Pass nil for a no-op logger.
func New(loc *time.Location, logger *slog.Logger) *SampleProducer {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &SampleProducer{loc: loc, logger: logger}
}

// Produce implements Producer.
func (p *SampleProducer) Produce(s models.Snapshot, at time.Time) Derived {
	label := at.In(p.loc).Format(LabelLayout)
	d := Derived{
		WAN: models.Sample{Label: label, Value: WANSample(s)},
		CPU: models.Sample{Label: label, Value: CPUSample(s)},
	}

	p.logger.Debug("samples: derived",
		"label", label,
		"wan", d.WAN.Value,
		"cpu", d.CPU.Value,
	)
	return d
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
