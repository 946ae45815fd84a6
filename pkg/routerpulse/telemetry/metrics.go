// Package telemetry exposes Prometheus metrics for the relay and dashboard.
//
// All collectors live on a private registry so tests can build as many
// independent instances as they like.
package telemetry

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vpbank/routerpulse/pkg/routerpulse/poller"
	"github.com/vpbank/routerpulse/pkg/routerpulse/series"
)

const namespace = "routerpulse"

// Metrics holds every collector. The zero value is not usable; call New.
type Metrics struct {
	reg *prometheus.Registry

	pollCycles    *prometheus.CounterVec
	pollDuration  prometheus.Histogram
	ingests       *prometheus.CounterVec
	persistErrors *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by outcome.",
		}, []string{"outcome"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of completed poll cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Payloads received on the ingress endpoint, by result.",
		}, []string{"result"}),
		persistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Failed best-effort persistence writes, by backend.",
		}, []string{"backend"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.reg.MustRegister(
		m.pollCycles,
		m.pollDuration,
		m.ingests,
		m.persistErrors,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry (for tests and custom exporters).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ─────────────────────────────────────────────────────────────────────────────
// Recording
// ─────────────────────────────────────────────────────────────────────────────

// ObserveCycle records one poll cycle. Register it with Ingestor.OnCycle.
func (m *Metrics) ObserveCycle(res poller.CycleResult) {
	m.pollCycles.WithLabelValues(string(res.Outcome)).Inc()
	if res.Outcome != poller.OutcomeSkipped {
		m.pollDuration.Observe(res.Duration.Seconds())
	}
}

// Ingest results.
const (
	IngestAccepted = "accepted"
	IngestRejected = "rejected"
)

// IncIngest counts one ingress payload.
func (m *Metrics) IncIngest(result string) {
	m.ingests.WithLabelValues(result).Inc()
}

// IncPersistError counts one failed persistence write.
func (m *Metrics) IncPersistError(backend string) {
	m.persistErrors.WithLabelValues(backend).Inc()
}

// WatchAge exports age() as the snapshot staleness gauge. age must return
// a negative duration when no snapshot has been stored yet; that is exported
// as -1.
func (m *Metrics) WatchAge(age func() time.Duration) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_age_seconds",
		Help:      "Seconds since the dashboard last stored a snapshot, -1 if never.",
	}, func() float64 {
		d := age()
		if d < 0 {
			return -1
		}
		return d.Seconds()
	}))
}

// WatchSeries exports the current length of every series in set.
func (m *Metrics) WatchSeries(set *series.Set) {
	for _, name := range set.Names() {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "series_length",
			Help:        "Current number of samples in a chart series.",
			ConstLabels: prometheus.Labels{"series": name},
		}, func() float64 {
			return float64(set.Len(name))
		}))
	}
}

// WatchGauge exports an arbitrary value, e.g. the websocket client count.
func (m *Metrics) WatchGauge(name, help string, fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// ─────────────────────────────────────────────────────────────────────────────
// HTTP middleware
// ─────────────────────────────────────────────────────────────────────────────

// Middleware records request counts and latency. Routes are labelled by their
// mux path template so label cardinality stays bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack is required by the websocket upgrade on /ws.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("telemetry: %T does not support hijacking", w.ResponseWriter)
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
