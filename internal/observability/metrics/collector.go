// Package metrics exposes cycle metrics to Prometheus and serves them, with a
// health check and optional pprof, on a small HTTP server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hype/internal/boost"
)

const namespace = "hype"

// Collector implements boost.Observer on its own registry.
type Collector struct {
	reg *prometheus.Registry

	decisions     *prometheus.CounterVec
	failures      *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	lastCycle     prometheus.Gauge
	lastFailed    prometheus.Gauge
}

var _ boost.Observer = (*Collector)(nil)

func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Per-post decisions by source server.",
			},
			[]string{"source", "decision"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_failures_total",
				Help:      "Sources abandoned mid-cycle, by stage.",
			},
			[]string{"source", "stage"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Wall time of a boost cycle.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		lastCycle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_cycle_timestamp_seconds",
				Help:      "Unix time the last boost cycle finished.",
			},
		),
		lastFailed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_cycle_failed_sources",
				Help:      "Sources that failed in the last boost cycle.",
			},
		),
	}
	c.reg.MustRegister(
		c.decisions,
		c.failures,
		c.cycleDuration,
		c.lastCycle,
		c.lastFailed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveDecision(source string, d boost.Decision) {
	c.decisions.WithLabelValues(source, d.String()).Inc()
}

func (c *Collector) ObserveSourceFailure(source string, stage boost.Stage) {
	c.failures.WithLabelValues(source, string(stage)).Inc()
}

func (c *Collector) ObserveCycle(r *boost.CycleReport) {
	if r == nil {
		return
	}
	c.cycleDuration.Observe(r.Duration().Seconds())
	c.lastCycle.Set(float64(r.Finished.Unix()))
	c.lastFailed.Set(float64(len(r.Failed())))
}

// Registry is exposed for tests and for callers adding their own collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}
