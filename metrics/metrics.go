// Package metrics exports pipeline activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/augustoroman/bookends/pipeline"
)

// Metrics holds the pipeline metrics. It implements pipeline.Observer.
type Metrics struct {
	HandlerCalls     *prometheus.CounterVec
	HandlerDuration  *prometheus.HistogramVec
	Dispatches       *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
}

var _ pipeline.Observer = (*Metrics)(nil)

// New creates the pipeline metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HandlerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookends_handler_calls_total",
				Help: "Pipeline handler invocations by result: proceed, veto or error.",
			},
			[]string{"handler", "phase", "result"},
		),
		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "bookends_handler_duration_seconds",
				Help: "Time spent in each pipeline handler.",
				// 100µs .. 1s
				Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.1, 0.25, 1},
			},
			[]string{"handler", "phase"},
		),
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookends_dispatches_total",
				Help: "Requests dispatched by outcome: proceeded, vetoed or failed.",
			},
			[]string{"outcome"},
		),
		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bookends_dispatch_duration_seconds",
				Help:    "Total time of a dispatch including the downstream handler.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
	}

	reg.MustRegister(
		m.HandlerCalls,
		m.HandlerDuration,
		m.Dispatches,
		m.DispatchDuration,
	)

	return m
}

// HandlerDone implements pipeline.Observer.
func (m *Metrics) HandlerDone(name string, phase pipeline.Phase, proceed bool, elapsed time.Duration, err error) {
	result := "proceed"
	switch {
	case err != nil:
		result = "error"
	case !proceed && phase == pipeline.Before:
		result = "veto"
	}
	m.HandlerCalls.WithLabelValues(name, phase.String(), result).Inc()
	m.HandlerDuration.WithLabelValues(name, phase.String()).Observe(elapsed.Seconds())
}

// DispatchDone implements pipeline.Observer.
func (m *Metrics) DispatchDone(_ string, out pipeline.Outcome, elapsed time.Duration, err error) {
	outcome := "proceeded"
	switch {
	case err != nil:
		outcome = "failed"
	case !out.Proceeded:
		outcome = "vetoed"
	}
	m.Dispatches.WithLabelValues(outcome).Inc()
	m.DispatchDuration.Observe(elapsed.Seconds())
}

// Handler returns the HTTP handler for the /metrics endpoint of the default
// registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns the HTTP handler for the /metrics endpoint of g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
