// metrics.go - Prometheus-Metriken des Servers
// Beinhaltet: Run-Latenz-Histogramm, Run-Zaehler, geladene Modelle
package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgerun/edgerun/ml"
)

// Metrics holds the Prometheus collectors of the server
type Metrics struct {
	runLatency   *prometheus.HistogramVec
	runsTotal    *prometheus.CounterVec
	modelsLoaded prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance with its own registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		runLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgerun_run_duration_seconds",
				Help:    "Model run latency in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"backend"},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgerun_runs_total",
				Help: "Total number of model runs by backend and status",
			},
			[]string{"backend", "status"},
		),

		modelsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "edgerun_models_loaded",
				Help: "Number of currently loaded models",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.runLatency,
		m.runsTotal,
		m.modelsLoaded,
		collectors.NewGoCollector(),
	)

	return m
}

// ObserveRun records one run. It matches runner.RunObserver.
func (m *Metrics) ObserveRun(backend ml.Backend, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runsTotal.WithLabelValues(backend.String(), status).Inc()
	if err == nil {
		m.runLatency.WithLabelValues(backend.String()).Observe(d.Seconds())
	}
}

// SetModelsLoaded updates the loaded model gauge
func (m *Metrics) SetModelsLoaded(n int) {
	if m == nil {
		return
	}
	m.modelsLoaded.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
