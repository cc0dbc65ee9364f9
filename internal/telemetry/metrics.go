// Package telemetry exposes the engine's Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the registry and instruments for one engine instance.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal       prometheus.Counter
	RunErrors       prometheus.Counter
	StageDuration   *prometheus.HistogramVec
	PillarsPresent  prometheus.Gauge
	PillarScore     *prometheus.GaugeVec
	LatestComposite prometheus.Gauge
}

// NewMetrics builds a self-contained metrics registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aibps_runs_total",
			Help: "Completed pipeline runs",
		}),
		RunErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aibps_run_errors_total",
			Help: "Pipeline runs that failed",
		}),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aibps_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"stage"},
		),
		PillarsPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aibps_pillars_present",
			Help: "Pillars contributing to the latest composite",
		}),
		PillarScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aibps_pillar_score",
				Help: "Latest normalized score per pillar (0-100)",
			},
			[]string{"pillar"},
		),
		LatestComposite: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aibps_composite_latest",
			Help: "Latest composite pressure score (0-100)",
		}),
	}

	m.registry.MustRegister(
		m.RunsTotal,
		m.RunErrors,
		m.StageDuration,
		m.PillarsPresent,
		m.PillarScore,
		m.LatestComposite,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the raw metric families, used by tests and health
// reporting.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}
