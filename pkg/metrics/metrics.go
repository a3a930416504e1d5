// Package metrics defines the Prometheus metric collectors used by index
// builds and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Build states reported by BuildState.
const (
	StateNotStarted float64 = 0
	StateRunning    float64 = 1
	StateFinalized  float64 = 2
	StateFailed     float64 = 3
)

// Metrics holds all Prometheus collectors for an index build.
type Metrics struct {
	DocsIndexedTotal     prometheus.Counter
	ProgressReportsTotal prometheus.Counter
	SegmentFlushesTotal  *prometheus.CounterVec
	SegmentMergesTotal   prometheus.Counter
	MergedDocsTotal      prometheus.Counter
	ActiveSegments       prometheus.Gauge
	BuildDuration        prometheus.Histogram
	BuildState           prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry registers the collectors with reg and serves them from g.
// Tests pass a fresh prometheus.NewRegistry() for both.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "status_indexer_docs_indexed_total",
				Help: "Total documents submitted to the index backend.",
			},
		),
		ProgressReportsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "status_indexer_progress_reports_total",
				Help: "Total progress observations emitted by the build driver.",
			},
		),
		SegmentFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "status_indexer_segment_flushes_total",
				Help: "Total segment flush operations by status.",
			},
			[]string{"status"},
		),
		SegmentMergesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "status_indexer_segment_merges_total",
				Help: "Total segment merges, automatic and final.",
			},
		),
		MergedDocsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "status_indexer_segment_merged_docs_total",
				Help: "Total stored documents rewritten by segment merges.",
			},
		),
		ActiveSegments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "status_indexer_active_segments",
				Help: "Number of segments currently in the local index.",
			},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "status_indexer_build_duration_seconds",
				Help:    "Wall time of completed builds in seconds.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 10800},
			},
		),
		BuildState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "status_indexer_build_state",
				Help: "Build state (0=not started, 1=running, 2=finalized, 3=failed).",
			},
		),
		gatherer: g,
	}

	reg.MustRegister(
		m.DocsIndexedTotal,
		m.ProgressReportsTotal,
		m.SegmentFlushesTotal,
		m.SegmentMergesTotal,
		m.MergedDocsTotal,
		m.ActiveSegments,
		m.BuildDuration,
		m.BuildState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
