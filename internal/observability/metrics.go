package observability

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// File outcomes recorded by ScanMetrics.
const (
	OutcomeResolved = "resolved"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// ScanMetrics holds the counters of one scan run on a private registry, so a
// run can be exported as a node-exporter textfile without a metrics server.
// All methods are safe on a nil receiver.
type ScanMetrics struct {
	registry *prometheus.Registry

	files           *prometheus.CounterVec
	references      *prometheus.CounterVec
	edges           prometheus.Counter
	documentLatency prometheus.Histogram
	scanDuration    prometheus.Gauge
	lastRun         prometheus.Gauge
}

// NewScanMetrics registers the scan metrics on a fresh registry.
func NewScanMetrics() *ScanMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &ScanMetrics{
		registry: reg,
		files: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadrefs_files_total",
				Help: "Files seen during the scan by outcome",
			},
			[]string{"outcome"},
		),
		references: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadrefs_references_total",
				Help: "External references reported by the engine",
			},
			[]string{"virtual"},
		),
		edges: factory.NewCounter(prometheus.CounterOpts{
			Name: "cadrefs_edges_total",
			Help: "Dependency edges written to the report",
		}),
		documentLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cadrefs_document_duration_seconds",
			Help:    "Time spent opening, querying and closing one document",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		scanDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cadrefs_scan_duration_seconds",
			Help: "Wall time of the last scan",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cadrefs_last_run_timestamp_seconds",
			Help: "Unix time the last scan finished",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *ScanMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordFile counts one file with the given outcome.
func (m *ScanMetrics) RecordFile(outcome string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(outcome).Inc()
}

// RecordReference counts one reference returned by the engine.
func (m *ScanMetrics) RecordReference(virtual bool) {
	if m == nil {
		return
	}
	m.references.WithLabelValues(strconv.FormatBool(virtual)).Inc()
}

// RecordEdges adds n edges.
func (m *ScanMetrics) RecordEdges(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.edges.Add(float64(n))
}

// ObserveDocument records the time spent on one document.
func (m *ScanMetrics) ObserveDocument(d time.Duration) {
	if m == nil {
		return
	}
	m.documentLatency.Observe(d.Seconds())
}

// RecordRun stores the total scan duration and the completion time.
func (m *ScanMetrics) RecordRun(d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.scanDuration.Set(d.Seconds())
	m.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes every metric in the Prometheus text format. The file
// is replaced atomically.
func (m *ScanMetrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
