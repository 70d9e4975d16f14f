// Package metrics exposes prometheus instrumentation for the scan pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics tracks scan outcomes, vision latency and ledger writes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ScanOutcomes   *prometheus.CounterVec
	VisionDuration *prometheus.HistogramVec
	RecordDuration prometheus.Histogram
	PointsAwarded  *prometheus.CounterVec
}

// New registers all pipeline metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScanOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recycle_scan_outcomes_total",
			Help: "Processed scans by terminal state and reason",
		}, []string{"state", "reason"}),
		VisionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recycle_vision_request_duration_seconds",
			Help:    "Duration of vision analysis calls by result",
			Buckets: durationBuckets,
		}, []string{"result"}),
		RecordDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "recycle_ledger_record_duration_seconds",
			Help:    "Duration of the ledger record transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		PointsAwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recycle_points_awarded_total",
			Help: "Points committed to the ledger by material",
		}, []string{"material"}),
	}
}

// ObserveOutcome counts one finished scan.
func (m *Metrics) ObserveOutcome(state, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.ScanOutcomes.WithLabelValues(state, reason).Inc()
}

// ObserveVision records a vision call that started at start.
func (m *Metrics) ObserveVision(result string, start time.Time) {
	if m == nil {
		return
	}
	m.VisionDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// ObserveRecord records a ledger write that started at start.
func (m *Metrics) ObserveRecord(start time.Time) {
	if m == nil {
		return
	}
	m.RecordDuration.Observe(time.Since(start).Seconds())
}

// AddPoints counts points committed for a material.
func (m *Metrics) AddPoints(material string, pts int64) {
	if m == nil || pts <= 0 {
		return
	}
	m.PointsAwarded.WithLabelValues(material).Add(float64(pts))
}
