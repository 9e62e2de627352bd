package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the correlation engine.
type Metrics struct {
	CyclesTotal           prometheus.Counter
	CycleDuration         prometheus.Histogram
	ObservationsRecorded  prometheus.Counter
	NormalizationWarnings prometheus.Counter
	DetectorFailures      *prometheus.CounterVec
	FindingsCreated       *prometheus.CounterVec
	FindingsResolved      *prometheus.CounterVec
	ActiveFindings        *prometheus.GaugeVec
	TrackedNetworks       prometheus.Gauge
	EvictionsTotal        prometheus.Counter
}

// New registers and returns the engine metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		CyclesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rfsentry_cycles_total",
			Help: "Number of scan cycles processed",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rfsentry_cycle_duration_seconds",
			Help:    "Wall time of one full scan cycle",
			Buckets: prometheus.DefBuckets,
		}),
		ObservationsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rfsentry_observations_recorded_total",
			Help: "Normalized observations appended to the store",
		}),
		NormalizationWarnings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rfsentry_normalization_warnings_total",
			Help: "Raw scan records dropped during normalization",
		}),
		DetectorFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rfsentry_detector_failures_total",
			Help: "Detector invocations that failed and were isolated",
		}, []string{"detector"}),
		FindingsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rfsentry_findings_created_total",
			Help: "New findings created",
		}, []string{"type", "severity"}),
		FindingsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rfsentry_findings_resolved_total",
			Help: "Findings auto-resolved after the grace period",
		}, []string{"type"}),
		ActiveFindings: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rfsentry_active_findings",
			Help: "Currently open findings",
		}, []string{"type"}),
		TrackedNetworks: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rfsentry_tracked_networks",
			Help: "BSSIDs currently held in the observation store",
		}),
		EvictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rfsentry_store_evictions_total",
			Help: "Network histories evicted as stale",
		}),
	}
}
