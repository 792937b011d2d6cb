package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// Derivation metrics
	DerivationsTotal   *prometheus.CounterVec
	DerivationDuration *prometheus.HistogramVec
	PayloadsDeleted    prometheus.Counter

	// Batch metrics
	BatchDuration    prometheus.Histogram
	BatchTracksTotal *prometheus.CounterVec

	// Catalog metrics
	CatalogProducts prometheus.Gauge
	CatalogTracks   prometheus.Gauge

	// Query metrics
	BoxQueryDuration   prometheus.Histogram
	BoxQueryCandidates prometheus.Histogram
}

// NewCollector registers the toolkit metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		DerivationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "derivations_total",
				Help:      "Total number of derivation requests by kind and outcome (created, cache_hit, error).",
			},
			[]string{"kind", "status"},
		),

		DerivationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "derivation_duration_seconds",
				Help:      "Time spent computing and persisting one derived product.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		PayloadsDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payloads_deleted_total",
				Help:      "Original payload files removed after successful derivation.",
			},
		),

		BatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Wall time of whole batch runs.",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		),

		BatchTracksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_tracks_total",
				Help:      "Per-track batch outcomes by status (succeeded, failed).",
			},
			[]string{"status"},
		),

		CatalogProducts: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_products",
				Help:      "Number of products in the archive index.",
			},
		),

		CatalogTracks: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_tracks",
				Help:      "Number of tracks in the archive index.",
			},
		),

		BoxQueryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "box_query_duration_seconds",
				Help:      "Time spent answering geographic box queries.",
				Buckets:   prometheus.DefBuckets,
			},
		),

		BoxQueryCandidates: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "box_query_candidates",
				Help:      "Number of candidate tracks returned per box query.",
				Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),
	}
}
