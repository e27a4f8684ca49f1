package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for syncs and upstream calls.
type Metrics struct {
	Syncs             *prometheus.CounterVec // labels: status={ok,failed}
	RecordsUpserted   *prometheus.CounterVec // labels: source={weekly,short}
	NormalizeWarnings prometheus.Counter
	SyncDuration      prometheus.Histogram

	UpstreamRequests *prometheus.CounterVec // labels: endpoint={forecast,area}, outcome={success,error,circuit_open}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Syncs,
		m.RecordsUpserted,
		m.NormalizeWarnings,
		m.SyncDuration,
		m.UpstreamRequests,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests
// can build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jma_forecast",
			Name:      "syncs_total",
			Help:      "Region syncs by outcome.",
		}, []string{"status"}),
		RecordsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jma_forecast",
			Name:      "records_upserted_total",
			Help:      "Forecast records written to the store by data source.",
		}, []string{"source"}),
		NormalizeWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jma_forecast",
			Name:      "normalize_warnings_total",
			Help:      "Missing series or fields skipped during normalization.",
		}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jma_forecast",
			Name:      "sync_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-store cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jma_forecast",
			Name:      "upstream_requests_total",
			Help:      "Requests to the JMA feed by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
	}
}
