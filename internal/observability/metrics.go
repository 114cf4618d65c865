package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wms"

// Metrics holds the Prometheus collectors of the WMS server.
type Metrics struct {
	// Availability scan metrics.
	FilesScanned   *prometheus.CounterVec // labels: outcome={ok,unsupported,empty,error}
	FieldsIndexed  prometheus.Gauge
	LayersIndexed  prometheus.Gauge
	ScanDuration   prometheus.Histogram
	DuplicateField prometheus.Counter

	// Request metrics.
	Requests     *prometheus.CounterVec   // labels: request, outcome={ok,error}
	PlotDuration *prometheus.HistogramVec // labels: kind={map,legend}
	PlotCache    *prometheus.CounterVec   // labels: result={hit,miss}
}

func newMetrics(help bool) *Metrics {
	h := func(s string) string {
		if help {
			return s
		}
		return ""
	}
	return &Metrics{
		FilesScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_scanned_total",
			Help:      h("Data files scanned by outcome."),
		}, []string{"outcome"}),
		FieldsIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fields_indexed",
			Help:      h("Fields reachable through the availability index."),
		}),
		LayersIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layers_indexed",
			Help:      h("Layers in the availability index."),
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      h("Duration of an availability load."),
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		DuplicateField: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_fields_total",
			Help:      h("Fields dropped because their layer already held the same time and level."),
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      h("WMS requests by request type and outcome."),
		}, []string{"request", "outcome"}),
		PlotDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plot_duration_seconds",
			Help:      h("Plot program run time."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		PlotCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plot_cache_total",
			Help:      h("Map image cache lookups by result."),
		}, []string{"result"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.FilesScanned,
		m.FieldsIndexed,
		m.LayersIndexed,
		m.ScanDuration,
		m.DuplicateField,
		m.Requests,
		m.PlotDuration,
		m.PlotCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics with no registration to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
