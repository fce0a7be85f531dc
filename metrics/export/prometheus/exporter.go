package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ProjectSCARS/bentoauth"
	"github.com/ProjectSCARS/bentoauth/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() bentoauth.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter implements prometheus.Collector over an engine's metrics
// snapshot. Every collection reads the live counters.
type Exporter struct {
	source       metricsSource
	counterDescs map[bentoauth.MetricID]*prometheus.Desc
	histDescs    map[bentoauth.MetricID]*prometheus.Desc
	droppedDesc  *prometheus.Desc
}

// NewExporter creates a collector that reads from the given engine.
func NewExporter(engine *bentoauth.Engine) *Exporter {
	return NewExporterFromSource(engine)
}

// NewExporterFromSource creates a collector over a custom snapshot source.
func NewExporterFromSource(source metricsSource) *Exporter {
	e := &Exporter{
		source:       source,
		counterDescs: make(map[bentoauth.MetricID]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histDescs:    make(map[bentoauth.MetricID]*prometheus.Desc, len(internaldefs.HistogramDefs)),
		droppedDesc: prometheus.NewDesc(
			"bentoauth_audit_dropped_total",
			"Dropped audit events due to dispatcher backpressure.",
			nil, nil,
		),
	}
	for _, def := range internaldefs.CounterDefs {
		e.counterDescs[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for _, def := range internaldefs.HistogramDefs {
		e.histDescs[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return e
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, def := range internaldefs.CounterDefs {
		ch <- e.counterDescs[def.ID]
	}
	for _, def := range internaldefs.HistogramDefs {
		ch <- e.histDescs[def.ID]
	}
	ch <- e.droppedDesc
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	if e == nil || e.source == nil {
		return
	}

	snapshot := e.source.MetricsSnapshot()

	for _, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(
			e.counterDescs[def.ID],
			prometheus.CounterValue,
			float64(snapshot.Counters[def.ID]),
		)
	}

	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramBounds))
		for i, le := range internaldefs.HistogramBounds {
			buckets[le] = cumulative[i]
		}
		count := cumulative[len(cumulative)-1]
		// Per-sample sums are not tracked in core snapshots.
		ch <- prometheus.MustNewConstHistogram(e.histDescs[def.ID], count, 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(e.droppedDesc, prometheus.CounterValue, float64(e.source.AuditDropped()))
}

// Handler registers the exporter on a private registry and returns a
// scrape handler for it.
func (e *Exporter) Handler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(e)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
