// Package metrics exposes Prometheus instrumentation for the extraction
// pipeline, replacing the teacher's in-memory MetricsCollector
// (internal/extraction/metrics.go) with client_golang counters/gauges so
// the numbers survive process restarts' worth of scraping and compose
// with the rest of the pack's prometheus usage (ChiaYuChang-weathercock,
// mdzesseis-log_capturer_go).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric the pipeline emits. Construct once per
// process and share it across the pipeline and batch scheduler.
type Registry struct {
	CacheHits       *prometheus.CounterVec
	ExtractionTotal *prometheus.CounterVec
	ExtractionSecs  *prometheus.HistogramVec
	LLMCallsTotal   *prometheus.CounterVec
	TemplateCount   *prometheus.GaugeVec
	BatchInFlight   prometheus.Gauge
}

// NewRegistry creates and registers the pipeline's metrics against reg.
// Pass prometheus.NewRegistry() in tests to avoid global-registry
// collisions across parallel test packages.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docxtract_cache_results_total",
			Help: "Cache lookups by tier and outcome.",
		}, []string{"tier", "outcome"}),
		ExtractionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docxtract_extractions_total",
			Help: "Completed extractions by resolution method.",
		}, []string{"label", "method"}),
		ExtractionSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docxtract_extraction_duration_seconds",
			Help:    "Wall-clock time to resolve one extraction request.",
			Buckets: prometheus.DefBuckets,
		}, []string{"label", "method"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docxtract_llm_calls_total",
			Help: "LLM provider invocations by outcome.",
		}, []string{"provider", "outcome"}),
		TemplateCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docxtract_templates_per_label",
			Help: "Number of stored templates per label.",
		}, []string{"label"}),
		BatchInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docxtract_batch_items_in_flight",
			Help: "Items currently being processed by the batch scheduler.",
		}),
	}

	reg.MustRegister(r.CacheHits, r.ExtractionTotal, r.ExtractionSecs, r.LLMCallsTotal, r.TemplateCount, r.BatchInFlight)
	return r
}

// Noop returns a Registry usable in tests that don't care about metrics,
// backed by a private registry so it never collides with other tests.
func Noop() *Registry {
	return NewRegistry(prometheus.NewRegistry())
}
