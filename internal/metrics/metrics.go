// Package metrics exposes the Prometheus counters and histograms that
// instrument the indexing pipeline (C6) and the hybrid retriever (C9).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the process's Prometheus metrics. A nil *Collector is
// valid everywhere it's accepted: every method no-ops on a nil receiver so
// callers that don't care about metrics never have to construct one.
type Collector struct {
	PipelineRuns         *prometheus.CounterVec
	PipelineRunDuration  prometheus.Histogram
	PipelineFilesScanned prometheus.Counter
	PipelineObjectsTotal prometheus.Counter

	RetrievalDuration *prometheus.HistogramVec
	RetrievalResults  prometheus.Histogram
	FusionMethodTotal *prometheus.CounterVec
}

// NewCollector creates and registers the collector's metrics against reg.
// Pass prometheus.NewRegistry() in tests to avoid colliding with the
// process-wide default registry across parallel test runs.
func NewCollector(reg prometheus.Registerer) *Collector {
	const namespace = "amanmcp"
	f := promauto.With(reg)

	return &Collector{
		PipelineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total indexing pipeline runs by mode (full/incremental) and outcome (ok/error).",
		}, []string{"mode", "outcome"}),
		PipelineRunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Indexing pipeline run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		PipelineFilesScanned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_files_scanned_total",
			Help:      "Total files scanned across all pipeline runs.",
		}),
		PipelineObjectsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_objects_extracted_total",
			Help:      "Total code objects and document nodes extracted across all pipeline runs.",
		}),
		RetrievalDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Search query latency in seconds, by fusion method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"fusion_method"}),
		RetrievalResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results_returned",
			Help:      "Number of results returned per search query.",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		FusionMethodTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fusion_method_total",
			Help:      "Total hybrid searches by fusion method (rrf/dbsf).",
		}, []string{"method"}),
	}
}

// ObserveRetrieval records one Search call's latency and result count.
func (c *Collector) ObserveRetrieval(fusionMethod string, d time.Duration, resultCount int) {
	if c == nil {
		return
	}
	c.RetrievalDuration.WithLabelValues(fusionMethod).Observe(d.Seconds())
	c.RetrievalResults.Observe(float64(resultCount))
}

// IncFusionMethod records one hybrid_search call's fusion leg choice.
func (c *Collector) IncFusionMethod(method string) {
	if c == nil {
		return
	}
	c.FusionMethodTotal.WithLabelValues(method).Inc()
}

// ObservePipelineRun records one indexing run's outcome, duration, and
// scanned/extracted counts.
func (c *Collector) ObservePipelineRun(mode, outcome string, d time.Duration, filesScanned, objectsExtracted int) {
	if c == nil {
		return
	}
	c.PipelineRuns.WithLabelValues(mode, outcome).Inc()
	c.PipelineRunDuration.Observe(d.Seconds())
	c.PipelineFilesScanned.Add(float64(filesScanned))
	c.PipelineObjectsTotal.Add(float64(objectsExtracted))
}
