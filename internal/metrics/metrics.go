// Package metrics registers the Prometheus collectors for merging,
// submissions and exports.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nercollab_merges_total",
		Help: "Merge runs by policy",
	}, []string{"policy"})

	mergedAnnotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nercollab_merged_annotations_total",
		Help: "Merged annotations emitted by policy",
	}, []string{"policy"})

	mergeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nercollab_merge_duration_seconds",
		Help:    "Merge duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{"policy"})

	submissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nercollab_submissions_total",
		Help: "Annotator submissions accepted by the service",
	})

	spansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nercollab_submitted_spans_total",
		Help: "Submitted spans by validation result",
	}, []string{"result"})

	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nercollab_exports_total",
		Help: "Workspace exports by format and result",
	}, []string{"format", "result"})
)

// ObserveMerge records one merge run and how many annotations it produced.
func ObserveMerge(policy string, emitted int, took time.Duration) {
	mergesTotal.WithLabelValues(policy).Inc()
	mergedAnnotations.WithLabelValues(policy).Add(float64(emitted))
	mergeDuration.WithLabelValues(policy).Observe(took.Seconds())
}

// ObserveSubmission records one submission and its per-span validation outcome.
func ObserveSubmission(accepted, rejected int) {
	submissionsTotal.Inc()
	spansTotal.WithLabelValues("accepted").Add(float64(accepted))
	spansTotal.WithLabelValues("rejected").Add(float64(rejected))
}

func ObserveExport(format string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	exportsTotal.WithLabelValues(format, result).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
