// Package metrics provides Prometheus instrumentation for the filter
// service. It exposes counters for evaluation throughput, histograms for
// decision latency, and gauges for cache and queue sizes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EvaluationsTotal counts evaluated messages, labeled by verdict:
	// "pass", "reject", or "error".
	EvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "filter_evaluations_total",
		Help: "Total number of messages evaluated",
	}, []string{"verdict"})

	// EvaluationLatency records end-to-end decision latency in seconds.
	EvaluationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "filter_evaluation_latency_seconds",
		Help:    "Message evaluation latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// ReconcileRunsTotal counts reconciler runs, labeled by outcome:
	// "ok" or "error".
	ReconcileRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "filter_reconcile_runs_total",
		Help: "Total number of cache reconciliation runs",
	}, []string{"outcome"})

	// CachedLists tracks the number of list records in the serving snapshot.
	CachedLists = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "filter_cached_lists",
		Help: "Current number of rule lists in the serving snapshot",
	})

	// CachedScopes tracks the number of scope tiers in the serving snapshot.
	CachedScopes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "filter_cached_scopes",
		Help: "Current number of scope tiers in the serving snapshot",
	})

	// PendingQueueSize tracks the pending-update queue lengths, labeled by
	// queue: "lists" or "scopes".
	PendingQueueSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "filter_pending_queue_size",
		Help: "Current number of entries in the pending-update queues",
	}, []string{"queue"})

	// ClassifierErrorsTotal counts failed external classifier calls,
	// labeled by classifier: "ad" or "llm".
	ClassifierErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "filter_classifier_errors_total",
		Help: "Total number of failed external classifier calls",
	}, []string{"classifier"})
)

func init() {
	prometheus.MustRegister(
		EvaluationsTotal,
		EvaluationLatency,
		ReconcileRunsTotal,
		CachedLists,
		CachedScopes,
		PendingQueueSize,
		ClassifierErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
