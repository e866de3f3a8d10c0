// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesProcessed counts pipeline runs by outcome (ok, error).
	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sradg_batches_processed_total",
		Help: "Pipeline batches processed, labeled by outcome.",
	}, []string{"outcome"})

	// AnomaliesFlagged counts rows the detector labeled anomalous.
	AnomaliesFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sradg_anomalies_flagged_total",
		Help: "Rows flagged anomalous by the detector.",
	})

	// AnomaliesAutoResolved counts anomalies resolved without human review.
	AnomaliesAutoResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sradg_anomalies_auto_resolved_total",
		Help: "Anomalies auto-resolved by the agent.",
	})

	// CapabilityFailures counts per-row collaborator failures by operation
	// (categorize, summarize, ticket, persist, notify).
	CapabilityFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sradg_capability_failures_total",
		Help: "Collaborator failures degraded to sentinels, labeled by operation.",
	}, []string{"operation"})

	// PipelineDuration observes end-to-end batch latency.
	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sradg_pipeline_duration_seconds",
		Help:    "End-to-end pipeline batch duration.",
		Buckets: prometheus.DefBuckets,
	})
)
