// Package metrics declares the Prometheus counters/histograms the worker
// pipeline updates alongside its structured log events. This is ops
// plumbing (throughput, failure counts), not the real-time analytics the
// specification excludes as a non-goal.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DownloadsTotal counts download attempts by outcome: start, complete,
	// retry.
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestor_downloads_total",
		Help: "Total download attempts by outcome.",
	}, []string{"outcome"})

	// JobsTotal counts completed worker-pipeline jobs by terminal status.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestor_jobs_total",
		Help: "Total processed jobs by terminal status.",
	}, []string{"status"})

	// JobFailuresTotal counts failed jobs by error class.
	JobFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestor_job_failures_total",
		Help: "Total job failures by error class.",
	}, []string{"error_class"})

	// DuplicatesSkippedTotal counts events dropped by the pre-download or
	// post-download dedup checks.
	DuplicatesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestor_duplicates_skipped_total",
		Help: "Total events skipped as duplicates.",
	}, []string{"stage"})

	// IndicatorsFoundTotal counts extracted IOCs by type.
	IndicatorsFoundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestor_indicators_found_total",
		Help: "Total IOCs extracted by indicator type.",
	}, []string{"indicator_type"})

	// QueueDepth reports the current number of buffered jobs.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingestor_queue_depth",
		Help: "Current number of jobs buffered in the queue.",
	})

	// JobDuration observes end-to-end per-job pipeline latency.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingestor_job_duration_seconds",
		Help:    "Per-job pipeline latency in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})
)
