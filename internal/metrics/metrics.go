// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts requests handled by the admin API.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// JobRunsTotal counts finished job runs by terminal status.
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_job_runs_total",
			Help: "Total number of finished job runs.",
		},
		[]string{"job_name", "status"},
	)

	// JobLaunchRejectedTotal counts launches refused before any step ran.
	JobLaunchRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_job_launch_rejected_total",
			Help: "Total number of job launches rejected at admission.",
		},
		[]string{"job_name", "reason"},
	)

	// StepExecutionsTotal counts finished step executions by terminal status.
	StepExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_step_executions_total",
			Help: "Total number of finished step executions.",
		},
		[]string{"step", "status"},
	)

	// ItemsTotal counts items per step and outcome (read, filtered, written).
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_items_total",
			Help: "Total number of items handled by chunk steps.",
		},
		[]string{"step", "outcome"},
	)

	// ChunkSize observes the number of items handed to the writer per commit.
	ChunkSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_chunk_size",
			Help:    "Number of items per written chunk.",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"step"},
	)

	// SchedulerTicksTotal counts scheduler firings by outcome (launched, skipped, rejected).
	SchedulerTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_scheduler_ticks_total",
			Help: "Total number of scheduler ticks.",
		},
		[]string{"job_name", "outcome"},
	)
)
