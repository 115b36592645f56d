package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firmlens_runs_started_total",
			Help: "Total number of runs started, by trigger (start or resume)",
		},
		[]string{"trigger"},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firmlens_runs_completed_total",
			Help: "Total number of runs reaching a terminal step",
		},
		[]string{"terminal_agent"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "firmlens_run_duration_seconds",
			Help:    "Wall time from start or resume to suspension or terminal step",
			Buckets: prometheus.DefBuckets,
		},
	)

	RunsSuspended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firmlens_runs_suspended_total",
			Help: "Total number of runs suspended awaiting clarification",
		},
	)

	SuspendedRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "firmlens_runs_suspended",
			Help: "Runs currently suspended awaiting user input",
		},
	)

	// Agent metrics
	AgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firmlens_agent_executions_total",
			Help: "Total number of agent step executions",
		},
		[]string{"agent", "status"},
	)

	AgentExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "firmlens_agent_execution_duration_ms",
			Help:    "Agent step execution duration in milliseconds",
			Buckets: []float64{50, 100, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"agent"},
	)

	// Research metrics
	SearchConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "firmlens_search_confidence",
			Help:    "Confidence score (0-10) reported per research attempt",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	ForcedTerminations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firmlens_forced_terminations_total",
			Help: "Runs forced to proceed after exhausting a retry budget",
		},
		[]string{"budget"},
	)

	// Checkpoint metrics
	CheckpointOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firmlens_checkpoint_ops_total",
			Help: "Checkpoint store operations",
		},
		[]string{"op", "status"},
	)

	// Streaming metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "firmlens_stream_subscribers",
			Help: "Active event stream subscribers",
		},
	)
)
