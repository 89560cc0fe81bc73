// Package metrics provides Prometheus metrics for the scheduling engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waveplan_tasks_dispatched_total",
			Help: "Total number of tasks dispatched to workers",
		},
		[]string{"profile"},
	)
	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waveplan_tasks_completed_total",
			Help: "Total number of tasks completed successfully",
		},
		[]string{"profile"},
	)
	TasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waveplan_tasks_failed_total",
			Help: "Total number of task failures by category",
		},
		[]string{"category"},
	)
	TasksRetried = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waveplan_tasks_retried_total",
			Help: "Total number of task retries scheduled",
		},
	)
	TasksEscalated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waveplan_tasks_escalated_total",
			Help: "Total number of tasks escalated for manual intervention",
		},
	)
	WavesEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waveplan_waves_emitted_total",
			Help: "Total number of schedule waves emitted",
		},
	)
	TasksByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waveplan_tasks",
			Help: "Current number of tasks by status",
		},
		[]string{"status"},
	)
	MaxParallelTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waveplan_max_parallel_tasks",
			Help: "Current adaptive parallelism cap",
		},
	)
	ConfidenceThreshold = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waveplan_confidence_threshold",
			Help: "Current dependency confidence threshold",
		},
	)
	TaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waveplan_task_duration_seconds",
			Help:    "Reported task execution duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)
	BottlenecksDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waveplan_bottlenecks_detected_total",
			Help: "Total number of detected bottlenecks by type",
		},
		[]string{"type"},
	)
)
