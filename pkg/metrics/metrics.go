// Package metrics provides Prometheus instrumentation for gotask components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for gotask components.
type Registry struct {
	// Task lifecycle metrics
	TasksScheduled        *prometheus.CounterVec
	TasksExecuted         *prometheus.CounterVec
	TasksPaused           *prometheus.CounterVec
	TasksCompleted        *prometheus.CounterVec
	TasksCanceled         *prometheus.CounterVec
	TasksFailed           *prometheus.CounterVec
	TaskExecutionDuration *prometheus.HistogramVec
	ProgressDelivered     *prometheus.CounterVec

	// Worker pool metrics
	WorkerPoolSize *prometheus.GaugeVec
	WorkerPoolBusy *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with the given Prometheus
// registerer, using the default "gotask" namespace.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithNamespace(reg, DefaultNamespace)
}

// NewRegistryWithNamespace is NewRegistry with a custom metric namespace.
func NewRegistryWithNamespace(reg prometheus.Registerer, namespace string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Registry{
		TasksScheduled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "tasks_scheduled_total",
				Help:      "Total number of tasks scheduled",
			},
			[]string{"scheduler_name"},
		),

		TasksExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "tasks_executed_total",
				Help:      "Total number of execution passes, including resumed ones",
			},
			[]string{"scheduler_name"},
		),

		TasksPaused: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "tasks_paused_total",
				Help:      "Total number of execution passes that ended in a pause",
			},
			[]string{"scheduler_name"},
		),

		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "tasks_completed_total",
				Help:      "Total number of tasks completed successfully",
			},
			[]string{"scheduler_name"},
		),

		TasksCanceled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "tasks_canceled_total",
				Help:      "Total number of tasks that ended canceled",
			},
			[]string{"scheduler_name"},
		),

		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "tasks_failed_total",
				Help:      "Total number of tasks that ended with a captured failure",
			},
			[]string{"scheduler_name"},
		),

		TaskExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "task_duration_seconds",
				Help:      "Time spent in a single execution pass",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scheduler_name"},
		),

		ProgressDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "progress_delivered_total",
				Help:      "Total number of progress payloads delivered to task owners",
			},
			[]string{"scheduler_name"},
		),

		WorkerPoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "size",
				Help:      "Current worker pool size",
			},
			[]string{"pool_name"},
		),

		WorkerPoolBusy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "busy_workers",
				Help:      "Number of workers currently executing a task",
			},
			[]string{"pool_name"},
		),
	}
}
