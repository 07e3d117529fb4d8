// Package metrics provides Prometheus instrumentation for gotask components.
//
// A Registry is always built against an explicit prometheus.Registerer; the
// package keeps no global registry, so two schedulers in one process never
// fight over collector registration unless they share a registerer on
// purpose.
//
// # Quick Start
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//
//	s := scheduler.NewWithConfig(scheduler.Config{
//		Name:     "assets",
//		Observer: scheduler.NewMetricsObserver(m, "assets"),
//	})
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # Available Metrics
//
// Task lifecycle (label scheduler_name):
//
//   - gotask_scheduler_tasks_scheduled_total
//   - gotask_scheduler_tasks_executed_total
//   - gotask_scheduler_tasks_paused_total
//   - gotask_scheduler_tasks_completed_total
//   - gotask_scheduler_tasks_canceled_total
//   - gotask_scheduler_tasks_failed_total
//   - gotask_scheduler_task_duration_seconds
//   - gotask_scheduler_progress_delivered_total
//
// Worker pool (label pool_name):
//
//   - gotask_workerpool_size
//   - gotask_workerpool_busy_workers
package metrics
