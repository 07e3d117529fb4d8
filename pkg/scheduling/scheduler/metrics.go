package scheduler

import (
	"time"

	"github.com/vnykmshr/gotask/pkg/metrics"
)

// MetricsObserver records scheduler lifecycle events in a metrics.Registry.
type MetricsObserver struct {
	NopObserver
	registry *metrics.Registry
	name     string
}

// NewMetricsObserver creates an observer labelling every series with name.
// A nil registry yields an observer that records nothing.
func NewMetricsObserver(registry *metrics.Registry, name string) Observer {
	if registry == nil {
		return NopObserver{}
	}
	return &MetricsObserver{registry: registry, name: name}
}

func (m *MetricsObserver) TaskScheduled(*Task) {
	m.registry.TasksScheduled.WithLabelValues(m.name).Inc()
}

func (m *MetricsObserver) TaskExecuted(_ *Task, _ ExecutorID, elapsed time.Duration, paused bool, _ error) {
	m.registry.TasksExecuted.WithLabelValues(m.name).Inc()
	m.registry.TaskExecutionDuration.WithLabelValues(m.name).Observe(elapsed.Seconds())
	if paused {
		m.registry.TasksPaused.WithLabelValues(m.name).Inc()
	}
}

func (m *MetricsObserver) ProgressDelivered(_ *Task, n int) {
	m.registry.ProgressDelivered.WithLabelValues(m.name).Add(float64(n))
}

func (m *MetricsObserver) TaskTerminated(_ *Task, final State, err error) {
	switch final {
	case Complete:
		m.registry.TasksCompleted.WithLabelValues(m.name).Inc()
	case Canceled:
		m.registry.TasksCanceled.WithLabelValues(m.name).Inc()
	}
	if err != nil {
		m.registry.TasksFailed.WithLabelValues(m.name).Inc()
	}
}
