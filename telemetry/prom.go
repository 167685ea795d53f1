package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink exposes lifecycle events as Prometheus metrics. Collectors
// are registered against an explicit registry so tests can inspect them
// without touching the default registerer.
type PromSink struct {
	tasksQueued    prometheus.Counter
	tasksStarted   prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	tasksCancelled prometheus.Counter
	agentErrors    prometheus.Counter
	queueDepth     prometheus.Gauge
	taskDuration   prometheus.Histogram
}

// NewPromSink creates a PromSink and registers its collectors with reg.
func NewPromSink(namespace string, reg prometheus.Registerer) (*PromSink, error) {
	if namespace == "" {
		namespace = "semflow"
	}
	s := &PromSink{
		tasksQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_queued_total",
			Help:      "Tasks accepted into the queue.",
		}),
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_started_total",
			Help:      "Tasks moved from queued to running.",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Tasks that finished successfully.",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_failed_total",
			Help:      "Tasks that finished with an error result.",
		}),
		tasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_cancelled_total",
			Help:      "Tasks cancelled before completion.",
		}),
		agentErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_errors_total",
			Help:      "Agent invocations that produced an error result.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks currently queued.",
		}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall-clock duration of completed tasks.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	collectors := []prometheus.Collector{
		s.tasksQueued, s.tasksStarted, s.tasksCompleted, s.tasksFailed,
		s.tasksCancelled, s.agentErrors, s.queueDepth, s.taskDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Record implements Sink.
func (s *PromSink) Record(ev Event) {
	s.queueDepth.Set(float64(ev.QueueLen))
	switch ev.Type {
	case EventTaskQueued:
		s.tasksQueued.Inc()
	case EventTaskStarted:
		s.tasksStarted.Inc()
	case EventTaskCompleted:
		s.tasksCompleted.Inc()
		s.taskDuration.Observe(ev.Duration.Seconds())
	case EventTaskFailed:
		s.tasksFailed.Inc()
		s.taskDuration.Observe(ev.Duration.Seconds())
	case EventTaskCancelled:
		s.tasksCancelled.Inc()
	case EventAgentError:
		s.agentErrors.Inc()
	}
}
