// Package telemetry defines the lifecycle event stream emitted by the
// orchestration core and the sinks that consume it. Sinks are explicit
// dependencies: components receive a Sink at construction instead of
// publishing to a shared bus.
package telemetry

import (
	"log/slog"
	"time"
)

// EventType classifies a lifecycle event.
type EventType string

// Lifecycle event types emitted by agents and the meta-agent loop.
const (
	EventTaskQueued    EventType = "task_queued"
	EventTaskStarted   EventType = "task_started"
	EventTaskCompleted EventType = "task_completed"
	EventTaskFailed    EventType = "task_failed"
	EventTaskCancelled EventType = "task_cancelled"
	EventAgentStart    EventType = "agent_start"
	EventAgentFinish   EventType = "agent_finish"
	EventAgentError    EventType = "agent_error"
	EventHeartbeat     EventType = "heartbeat"
)

// Event is a single telemetry record.
type Event struct {
	Type     EventType     `json:"type"`
	TaskID   string        `json:"task_id,omitempty"`
	Role     string        `json:"role,omitempty"`
	Macro    string        `json:"macro,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	QueueLen int           `json:"queue_len"`
	At       time.Time     `json:"at"`
}

// Sink consumes telemetry events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ev Event)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ev Event) {
	for _, s := range m {
		s.Record(ev)
	}
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "telemetry")}
}

// Record implements Sink.
func (s *LogSink) Record(ev Event) {
	attrs := []any{
		"type", string(ev.Type),
		"queue_len", ev.QueueLen,
	}
	if ev.TaskID != "" {
		attrs = append(attrs, "task_id", ev.TaskID)
	}
	if ev.Role != "" {
		attrs = append(attrs, "role", ev.Role)
	}
	if ev.Macro != "" {
		attrs = append(attrs, "macro", ev.Macro)
	}
	if ev.Detail != "" {
		attrs = append(attrs, "detail", ev.Detail)
	}
	if ev.Duration > 0 {
		attrs = append(attrs, "duration", ev.Duration)
	}
	switch ev.Type {
	case EventTaskFailed, EventAgentError:
		s.logger.Warn("lifecycle event", attrs...)
	default:
		s.logger.Info("lifecycle event", attrs...)
	}
}

// Discard is a Sink that drops every event. Useful in tests and as a
// default when no telemetry is configured.
type Discard struct{}

// Record implements Sink.
func (Discard) Record(Event) {}
