package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of nats.Conn the sink needs. Satisfied by
// *nats.Conn; tests substitute an in-memory recorder.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes lifecycle events as JSON to per-type subjects
// under a configurable prefix, e.g. semflow.event.task_completed.
// Publish failures are logged and dropped; telemetry must never stall
// the drain loop.
type NATSSink struct {
	conn   Publisher
	prefix string
	logger *slog.Logger
}

// NewNATSSink creates a sink that publishes through conn.
func NewNATSSink(conn Publisher, prefix string, logger *slog.Logger) *NATSSink {
	if prefix == "" {
		prefix = "semflow.event"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSink{conn: conn, prefix: prefix, logger: logger.With("component", "telemetry-nats")}
}

// Connect dials the NATS server at url and returns a sink over the
// resulting connection.
func Connect(url, prefix string, logger *slog.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("semflow-telemetry"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewNATSSink(conn, prefix, logger), nil
}

// Subject returns the publish subject for an event type.
func (s *NATSSink) Subject(t EventType) string {
	return s.prefix + "." + string(t)
}

// Record implements Sink.
func (s *NATSSink) Record(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("marshal telemetry event", "error", err)
		return
	}
	if err := s.conn.Publish(s.Subject(ev.Type), data); err != nil {
		s.logger.Warn("publish telemetry event", "subject", s.Subject(ev.Type), "error", err)
	}
}
