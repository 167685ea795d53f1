package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type captureSink struct {
	events []Event
}

func (c *captureSink) Record(ev Event) {
	c.events = append(c.events, ev)
}

func TestMultiFanOut(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	m := Multi{a, b}

	m.Record(Event{Type: EventTaskQueued, TaskID: "t1"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d/%d", len(a.events), len(b.events))
	}
	if a.events[0].TaskID != "t1" {
		t.Errorf("unexpected task id %q", a.events[0].TaskID)
	}
}

func TestPromSinkCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSink("test", reg)
	if err != nil {
		t.Fatalf("NewPromSink: %v", err)
	}

	sink.Record(Event{Type: EventTaskQueued, QueueLen: 3})
	sink.Record(Event{Type: EventTaskStarted, QueueLen: 2})
	sink.Record(Event{Type: EventTaskCompleted, Duration: 40 * time.Millisecond, QueueLen: 2})
	sink.Record(Event{Type: EventTaskFailed, Duration: 10 * time.Millisecond, QueueLen: 2})

	if got := testutil.ToFloat64(sink.tasksQueued); got != 1 {
		t.Errorf("tasks_queued_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.tasksCompleted); got != 1 {
		t.Errorf("tasks_completed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.tasksFailed); got != 1 {
		t.Errorf("tasks_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.queueDepth); got != 2 {
		t.Errorf("queue_depth = %v, want 2", got)
	}
}

func TestPromSinkDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSink("dup", reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPromSink("dup", reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

type fakePublisher struct {
	subject string
	data    []byte
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return nil
}

func TestNATSSinkPayload(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "semflow.event", nil)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sink.Record(Event{
		Type:     EventTaskCompleted,
		TaskID:   "task-9",
		Macro:    "full-pipeline",
		Duration: time.Second,
		QueueLen: 1,
		At:       at,
	})

	if pub.subject != "semflow.event.task_completed" {
		t.Fatalf("subject = %q", pub.subject)
	}
	var decoded Event
	if err := json.Unmarshal(pub.data, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded.TaskID != "task-9" || decoded.Macro != "full-pipeline" {
		t.Errorf("payload round-trip mismatch: %+v", decoded)
	}
	if !decoded.At.Equal(at) {
		t.Errorf("timestamp mismatch: %v", decoded.At)
	}
}

func TestNATSSinkDefaultPrefix(t *testing.T) {
	sink := NewNATSSink(&fakePublisher{}, "", nil)
	if got := sink.Subject(EventHeartbeat); got != "semflow.event.heartbeat" {
		t.Errorf("Subject = %q", got)
	}
}
