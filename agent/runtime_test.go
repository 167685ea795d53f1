package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/semflow/guideline"
	"github.com/c360studio/semflow/telemetry"
)

func testConfig(concurrency int) Config {
	return Config{
		ID:          "qa-1",
		Role:        "qa",
		Concurrency: concurrency,
		Timeout:     2 * time.Second,
	}
}

func okExecutor(_ context.Context, msg *Message) (*Result, error) {
	return &Result{TaskID: msg.TaskID, Status: StatusSuccess, Summary: "ok"}, nil
}

func validMessage(taskID string) *Message {
	return &Message{TaskID: taskID, MacroID: "stage-1", Meta: Meta{CreatedAt: time.Now()}}
}

func TestHandleMessageValidationNeverConsumesSlot(t *testing.T) {
	r, err := NewRuntime(testConfig(1), okExecutor, nil)
	if err != nil {
		t.Fatal(err)
	}

	res := r.HandleMessage(context.Background(), &Message{MacroID: "s"})
	if !res.IsError() {
		t.Fatal("expected validation error result")
	}
	if r.InFlight() != 0 {
		t.Errorf("validation failure consumed a slot: in-flight = %d", r.InFlight())
	}

	res = r.HandleMessage(context.Background(), nil)
	if !res.IsError() {
		t.Fatal("expected error result for nil message")
	}
}

func TestConcurrencyCap(t *testing.T) {
	const concurrency = 3
	const callers = 12

	var inFlight, peak atomic.Int64
	exec := func(_ context.Context, msg *Message) (*Result, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return &Result{TaskID: msg.TaskID, Status: StatusSuccess}, nil
	}

	r, err := NewRuntime(testConfig(concurrency), exec, nil)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.HandleMessage(context.Background(), validMessage("t"))
			if res.IsError() {
				t.Errorf("unexpected error result: %s", res.Err)
			}
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > concurrency {
		t.Errorf("peak concurrent executions = %d, want <= %d", got, concurrency)
	}
	if r.InFlight() != 0 {
		t.Errorf("slots leaked: in-flight = %d", r.InFlight())
	}
}

func TestTimeoutProducesErrorResult(t *testing.T) {
	cfg := testConfig(1)
	cfg.Timeout = time.Second
	slow := func(ctx context.Context, msg *Message) (*Result, error) {
		select {
		case <-time.After(10 * time.Second):
			return &Result{TaskID: msg.TaskID, Status: StatusSuccess}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r, err := NewRuntime(cfg, slow, nil)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	res := r.HandleMessage(context.Background(), validMessage("slow"))
	if !res.IsError() {
		t.Fatal("expected timeout error result")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout took %s, want ~1s", elapsed)
	}
	if r.InFlight() != 0 {
		t.Error("slot not released after timeout")
	}
}

func TestExecutorErrorAndPanicConverted(t *testing.T) {
	r, err := NewRuntime(testConfig(1), FailingExecutor("backend unavailable"), nil)
	if err != nil {
		t.Fatal(err)
	}
	res := r.HandleMessage(context.Background(), validMessage("t1"))
	if !res.IsError() || res.Err != "backend unavailable" {
		t.Errorf("unexpected result: %+v", res)
	}

	panicky := func(context.Context, *Message) (*Result, error) {
		panic("boom")
	}
	r2, err := NewRuntime(testConfig(1), panicky, nil)
	if err != nil {
		t.Fatal(err)
	}
	res = r2.HandleMessage(context.Background(), validMessage("t2"))
	if !res.IsError() {
		t.Fatal("expected panic to become an error result")
	}
	if r2.InFlight() != 0 {
		t.Error("slot not released after panic")
	}
}

func TestLifecycleEvents(t *testing.T) {
	sink := &recordingSink{}
	r, err := NewRuntime(testConfig(1), okExecutor, nil, WithMonitor(sink))
	if err != nil {
		t.Fatal(err)
	}
	r.HandleMessage(context.Background(), validMessage("ok"))

	types := sink.types()
	if len(types) != 2 || types[0] != telemetry.EventAgentStart || types[1] != telemetry.EventAgentFinish {
		t.Errorf("events = %v", types)
	}

	r2, err := NewRuntime(testConfig(1), FailingExecutor("nope"), nil, WithMonitor(sink))
	if err != nil {
		t.Fatal(err)
	}
	sink.reset()
	r2.HandleMessage(context.Background(), validMessage("bad"))
	types = sink.types()
	if len(types) != 2 || types[1] != telemetry.EventAgentError {
		t.Errorf("events = %v", types)
	}
}

func TestGuidelinesMergedIntoMessage(t *testing.T) {
	var seen *guideline.Set
	exec := func(_ context.Context, msg *Message) (*Result, error) {
		seen = msg.Guidelines
		return &Result{TaskID: msg.TaskID, Status: StatusSuccess}, nil
	}

	src := staticGuidelines{set: &guideline.Set{Categories: []guideline.Category{
		{Name: guideline.SectionInstructions, Entries: []string{"be precise"}},
	}}}
	r, err := NewRuntime(testConfig(1), exec, nil, WithGuidelines(src, "/src", "/root"))
	if err != nil {
		t.Fatal(err)
	}

	res := r.HandleMessage(context.Background(), validMessage("g"))
	if res.IsError() {
		t.Fatalf("unexpected error: %s", res.Err)
	}
	if seen == nil || seen.Entries(guideline.SectionInstructions)[0] != "be precise" {
		t.Error("guidelines were not merged into the message")
	}
}

func TestGuidelineFailureIsErrorResult(t *testing.T) {
	src := staticGuidelines{err: errors.New("permission denied")}
	r, err := NewRuntime(testConfig(1), okExecutor, nil, WithGuidelines(src, "/src", "/root"))
	if err != nil {
		t.Fatal(err)
	}
	res := r.HandleMessage(context.Background(), validMessage("g"))
	if !res.IsError() {
		t.Fatal("expected guideline read failure to produce an error result")
	}
	if r.InFlight() != 0 {
		t.Error("slot leaked on guideline failure")
	}
}

type staticGuidelines struct {
	set *guideline.Set
	err error
}

func (s staticGuidelines) Merge(_, _ string) (*guideline.Set, error) {
	return s.set, s.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (s *recordingSink) Record(ev telemetry.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) types() []telemetry.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]telemetry.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}
