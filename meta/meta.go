package meta

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/semflow/agent"
	"github.com/c360studio/semflow/fabric"
	"github.com/c360studio/semflow/macro"
	"github.com/c360studio/semflow/telemetry"
)

// MacroRunner executes one macro invocation. Satisfied by
// *macro.Orchestrator.
type MacroRunner interface {
	Run(ctx context.Context, name string, seed agent.Message) (*macro.Result, error)
}

// MetaAgent is the top-level orchestration loop. A single drain
// goroutine, guarded by the processing flag, works the queue until it
// is empty; concurrent enqueues never start a second drain, and a task
// enqueued mid-drain is picked up by the same loop.
type MetaAgent struct {
	state   *State
	sched   Scheduler
	runner  MacroRunner
	monitor telemetry.Sink
	logger  *slog.Logger

	base context.Context

	ctxMu    sync.Mutex
	contexts map[string][]fabric.Packet

	procMu     sync.Mutex
	processing bool
	wg         sync.WaitGroup
}

// New creates a MetaAgent. monitor may be nil.
func New(state *State, runner MacroRunner, monitor telemetry.Sink, logger *slog.Logger) *MetaAgent {
	if monitor == nil {
		monitor = telemetry.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetaAgent{
		state:    state,
		runner:   runner,
		monitor:  monitor,
		logger:   logger.With("component", "meta-agent"),
		base:     context.Background(),
		contexts: make(map[string][]fabric.Packet),
	}
}

// Start binds the drain loop's lifetime to ctx. Without it the loop
// runs under the background context.
func (m *MetaAgent) Start(ctx context.Context) {
	m.base = ctx
}

// Wait blocks until any active drain loop exits.
func (m *MetaAgent) Wait() {
	m.wg.Wait()
}

// SetContext stores the context packets a task will execute with. An
// explicitly empty slice is valid context; a task whose id was never
// given context is completed as a data failure instead of executed.
func (m *MetaAgent) SetContext(taskID string, packets []fabric.Packet) {
	m.ctxMu.Lock()
	m.contexts[taskID] = packets
	m.ctxMu.Unlock()
}

func (m *MetaAgent) takeContext(taskID string) ([]fabric.Packet, bool) {
	m.ctxMu.Lock()
	defer m.ctxMu.Unlock()
	pkts, ok := m.contexts[taskID]
	if ok {
		delete(m.contexts, taskID)
	}
	return pkts, ok
}

// Enqueue validates and queues a task, then makes sure a drain loop is
// active. A missing id is generated; a missing macro name is an error.
func (m *MetaAgent) Enqueue(ctx context.Context, t Task) (Task, error) {
	if t.Macro == "" {
		return Task{}, fmt.Errorf("meta: task macro name is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.RequestedAt.IsZero() {
		t.RequestedAt = time.Now().UTC()
	}
	if err := m.state.Enqueue(ctx, t); err != nil {
		return Task{}, err
	}
	m.emit(telemetry.Event{Type: telemetry.EventTaskQueued, TaskID: t.ID, Macro: t.Macro})
	m.kick()
	return t, nil
}

// Cancel removes a task from the queue or running bookkeeping. Any
// context stored for the task is dropped with it.
func (m *MetaAgent) Cancel(ctx context.Context, id string) bool {
	ok := m.state.Cancel(ctx, id)
	if ok {
		m.ctxMu.Lock()
		delete(m.contexts, id)
		m.ctxMu.Unlock()
		m.emit(telemetry.Event{Type: telemetry.EventTaskCancelled, TaskID: id})
	}
	return ok
}

// State returns a snapshot of the queue, running set, completed list,
// and counters.
func (m *MetaAgent) State() Snapshot {
	return m.state.Snapshot()
}

// kick starts the drain loop unless one is already processing.
func (m *MetaAgent) kick() {
	m.procMu.Lock()
	defer m.procMu.Unlock()
	if m.processing {
		return
	}
	m.processing = true
	m.wg.Add(1)
	go m.drain()
}

// drain works the queue until empty. The exit check and the processing
// flag clear happen under the same lock kick uses, so an enqueue racing
// the shutdown either lands before the emptiness check or starts a
// fresh loop afterwards.
func (m *MetaAgent) drain() {
	defer m.wg.Done()
	for {
		if err := m.base.Err(); err != nil {
			m.procMu.Lock()
			m.processing = false
			m.procMu.Unlock()
			m.heartbeat()
			return
		}

		runCtx, cancel := context.WithCancel(m.base)
		task, ok := m.state.Promote(m.sched.Next, cancel)
		if !ok {
			cancel()
			m.procMu.Lock()
			if m.state.QueuedLen() == 0 {
				m.processing = false
				m.procMu.Unlock()
				m.heartbeat()
				return
			}
			m.procMu.Unlock()
			continue
		}

		m.runTask(runCtx, task)
		cancel()
	}
}

// runTask executes one task's macro to completion. Failures never halt
// the drain loop.
func (m *MetaAgent) runTask(ctx context.Context, task Task) {
	m.emit(telemetry.Event{Type: telemetry.EventTaskStarted, TaskID: task.ID, Macro: task.Macro})
	started := time.Now().UTC()

	packets, ok := m.takeContext(task.ID)
	if !ok {
		// Data error: scheduled task has no stored context.
		rec := Record{
			Task:       task,
			Success:    false,
			Detail:     "no stored context for task",
			FinishedAt: time.Now().UTC(),
		}
		if m.state.Complete(ctx, rec) {
			m.emit(telemetry.Event{
				Type:     telemetry.EventTaskFailed,
				TaskID:   task.ID,
				Macro:    task.Macro,
				Detail:   rec.Detail,
				Duration: time.Since(started),
			})
		}
		return
	}

	seed := agent.Message{
		TaskID:  task.ID,
		MacroID: task.Macro,
		Payload: task.Payload,
		Context: packets,
		Meta: agent.Meta{
			Priority:  task.Priority,
			CreatedAt: task.RequestedAt,
			Source:    task.Owner,
		},
	}

	result, err := m.runMacro(ctx, task.Macro, seed)

	rec := Record{
		Task:       task,
		Result:     result,
		Success:    err == nil && result != nil && result.Success,
		FinishedAt: time.Now().UTC(),
	}
	if err != nil {
		rec.Detail = err.Error()
	}

	if !m.state.Complete(ctx, rec) {
		// Task was cancelled while running; result is dropped.
		return
	}

	ev := telemetry.Event{
		TaskID:   task.ID,
		Macro:    task.Macro,
		Duration: time.Since(started),
		Detail:   rec.Detail,
	}
	if rec.Success {
		ev.Type = telemetry.EventTaskCompleted
	} else {
		ev.Type = telemetry.EventTaskFailed
	}
	m.emit(ev)
}

// runMacro guards against panics in role executors reaching the loop.
func (m *MetaAgent) runMacro(ctx context.Context, name string, seed agent.Message) (result *macro.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("macro execution panic: %v", rec)
			m.logger.Error("macro execution panic", "macro", name, "task_id", seed.TaskID, "panic", rec)
		}
	}()
	return m.runner.Run(ctx, name, seed)
}

func (m *MetaAgent) heartbeat() {
	m.emit(telemetry.Event{Type: telemetry.EventHeartbeat})
}

func (m *MetaAgent) emit(ev telemetry.Event) {
	ev.QueueLen = m.state.QueuedLen()
	ev.At = time.Now().UTC()
	m.monitor.Record(ev)
}
