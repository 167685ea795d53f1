package meta

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics are the state counters exposed through snapshots.
type Metrics struct {
	Enqueued  int64 `json:"enqueued"`
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// Snapshot is a point-in-time copy of the state.
type Snapshot struct {
	Queued    []Task   `json:"queued"`
	Running   []Task   `json:"running"`
	Completed []Record `json:"completed"`
	Metrics   Metrics  `json:"metrics"`
}

type runningTask struct {
	task      Task
	cancel    context.CancelFunc
	startedAt time.Time
}

// State holds the queued/running/completed bookkeeping. All collection
// mutations go through one mutex; the drain loop and direct
// enqueue/cancel calls are the only writers.
type State struct {
	mu        sync.Mutex
	queued    []Task
	running   map[string]*runningTask
	completed []Record

	enqueued  atomic.Int64
	started   atomic.Int64
	done      atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64

	journal Journal
	logger  *slog.Logger
}

// NewState creates empty state. journal may be nil.
func NewState(journal Journal, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		running: make(map[string]*runningTask),
		journal: journal,
		logger:  logger.With("component", "meta-state"),
	}
}

// Enqueue adds a task to the queue. Task ids are unique across the
// whole lifecycle; reusing one is an error.
func (s *State) Enqueue(ctx context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.knownLocked(t.ID) {
		return fmt.Errorf("meta: task id %q already exists", t.ID)
	}
	s.queued = append(s.queued, t)
	s.enqueued.Add(1)
	s.journalTask(ctx, t)
	s.journalTransition(ctx, t.ID, "", StatusQueued, "")
	return nil
}

func (s *State) knownLocked(id string) bool {
	for _, q := range s.queued {
		if q.ID == id {
			return true
		}
	}
	if _, ok := s.running[id]; ok {
		return true
	}
	for _, rec := range s.completed {
		if rec.Task.ID == id {
			return true
		}
	}
	return false
}

// Promote moves the scheduler's pick from queued to running and
// registers its cancel func. Returns false when the queue is empty.
func (s *State) Promote(next func([]Task) (int, bool), cancel context.CancelFunc) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := next(s.queued)
	if !ok {
		return Task{}, false
	}
	t := s.queued[idx]
	s.queued = append(s.queued[:idx], s.queued[idx+1:]...)
	s.running[t.ID] = &runningTask{task: t, cancel: cancel, startedAt: time.Now().UTC()}
	s.started.Add(1)
	s.journalTransition(context.Background(), t.ID, StatusQueued, StatusRunning, "")
	return t, true
}

// Complete records a terminal outcome for a running task. If the task
// was cancelled while running its result is discarded and Complete
// reports false.
func (s *State) Complete(ctx context.Context, rec Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.running[rec.Task.ID]
	if !ok {
		// Cancelled mid-run; the bookkeeping was already dropped and
		// the eventual result is not observed.
		s.logger.Debug("result discarded for cancelled task", "task_id", rec.Task.ID)
		return false
	}
	delete(s.running, rec.Task.ID)
	rec.StartedAt = run.startedAt
	s.completed = append(s.completed, rec)
	if rec.Success {
		s.done.Add(1)
	} else {
		s.failed.Add(1)
	}
	s.journalTransition(ctx, rec.Task.ID, StatusRunning, StatusCompleted, rec.Detail)
	return true
}

// Cancel removes a task from queued or running bookkeeping. The cancel
// func of a running task is invoked so its context unwinds, though an
// execution that ignores cancellation is merely unobserved, not
// force-stopped. Idempotent; reports whether a removal happened.
func (s *State) Cancel(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, q := range s.queued {
		if q.ID == id {
			s.queued = append(s.queued[:i], s.queued[i+1:]...)
			s.cancelled.Add(1)
			s.journalTransition(ctx, id, StatusQueued, StatusCancelled, "")
			return true
		}
	}
	if run, ok := s.running[id]; ok {
		delete(s.running, id)
		if run.cancel != nil {
			run.cancel()
		}
		s.cancelled.Add(1)
		s.journalTransition(ctx, id, StatusRunning, StatusCancelled, "")
		return true
	}
	return false
}

// QueuedLen returns the current queue depth.
func (s *State) QueuedLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued)
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Queued:    make([]Task, len(s.queued)),
		Running:   make([]Task, 0, len(s.running)),
		Completed: make([]Record, len(s.completed)),
		Metrics: Metrics{
			Enqueued:  s.enqueued.Load(),
			Started:   s.started.Load(),
			Completed: s.done.Load(),
			Failed:    s.failed.Load(),
			Cancelled: s.cancelled.Load(),
		},
	}
	copy(snap.Queued, s.queued)
	copy(snap.Completed, s.completed)
	for _, run := range s.running {
		snap.Running = append(snap.Running, run.task)
	}
	return snap
}

func (s *State) journalTask(ctx context.Context, t Task) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordTask(ctx, t); err != nil {
		s.logger.Warn("journal task write failed", "task_id", t.ID, "error", err)
	}
}

func (s *State) journalTransition(ctx context.Context, id string, from, to TaskStatus, detail string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordTransition(ctx, id, from, to, detail); err != nil {
		s.logger.Warn("journal transition write failed", "task_id", id, "error", err)
	}
}
