// Package meta ties queue state, priority scheduling, macro execution,
// and telemetry together behind the enqueue/cancel/state boundary.
package meta

import (
	"context"
	"time"

	"github.com/c360studio/semflow/macro"
)

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

// Task lifecycle states. Cancelled is terminal and only reachable from
// queued or running.
const (
	StatusQueued    TaskStatus = "queued"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusCancelled TaskStatus = "cancelled"
)

// Task is one orchestration request.
type Task struct {
	ID          string         `json:"id"`
	Macro       string         `json:"macro"`
	Payload     map[string]any `json:"payload,omitempty"`
	Priority    int            `json:"priority"`
	Owner       string         `json:"owner,omitempty"`
	RequestedAt time.Time      `json:"requested_at"`
}

// Record is a terminal outcome kept in the completed list.
type Record struct {
	Task       Task          `json:"task"`
	Result     *macro.Result `json:"result,omitempty"`
	Success    bool          `json:"success"`
	Detail     string        `json:"detail,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Duration returns the task's wall-clock execution time.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Journal persists task transitions. The sqlite implementation lives in
// the journal package; a nil journal disables persistence without
// changing any state contract.
type Journal interface {
	RecordTask(ctx context.Context, t Task) error
	RecordTransition(ctx context.Context, taskID string, from, to TaskStatus, detail string) error
}
