package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semflow/guideline"
	"github.com/c360studio/semflow/telemetry"
)

// GuidelineSource merges directive documents for an execution. The
// guideline.Reader satisfies it.
type GuidelineSource interface {
	Merge(sourceDir, rootDir string) (*guideline.Set, error)
}

// Runtime runs one role's executor under the agent contract: at most
// Concurrency executions in flight, excess callers blocked FIFO on the
// slot semaphore (Go wakes blocked channel senders in send order).
type Runtime struct {
	cfg     Config
	exec    Executor
	sem     chan struct{}
	monitor telemetry.Sink
	logger  *slog.Logger

	guidelines    GuidelineSource
	guidelineDir  string
	guidelineRoot string
}

// Option configures optional runtime collaborators.
type Option func(*Runtime)

// WithGuidelines attaches a directive source; merged guidelines are
// injected into each message before dispatch.
func WithGuidelines(src GuidelineSource, sourceDir, rootDir string) Option {
	return func(r *Runtime) {
		r.guidelines = src
		r.guidelineDir = sourceDir
		r.guidelineRoot = rootDir
	}
}

// WithMonitor attaches a telemetry sink for lifecycle events.
func WithMonitor(sink telemetry.Sink) Option {
	return func(r *Runtime) {
		r.monitor = sink
	}
}

// NewRuntime creates an agent runtime. The executor must not be nil.
func NewRuntime(cfg Config, exec Executor, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fmt.Errorf("%w: executor is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{
		cfg:     cfg,
		exec:    exec,
		sem:     make(chan struct{}, cfg.Concurrency),
		monitor: telemetry.Discard{},
		logger:  logger.With("component", "agent", "agent_id", cfg.ID, "role", cfg.Role),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the runtime's configuration.
func (r *Runtime) Config() Config {
	return r.cfg
}

// InFlight returns the number of executions currently holding a slot.
func (r *Runtime) InFlight() int {
	return len(r.sem)
}

// HandleMessage executes one message. Validation failures, timeouts,
// executor errors, and panics are all converted into error results;
// this method never returns nil.
func (r *Runtime) HandleMessage(ctx context.Context, msg *Message) *Result {
	if err := msg.Validate(); err != nil {
		// No slot was consumed; reject before any resource use.
		taskID := ""
		if msg != nil {
			taskID = msg.TaskID
		}
		return errorResult(taskID, "message validation failed", err)
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return errorResult(msg.TaskID, "cancelled while waiting for execution slot", ctx.Err())
	}
	defer func() { <-r.sem }()

	r.emit(telemetry.EventAgentStart, msg.TaskID, "", 0)
	started := time.Now()

	if r.guidelines != nil && msg.Guidelines == nil {
		set, err := r.guidelines.Merge(r.guidelineDir, r.guidelineRoot)
		if err != nil {
			res := errorResult(msg.TaskID, "guideline merge failed", err)
			res.Duration = time.Since(started)
			r.emit(telemetry.EventAgentError, msg.TaskID, res.Err, res.Duration)
			return res
		}
		msg.Guidelines = set
	}

	res := r.execute(ctx, msg)
	res.Duration = time.Since(started)

	if res.IsError() {
		r.emit(telemetry.EventAgentError, msg.TaskID, res.Err, res.Duration)
	} else {
		r.emit(telemetry.EventAgentFinish, msg.TaskID, "", res.Duration)
	}
	return res
}

// execute races the executor against the configured timeout.
func (r *Runtime) execute(ctx context.Context, msg *Message) *Result {
	execCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("executor panic: %v", rec)}
			}
		}()
		res, err := r.exec(execCtx, msg)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return errorResult(msg.TaskID, "execution failed", out.err)
		}
		if out.res == nil {
			return errorResult(msg.TaskID, "executor returned no result", nil)
		}
		if out.res.TaskID == "" {
			out.res.TaskID = msg.TaskID
		}
		return out.res
	case <-execCtx.Done():
		// The executor goroutine may still be running if it ignores
		// cancellation; its eventual result is discarded.
		if ctx.Err() != nil {
			return errorResult(msg.TaskID, "execution cancelled", ctx.Err())
		}
		return errorResult(msg.TaskID,
			fmt.Sprintf("execution timed out after %s", r.cfg.Timeout), execCtx.Err())
	}
}

func (r *Runtime) emit(t telemetry.EventType, taskID, detail string, d time.Duration) {
	r.monitor.Record(telemetry.Event{
		Type:     t,
		TaskID:   taskID,
		Role:     r.cfg.Role,
		Detail:   detail,
		Duration: d,
		At:       time.Now().UTC(),
	})
}
