package macro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semflow/agent"
)

// maxFallbackDepth bounds fallback chains so misconfigured cycles
// cannot recurse forever.
const maxFallbackDepth = 4

// ErrStageExhausted is returned by the standalone entry point when a
// non-tolerant stage fails all attempts and no fallback is configured.
var ErrStageExhausted = errors.New("macro: stage exhausted retries without fallback")

// Orchestrator drives agents through macro stage pipelines.
type Orchestrator struct {
	macros *Registry
	agents *agent.Registry
	logger *slog.Logger

	// RetryDelay is an optional pause between attempts of one stage.
	RetryDelay time.Duration
}

// NewOrchestrator wires the macro and agent registries together.
func NewOrchestrator(macros *Registry, agents *agent.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		macros: macros,
		agents: agents,
		logger: logger.With("component", "orchestrator"),
	}
}

// Run executes the named macro for a task. The seed message supplies
// payload, context, and metadata; each stage sees a copy addressed to
// it. On a non-tolerant exhausted stage the returned error is non-nil
// and the Result carries the partial stage outcomes — callers that must
// not raise (the meta-agent loop) use the Result, standalone callers
// propagate the error. An unknown macro name is always a hard error.
func (o *Orchestrator) Run(ctx context.Context, name string, seed agent.Message) (*Result, error) {
	return o.run(ctx, name, seed, 0)
}

func (o *Orchestrator) run(ctx context.Context, name string, seed agent.Message, depth int) (*Result, error) {
	if depth > maxFallbackDepth {
		return nil, fmt.Errorf("macro: fallback depth %d exceeded running %q", maxFallbackDepth, name)
	}
	def, err := o.macros.Get(name)
	if err != nil {
		return nil, err
	}

	res := &Result{
		TaskID:    seed.TaskID,
		MacroName: def.Name,
		StartedAt: time.Now().UTC(),
	}

	for _, stage := range def.Stages {
		if err := ctx.Err(); err != nil {
			res.FinishedAt = time.Now().UTC()
			return res, fmt.Errorf("macro %q interrupted: %w", def.Name, err)
		}

		stageRes, err := o.runStage(ctx, def, stage, seed)
		res.StageResults = append(res.StageResults, stageRes)
		if err != nil {
			res.FinishedAt = time.Now().UTC()
			return res, err
		}

		if stageRes.Result.IsError() && !stage.ContinueOnError {
			if def.FallbackMacro != "" {
				o.logger.Warn("stage failed, switching to fallback macro",
					"macro", def.Name,
					"stage", stage.ID,
					"fallback", def.FallbackMacro,
					"task_id", seed.TaskID)
				// All-or-nothing substitution: the fallback starts with
				// a fresh stage list, partial progress is discarded.
				return o.run(ctx, def.FallbackMacro, seed, depth+1)
			}
			res.FinishedAt = time.Now().UTC()
			return res, fmt.Errorf("%w: macro %q stage %q after %d attempts",
				ErrStageExhausted, def.Name, stage.ID, stageRes.Attempts)
		}
	}

	res.Success = true
	res.FinishedAt = time.Now().UTC()
	return res, nil
}

// runStage invokes the stage's agent up to RetryLimit+1 times, stopping
// at the first success.
func (o *Orchestrator) runStage(ctx context.Context, def Definition, stage Stage, seed agent.Message) (StageResult, error) {
	runtime, err := o.agents.Build(stage.Role)
	if err != nil {
		return StageResult{StageID: stage.ID, Role: stage.Role}, err
	}

	msg := seed
	msg.MacroID = def.Name + "/" + stage.ID

	var last *agent.Result
	attempts := 0
	for attempts < stage.RetryLimit+1 {
		attempts++
		last = runtime.HandleMessage(ctx, &msg)
		if !last.IsError() {
			break
		}
		o.logger.Debug("stage attempt failed",
			"macro", def.Name,
			"stage", stage.ID,
			"attempt", attempts,
			"error", last.Err)
		if attempts < stage.RetryLimit+1 && o.RetryDelay > 0 {
			select {
			case <-time.After(o.RetryDelay):
			case <-ctx.Done():
				return StageResult{StageID: stage.ID, Role: stage.Role, Attempts: attempts, Result: last}, ctx.Err()
			}
		}
	}

	return StageResult{
		StageID:  stage.ID,
		Role:     stage.Role,
		Attempts: attempts,
		Result:   last,
	}, nil
}
