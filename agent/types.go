// Package agent executes single tasks under concurrency and timeout
// control. The role-specific behavior is a pluggable Executor; the
// runtime owns validation, slot accounting, guideline merging, the
// timeout race, and lifecycle telemetry.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semflow/fabric"
	"github.com/c360studio/semflow/guideline"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrInvalidConfig is returned for malformed agent configuration.
var ErrInvalidConfig = errors.New("agent: invalid config")

// Config describes one agent instance.
type Config struct {
	ID          string        `yaml:"id" json:"id"`
	Role        string        `yaml:"role" json:"role"`
	Concurrency int           `yaml:"concurrency" json:"concurrency"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	Tools       []string      `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// DefaultConfig returns baseline agent settings for a role.
func DefaultConfig(id, role string) Config {
	return Config{
		ID:          id,
		Role:        role,
		Concurrency: 2,
		Timeout:     60 * time.Second,
	}
}

// Validate checks structural constraints on the config.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidConfig)
	}
	if c.Role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidConfig)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be >= 1, got %d", ErrInvalidConfig, c.Concurrency)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("%w: timeout must be >= 1s, got %s", ErrInvalidConfig, c.Timeout)
	}
	return nil
}

// Meta carries message metadata.
type Meta struct {
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source,omitempty"`
	Version   string    `json:"version,omitempty"`
}

// Message is the unit of work handed to an agent.
type Message struct {
	TaskID     string          `json:"task_id"`
	MacroID    string          `json:"macro_id"`
	Payload    map[string]any  `json:"payload,omitempty"`
	Context    []fabric.Packet `json:"context,omitempty"`
	Guidelines *guideline.Set  `json:"-"`
	Meta       Meta            `json:"meta"`
}

// Validate rejects structurally malformed messages before any resource
// is consumed.
func (m *Message) Validate() error {
	if m == nil {
		return errors.New("message is nil")
	}
	if m.TaskID == "" {
		return errors.New("message task_id is required")
	}
	if m.MacroID == "" {
		return errors.New("message macro_id is required")
	}
	return nil
}

// Result is the structured outcome of one agent invocation. Agent-level
// failures are reported here, never as raised errors.
type Result struct {
	TaskID         string            `json:"task_id"`
	Status         string            `json:"status"`
	Summary        string            `json:"summary,omitempty"`
	Artifacts      map[string]string `json:"artifacts,omitempty"`
	Issues         []string          `json:"issues,omitempty"`
	ContextUpdates []string          `json:"context_updates,omitempty"`
	Duration       time.Duration     `json:"duration_ns"`
	Err            string            `json:"error,omitempty"`
}

// IsError reports whether the result is a failure.
func (r *Result) IsError() bool {
	return r == nil || r.Status == StatusError
}

// errorResult builds a failure result for a task.
func errorResult(taskID, summary string, err error) *Result {
	r := &Result{
		TaskID:  taskID,
		Status:  StatusError,
		Summary: summary,
	}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// Executor is the pluggable role-specific execution function. Returned
// errors and panics are converted to error results by the runtime.
type Executor func(ctx context.Context, msg *Message) (*Result, error)
