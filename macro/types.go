// Package macro defines declarative stage pipelines and the
// orchestrator that drives agents through them with per-stage retry and
// whole-macro fallback.
package macro

import (
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semflow/agent"
)

// Validation and lookup errors.
var (
	ErrInvalidDefinition = errors.New("macro: invalid definition")
	ErrUnknownMacro      = errors.New("macro: unknown macro")
)

// Stage is one macro step bound to a single agent role.
type Stage struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	Description     string `yaml:"description,omitempty" json:"description,omitempty"`
	Role            string `yaml:"role" json:"role"`
	RetryLimit      int    `yaml:"retry_limit" json:"retry_limit"`
	ContinueOnError bool   `yaml:"continue_on_error" json:"continue_on_error"`
}

// Definition is a named, ordered stage pipeline.
type Definition struct {
	Name             string  `yaml:"name" json:"name"`
	Description      string  `yaml:"description,omitempty" json:"description,omitempty"`
	Stages           []Stage `yaml:"stages" json:"stages"`
	FallbackMacro    string  `yaml:"fallback_macro,omitempty" json:"fallback_macro,omitempty"`
	QualityThreshold float64 `yaml:"quality_threshold" json:"quality_threshold"`
}

// Validate enforces the definition schema: at least one stage, ids and
// roles present, retry limits non-negative, threshold within [0,1].
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("%w: macro %q has no stages", ErrInvalidDefinition, d.Name)
	}
	if d.QualityThreshold < 0 || d.QualityThreshold > 1 {
		return fmt.Errorf("%w: macro %q quality_threshold %v outside [0,1]",
			ErrInvalidDefinition, d.Name, d.QualityThreshold)
	}
	if d.FallbackMacro == d.Name {
		return fmt.Errorf("%w: macro %q falls back to itself", ErrInvalidDefinition, d.Name)
	}
	seen := make(map[string]bool, len(d.Stages))
	for i, s := range d.Stages {
		if s.ID == "" {
			return fmt.Errorf("%w: macro %q stage %d has no id", ErrInvalidDefinition, d.Name, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: macro %q duplicate stage id %q", ErrInvalidDefinition, d.Name, s.ID)
		}
		seen[s.ID] = true
		if s.Role == "" {
			return fmt.Errorf("%w: macro %q stage %q has no role", ErrInvalidDefinition, d.Name, s.ID)
		}
		if s.RetryLimit < 0 {
			return fmt.Errorf("%w: macro %q stage %q retry_limit %d is negative",
				ErrInvalidDefinition, d.Name, s.ID, s.RetryLimit)
		}
	}
	return nil
}

// StageResult records one stage's final outcome and attempt count.
type StageResult struct {
	StageID  string        `json:"stage_id"`
	Role     string        `json:"role"`
	Attempts int           `json:"attempts"`
	Result   *agent.Result `json:"result"`
}

// Result is the outcome of one macro invocation. StageResults is
// append-only during execution and immutable once returned; a fallback
// run produces a fresh Result with no partial carry-over.
type Result struct {
	TaskID       string        `json:"task_id"`
	MacroName    string        `json:"macro_name"`
	StageResults []StageResult `json:"stage_results"`
	Success      bool          `json:"success"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}
