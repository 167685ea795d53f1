package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Built-in roles with reference executors. Deployments replace these
// with real generation backends through the same Executor seam.
const (
	RolePlanner    = "planner"
	RoleResearcher = "researcher"
	RoleWriter     = "writer"
	RoleQA         = "qa"
)

// RegisterDefaults installs the built-in role executors with baseline
// configs. Callers can register additional roles before building.
func RegisterDefaults(reg *Registry) error {
	defaults := []struct {
		role    string
		builder Builder
	}{
		{RolePlanner, func() Executor { return PlannerExecutor }},
		{RoleResearcher, func() Executor { return ResearcherExecutor }},
		{RoleWriter, func() Executor { return WriterExecutor }},
		{RoleQA, func() Executor { return QAExecutor }},
	}
	for _, d := range defaults {
		if err := reg.Register(DefaultConfig(d.role+"-1", d.role), d.builder); err != nil {
			return err
		}
	}
	return nil
}

func payloadGoal(msg *Message) string {
	if goal, ok := msg.Payload["goal"].(string); ok && goal != "" {
		return goal
	}
	return "unspecified goal"
}

// PlannerExecutor produces an ordered work outline for the task goal.
func PlannerExecutor(_ context.Context, msg *Message) (*Result, error) {
	goal := payloadGoal(msg)
	steps := []string{
		"clarify scope for: " + goal,
		"gather supporting context",
		"draft the deliverable",
		"verify against guidelines",
	}
	return &Result{
		TaskID:  msg.TaskID,
		Status:  StatusSuccess,
		Summary: fmt.Sprintf("planned %d steps for %q", len(steps), goal),
		Artifacts: map[string]string{
			"plan": strings.Join(steps, "\n"),
		},
		ContextUpdates: []string{"plan: " + goal},
	}, nil
}

// ResearcherExecutor condenses the supplied context packets into
// findings.
func ResearcherExecutor(_ context.Context, msg *Message) (*Result, error) {
	if len(msg.Context) == 0 {
		return &Result{
			TaskID:  msg.TaskID,
			Status:  StatusSuccess,
			Summary: "no stored context matched; proceeding from the task payload alone",
			Issues:  []string{"research performed without retrieved context"},
		}, nil
	}
	lines := make([]string, 0, len(msg.Context))
	for _, pkt := range msg.Context {
		lines = append(lines, fmt.Sprintf("[%s] %s", pkt.Source, pkt.Summary))
	}
	return &Result{
		TaskID:  msg.TaskID,
		Status:  StatusSuccess,
		Summary: fmt.Sprintf("condensed %d context packets", len(msg.Context)),
		Artifacts: map[string]string{
			"findings": strings.Join(lines, "\n"),
		},
	}, nil
}

// WriterExecutor drafts the deliverable from the goal and context.
func WriterExecutor(_ context.Context, msg *Message) (*Result, error) {
	goal := payloadGoal(msg)
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", goal)
	for _, pkt := range msg.Context {
		fmt.Fprintf(&b, "- %s\n", pkt.Summary)
	}
	if msg.Guidelines != nil {
		for _, entry := range msg.Guidelines.Entries("instructions") {
			fmt.Fprintf(&b, "> %s\n", entry)
		}
	}
	return &Result{
		TaskID:  msg.TaskID,
		Status:  StatusSuccess,
		Summary: "draft produced for " + goal,
		Artifacts: map[string]string{
			"draft": b.String(),
		},
	}, nil
}

// QAExecutor validates that an execution had context to check against.
// Without context there is nothing to verify, which is a hard failure
// so the macro's fallback (if any) can take over.
func QAExecutor(_ context.Context, msg *Message) (*Result, error) {
	if len(msg.Context) == 0 {
		return &Result{
			TaskID: msg.TaskID,
			Status: StatusError,
			Issues: []string{"No context provided for QA"},
			Err:    "qa requires at least one context packet",
		}, nil
	}
	return &Result{
		TaskID:  msg.TaskID,
		Status:  StatusSuccess,
		Summary: fmt.Sprintf("verified against %d context packets", len(msg.Context)),
		Artifacts: map[string]string{
			"qa-report": fmt.Sprintf("checked %d packets, no blocking findings", len(msg.Context)),
		},
	}, nil
}

// FailingExecutor always errors. Used in tests and fallback drills.
func FailingExecutor(reason string) Executor {
	return func(_ context.Context, msg *Message) (*Result, error) {
		return nil, errors.New(reason)
	}
}
