package main

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/semflow/agent"
	"github.com/c360studio/semflow/config"
	"github.com/c360studio/semflow/fabric"
	"github.com/c360studio/semflow/guideline"
	"github.com/c360studio/semflow/telemetry"
)

func TestBuildMacrosBuiltins(t *testing.T) {
	cfg := config.DefaultConfig()
	macros, err := buildMacros(cfg)
	if err != nil {
		t.Fatalf("build macros: %v", err)
	}

	names := macros.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 built-in macros, got %v", names)
	}

	refresh, err := macros.Get("knowledge-refresh")
	if err != nil {
		t.Fatalf("get knowledge-refresh: %v", err)
	}
	if refresh.FallbackMacro != "full-pipeline" {
		t.Errorf("expected fallback full-pipeline, got %s", refresh.FallbackMacro)
	}

	pipeline, err := macros.Get("full-pipeline")
	if err != nil {
		t.Fatalf("get full-pipeline: %v", err)
	}
	if len(pipeline.Stages) != 4 {
		t.Errorf("expected 4 pipeline stages, got %d", len(pipeline.Stages))
	}
}

func TestBuildMacrosFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	macrosPath := filepath.Join(tmpDir, "macros.yaml")
	content := `
version: 1
macros:
  - name: quick-review
    stages:
      - id: verify
        name: Verify
        role: qa
`
	if err := os.WriteFile(macrosPath, []byte(content), 0644); err != nil {
		t.Fatalf("write macros file: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Macros.Path = macrosPath
	macros, err := buildMacros(cfg)
	if err != nil {
		t.Fatalf("build macros: %v", err)
	}
	if _, err := macros.Get("quick-review"); err != nil {
		t.Fatalf("expected quick-review to be registered: %v", err)
	}
}

func TestBuildAgentsRegistersAllRoles(t *testing.T) {
	cfg := config.DefaultConfig()
	reader := guideline.NewReader(nil)

	reg, err := buildAgents(cfg, nil, telemetry.Discard{}, reader)
	if err != nil {
		t.Fatalf("build agents: %v", err)
	}

	roles := reg.Roles()
	want := []string{agent.RolePlanner, agent.RoleQA, agent.RoleResearcher, agent.RoleWriter}
	if len(roles) != len(want) {
		t.Fatalf("expected %d roles, got %v", len(want), roles)
	}
	for _, role := range want {
		if _, err := reg.Build(role); err != nil {
			t.Errorf("build %s: %v", role, err)
		}
	}
}

func TestTaskFileParsing(t *testing.T) {
	content := `
tasks:
  - id: refresh-1
    macro: knowledge-refresh
    priority: 5
    owner: ops
    payload:
      goal: refresh onboarding docs
    query: onboarding
  - macro: full-pipeline
`
	var batch taskFile
	if err := yaml.Unmarshal([]byte(content), &batch); err != nil {
		t.Fatalf("parse tasks: %v", err)
	}
	if len(batch.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(batch.Tasks))
	}
	first := batch.Tasks[0]
	if first.ID != "refresh-1" || first.Priority != 5 || first.Query != "onboarding" {
		t.Errorf("unexpected first task: %+v", first)
	}
	if goal, _ := first.Payload["goal"].(string); goal != "refresh onboarding docs" {
		t.Errorf("payload not parsed: %+v", first.Payload)
	}
	if batch.Tasks[1].ID != "" {
		t.Errorf("expected second task id to be empty, got %q", batch.Tasks[1].ID)
	}
}

func TestIngestSources(t *testing.T) {
	tmpDir := t.TempDir()
	files := map[string]string{
		"notes.md":        "Deployment uses blue green rollout.",
		"sub/runbook.txt": "Restart the scheduler after config changes.",
		"skip.json":       `{"ignored": true}`,
	}
	for name, content := range files {
		path := filepath.Join(tmpDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	f := fabric.New(nil, nil, nil)
	if err := ingestSources(f, []string{tmpDir}, setupLogger("error")); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if f.Len() != 2 {
		t.Fatalf("expected 2 packets, got %d", f.Len())
	}
}
