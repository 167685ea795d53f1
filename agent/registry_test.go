package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/semflow/fabric"
)

func TestRegistryRejectsUnknownRole(t *testing.T) {
	reg := NewRegistry(nil)
	if err := RegisterDefaults(reg); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Build("sorcerer"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestRegistryBuildsRegisteredRoles(t *testing.T) {
	reg := NewRegistry(nil)
	if err := RegisterDefaults(reg); err != nil {
		t.Fatal(err)
	}

	for _, role := range []string{RolePlanner, RoleResearcher, RoleWriter, RoleQA} {
		rt, err := reg.Build(role)
		if err != nil {
			t.Fatalf("Build(%s): %v", role, err)
		}
		if rt.Config().Role != role {
			t.Errorf("built runtime role = %s, want %s", rt.Config().Role, role)
		}
	}
}

func TestRegistryDuplicateRoleRejected(t *testing.T) {
	reg := NewRegistry(nil)
	cfg := DefaultConfig("w-1", RoleWriter)
	if err := reg.Register(cfg, func() Executor { return WriterExecutor }); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(cfg, func() Executor { return WriterExecutor }); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestQAExecutorWithoutContext(t *testing.T) {
	msg := validMessage("qa-task")
	res, err := QAExecutor(context.Background(), msg)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError() {
		t.Fatal("expected error result for missing context")
	}
	if len(res.Issues) != 1 || res.Issues[0] != "No context provided for QA" {
		t.Errorf("issues = %v", res.Issues)
	}
}

func TestQAExecutorWithContext(t *testing.T) {
	msg := validMessage("qa-task")
	msg.Context = []fabric.Packet{{ID: "p1", Source: "notes", Summary: "stuff"}}
	res, err := QAExecutor(context.Background(), msg)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError() {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if res.Artifacts["qa-report"] == "" {
		t.Error("expected qa-report artifact")
	}
}
