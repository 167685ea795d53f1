package fabric

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestIngestAssignsStableFields(t *testing.T) {
	f := New(nil, nil, nil)
	pkt := f.Ingest("notes", "short content", nil)

	if pkt.ID == "" {
		t.Error("expected generated id")
	}
	if pkt.Summary != "short content" {
		t.Errorf("summary = %q", pkt.Summary)
	}
	if len(pkt.Embedding) != vectorWidth {
		t.Errorf("embedding width = %d, want %d", len(pkt.Embedding), vectorWidth)
	}

	stored, ok := f.Get(pkt.ID)
	if !ok {
		t.Fatal("packet not stored")
	}
	if stored.Content != "short content" {
		t.Errorf("content = %q", stored.Content)
	}
}

func TestSummaryTruncation(t *testing.T) {
	long := strings.Repeat("a", 400)
	f := New(nil, nil, nil)
	pkt := f.Ingest("doc", long, nil)

	if len(pkt.Summary) != summaryLimit+3 {
		t.Fatalf("summary length = %d, want %d", len(pkt.Summary), summaryLimit+3)
	}
	if !strings.HasSuffix(pkt.Summary, "...") {
		t.Error("expected ellipsis suffix")
	}
}

func TestSummaryTruncationMultibyte(t *testing.T) {
	long := strings.Repeat("é", 200)
	f := New(nil, nil, nil)
	pkt := f.Ingest("doc", long, nil)

	if !utf8.ValidString(pkt.Summary) {
		t.Fatal("summary is not valid UTF-8")
	}
	runes := []rune(pkt.Summary)
	if got := len(runes) - 3; got != summaryLimit {
		t.Fatalf("summary keeps %d characters, want %d", got, summaryLimit)
	}
	if !strings.HasSuffix(pkt.Summary, "...") {
		t.Error("expected ellipsis suffix")
	}
	for _, r := range runes[:summaryLimit] {
		if r != 'é' {
			t.Fatalf("unexpected rune %q in summary", r)
		}
	}
}

func TestRetrieveEmptyStore(t *testing.T) {
	f := New(nil, nil, nil)
	matches := f.Retrieve("qa", "anything", 10)
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

func TestRetrieveRanksAndLimits(t *testing.T) {
	f := New(nil, nil, nil)
	f.Ingest("a", "database migration plan for the billing service", nil)
	f.Ingest("b", "database migration plan for the billing system", nil)
	f.Ingest("c", "recipe for sourdough bread", nil)

	matches := f.Retrieve("writer", "database migration plan for the billing service", 2)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Packet.Source != "a" {
		t.Errorf("top match source = %q, want a", matches[0].Packet.Source)
	}
	if matches[0].Score < matches[1].Score {
		t.Error("matches not sorted by descending score")
	}
	for _, m := range matches {
		if m.Rationale == "" {
			t.Error("expected rationale on every match")
		}
	}
}

func TestRetrieveDeterministic(t *testing.T) {
	f := New(nil, nil, nil)
	f.Ingest("x", "alpha beta gamma", nil)
	f.Ingest("y", "alpha beta delta", nil)

	first := f.Retrieve("qa", "alpha beta", 10)
	for i := 0; i < 5; i++ {
		again := f.Retrieve("qa", "alpha beta", 10)
		if len(again) != len(first) {
			t.Fatal("retrieval count changed between identical queries")
		}
		for j := range again {
			if again[j].Packet.ID != first[j].Packet.ID {
				t.Fatal("retrieval order changed between identical queries")
			}
		}
	}
}

func TestGovernanceRestrictedDeniedToAllRoles(t *testing.T) {
	f := New(nil, nil, nil)
	f.Ingest("secret", "classified rollout schedule", map[string]string{
		SensitivityKey: SensitivityRestricted,
	})

	for _, role := range []string{"qa", "planner", "writer"} {
		if matches := f.Retrieve(role, "classified rollout schedule", 5); len(matches) != 0 {
			t.Errorf("role %s should not see restricted packets, got %d", role, len(matches))
		}
	}
}

func TestGovernanceRolePatterns(t *testing.T) {
	noDrafts := Policy{
		Name:  "qa-no-drafts",
		Roles: []string{"qa*"},
		Predicate: func(pkt Packet) bool {
			return pkt.Meta["stage"] != "draft"
		},
	}
	f := New(nil, NewGovernance(noDrafts), nil)
	f.Ingest("draft-doc", "draft release notes", map[string]string{"stage": "draft"})

	if matches := f.Retrieve("qa-lead", "draft release notes", 5); len(matches) != 0 {
		t.Errorf("qa-lead should be filtered by qa* policy, got %d matches", len(matches))
	}
	if matches := f.Retrieve("writer", "draft release notes", 5); len(matches) != 1 {
		t.Errorf("writer should see the draft, got %d matches", len(matches))
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	e := FingerprintEmbedder{}
	a := e.Embed("same input")
	b := e.Embed("same input")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("fingerprint not deterministic")
		}
	}
}

func TestCosineZeroVector(t *testing.T) {
	if got := cosine(make([]float64, vectorWidth), FingerprintEmbedder{}.Embed("abc")); got != 0 {
		t.Errorf("cosine with zero vector = %v, want 0", got)
	}
}
