package compact

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/Iron-Ham/horizon/internal/llm"
)

func bigSummary() types.ContextSummary {
	s := types.ContextSummary{
		ProjectName:  "todo-api",
		TechStack:    []string{"go", "postgres"},
		CurrentPhase: "features",
		Iteration:    9,
	}
	for i := 0; i < 70; i++ {
		s.CompletedFiles = append(s.CompletedFiles, fmt.Sprintf("f%02d.go", i))
	}
	// Rewritten early file moves to the end.
	s.CompletedFiles = append(s.CompletedFiles, "f00.go")
	for i := 0; i < 8; i++ {
		s.KeyDecisions = append(s.KeyDecisions, fmt.Sprintf("decision %d", i))
		s.Issues = append(s.Issues, fmt.Sprintf("issue %d", i))
	}
	for i := 0; i < 14; i++ {
		s.PendingTasks = append(s.PendingTasks, fmt.Sprintf("task %d", i))
	}
	return s
}

func checkBounds(t *testing.T, in, got types.ContextSummary) {
	t.Helper()
	if got.ProjectName != in.ProjectName || got.CurrentPhase != in.CurrentPhase || got.Iteration != in.Iteration {
		t.Errorf("structural fields changed: got %+v", got)
	}
	if diff := cmp.Diff(in.TechStack, got.TechStack); diff != "" {
		t.Errorf("TechStack changed (-want +got):\n%s", diff)
	}
	if len(got.CompletedFiles) > MaxCompletedFiles {
		t.Errorf("CompletedFiles = %d, want <= %d", len(got.CompletedFiles), MaxCompletedFiles)
	}
	if len(got.KeyDecisions) > MaxKeyDecisions || len(got.Issues) > MaxIssues || len(got.PendingTasks) > MaxPendingTasks {
		t.Errorf("lists out of bounds: decisions=%d issues=%d pending=%d",
			len(got.KeyDecisions), len(got.Issues), len(got.PendingTasks))
	}
	seen := map[string]bool{}
	for _, f := range got.CompletedFiles {
		if seen[f] {
			t.Errorf("duplicate completed file %q", f)
		}
		seen[f] = true
	}
}

func TestFallback(t *testing.T) {
	in := bigSummary()
	got := Fallback(in)
	checkBounds(t, in, got)

	if last := got.CompletedFiles[len(got.CompletedFiles)-1]; last != "f00.go" {
		t.Errorf("last completed file = %q, want f00.go (last occurrence wins)", last)
	}
	if got.CompletedFiles[0] != "f21.go" {
		t.Errorf("first kept file = %q, want f21.go", got.CompletedFiles[0])
	}
	if got.KeyDecisions[0] != "decision 3" {
		t.Errorf("KeyDecisions = %v, want the most recent five", got.KeyDecisions)
	}
	if got.Issues[0] != "issue 0" || got.PendingTasks[9] != "task 9" {
		t.Errorf("Issues = %v, PendingTasks = %v", got.Issues, got.PendingTasks)
	}

	got.TechStack[0] = "mutated"
	if in.TechStack[0] != "go" {
		t.Error("Fallback must deep copy the input")
	}
}

func TestCompact_UsesBackend(t *testing.T) {
	in := bigSummary()
	backend := llm.BackendFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "```json\n" + `{
			"key_decisions": ["use sqlc", "one", "two", "three", "four", "five", "six"],
			"issues": ["flaky test"],
			"pending_tasks": ["add auth"],
			"completed_files": ["f69.go", "invented.go", "f00.go"]
		}` + "\n```"}, nil
	})

	got, err := New(backend).Compact(context.Background(), in, "recent output")
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	checkBounds(t, in, got)

	if diff := cmp.Diff([]string{"use sqlc", "one", "two", "three", "four"}, got.KeyDecisions); diff != "" {
		t.Errorf("KeyDecisions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"flaky test"}, got.Issues); diff != "" {
		t.Errorf("Issues mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"f69.go", "f00.go"}, got.CompletedFiles); diff != "" {
		t.Errorf("CompletedFiles mismatch (-want +got):\n%s", diff)
	}
}

func TestCompact_EmptyFieldsKeepInput(t *testing.T) {
	in := bigSummary()
	backend := llm.BackendFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: `{"issues": ["only this"]}`}, nil
	})

	got, err := New(backend).Compact(context.Background(), in, "")
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	want := Fallback(in)
	want.Issues = []string{"only this"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Compact() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompact_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		backend llm.Backend
	}{
		{"backend error", llm.BackendFunc(func(context.Context, llm.Request) (*llm.Response, error) {
			return nil, errors.New("connection refused")
		})},
		{"unparseable", llm.BackendFunc(func(context.Context, llm.Request) (*llm.Response, error) {
			return &llm.Response{Content: "sure, here you go"}, nil
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := bigSummary()
			got, err := New(tt.backend).Compact(context.Background(), in, "")
			if err == nil {
				t.Error("Compact() error = nil, want the failure cause")
			}
			if diff := cmp.Diff(Fallback(in), got); diff != "" {
				t.Errorf("Compact() should equal Fallback (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompact_NilBackend(t *testing.T) {
	in := bigSummary()
	got, err := New(nil).Compact(context.Background(), in, "")
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	checkBounds(t, in, got)
}

func TestDedupeLast(t *testing.T) {
	got := dedupeLast([]string{"a", "b", "a", "c", "b"})
	if diff := cmp.Diff([]string{"a", "c", "b"}, got); diff != "" {
		t.Errorf("dedupeLast() mismatch (-want +got):\n%s", diff)
	}
	if dedupeLast(nil) != nil {
		t.Error("dedupeLast(nil) should be nil")
	}
}
