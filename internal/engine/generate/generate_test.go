package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Iron-Ham/horizon/internal/engine/types"
	herrors "github.com/Iron-Ham/horizon/internal/errors"
	"github.com/Iron-Ham/horizon/internal/llm"
)

type recordingBackend struct {
	reply string
	err   error
	last  llm.Request
	calls int
}

func (r *recordingBackend) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	r.calls++
	r.last = req
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Response{Content: r.reply, Server: "fake", Model: "fake-1"}, nil
}

func testInput() Input {
	return Input{
		Packet: types.WorkPacket{
			Title:              "Todo API",
			Description:        "A small REST service for todos",
			Tasks:              []string{"CRUD endpoints"},
			AcceptanceCriteria: []string{"All endpoints return JSON"},
		},
		Phase: types.Phase{Name: "scaffold", Focus: "Project layout"},
		Summary: types.ContextSummary{
			ProjectName:  "todo-api",
			TechStack:    []string{"go"},
			CurrentPhase: "scaffold",
			KeyDecisions: []string{"use chi router"},
			Issues:       []string{"missing go.mod"},
			PendingTasks: []string{"write handlers"},
			Iteration:    2,
		},
		Repo: &types.RepoContext{
			FileTreeSummary:  "README.md",
			KeyFileSummaries: map[string]string{"README.md": "Todo service"},
		},
		Guardrails: types.Guardrails{MaxTokensPerGeneration: 4096},
	}
}

func TestAttempt_Run(t *testing.T) {
	backend := &recordingBackend{reply: "FILE: go.mod\n```\nmodule todo\n```\n"}
	a := New(backend, WithServer("gemini"))

	out := a.Run(context.Background(), testInput())
	if out.Err != nil {
		t.Fatalf("Run() Err = %v", out.Err)
	}
	if len(out.Files) != 1 || out.Files[0].Path != "go.mod" {
		t.Errorf("Files = %+v, want go.mod", out.Files)
	}
	if out.Server != "fake" || out.Model != "fake-1" {
		t.Errorf("Server/Model = %q/%q", out.Server, out.Model)
	}
	if out.Failure("scaffold", 2) != nil {
		t.Errorf("Failure() = %v, want nil", out.Failure("scaffold", 2))
	}

	req := backend.last
	if req.Temperature != Temperature {
		t.Errorf("Temperature = %v, want %v", req.Temperature, Temperature)
	}
	if req.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", req.MaxTokens)
	}
	if req.PreferredServer != "gemini" {
		t.Errorf("PreferredServer = %q, want gemini", req.PreferredServer)
	}
	if req.SystemPrompt != SystemPrompt {
		t.Error("SystemPrompt not forwarded")
	}
}

func TestAttempt_RunBackendError(t *testing.T) {
	backend := &recordingBackend{err: errors.New("quota exhausted")}
	out := New(backend).Run(context.Background(), testInput())

	if out.Err == nil {
		t.Fatal("Run() Err = nil, want a generation error")
	}
	var genErr *herrors.GenerationError
	if !errors.As(out.Err, &genErr) {
		t.Fatalf("Err type = %T, want *GenerationError", out.Err)
	}
	if genErr.Phase != "scaffold" || genErr.Iteration != 2 {
		t.Errorf("GenerationError = %+v", genErr)
	}
	if !herrors.IsRetryable(out.Err) {
		t.Error("generation errors should be retryable")
	}
	if !strings.Contains(out.Err.Error(), "quota exhausted") {
		t.Errorf("Err = %q, want cause in message", out.Err.Error())
	}
	if len(out.Files) != 0 {
		t.Errorf("Files = %v, want none", out.Files)
	}
}

func TestAttempt_RunEmptyOutput(t *testing.T) {
	backend := &recordingBackend{reply: "I am not sure what to build."}
	out := New(backend).Run(context.Background(), testInput())

	if out.Err != nil {
		t.Fatalf("Run() Err = %v, want nil for empty output", out.Err)
	}
	if err := out.Failure("scaffold", 2); !errors.Is(err, herrors.ErrEmptyOutput) {
		t.Errorf("Failure() = %v, want ErrEmptyOutput", err)
	}
}

func TestAttempt_RunKeepsParseErrors(t *testing.T) {
	backend := &recordingBackend{reply: "FILE: ../x\n```\nx\n```\nFILE: y\n```\ny\n```\n"}
	out := New(backend).Run(context.Background(), testInput())

	if len(out.Files) != 1 || len(out.ParseErrors) != 1 {
		t.Errorf("Files = %v, ParseErrors = %v", out.Files, out.ParseErrors)
	}
}

func TestFormatUserPrompt(t *testing.T) {
	prompt := FormatUserPrompt(testInput())

	for _, want := range []string{
		"## Current Phase: scaffold",
		"Project layout",
		"## Work Packet: Todo API",
		"- CRUD endpoints",
		"- All endpoints return JSON",
		"**Tech stack:** go",
		"**README.md:**\nTodo service",
		"- use chi router",
		"- missing go.mod",
		"- write handlers",
		"iteration 2",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestFormatUserPrompt_BoundsCompletedFiles(t *testing.T) {
	in := testInput()
	for i := 0; i < 30; i++ {
		in.Summary.CompletedFiles = append(in.Summary.CompletedFiles, fmt.Sprintf("file%02d.go", i))
	}

	prompt := FormatUserPrompt(in)
	if strings.Contains(prompt, "file09.go") {
		t.Error("prompt should not list files older than the last 20")
	}
	for _, want := range []string{"file10.go", "file29.go"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing recent file %s", want)
		}
	}
}

func TestFormatUserPrompt_NoRepo(t *testing.T) {
	in := testInput()
	in.Repo = nil
	in.Summary.TechStack = nil
	in.Packet.Description = ""

	prompt := FormatUserPrompt(in)
	for _, want := range []string{"**Tech stack:** unknown", "(empty repository)", "(no description)"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
