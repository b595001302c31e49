package output

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/horizon/internal/engine/types"
)

const twoBlocks = "Here is the scaffold.\n\n" +
	"FILE: a.ts\n" +
	"```ts\n" +
	"export const a = 1;\n" +
	"```\n\n" +
	"FILE: b.ts\n" +
	"```ts\n" +
	"export const b = 2;\n" +
	"```\n"

func TestParse_TwoBlocks(t *testing.T) {
	got := Parse(twoBlocks)

	want := []types.FileChange{
		{Path: "a.ts", Content: "export const a = 1;", Action: types.ActionCreate},
		{Path: "b.ts", Content: "export const b = 2;", Action: types.ActionCreate},
	}
	if diff := cmp.Diff(want, got.Files); diff != "" {
		t.Errorf("Parse() files mismatch (-want +got):\n%s", diff)
	}
	if len(got.Errors) != 0 {
		t.Errorf("Parse() errors = %v, want none", got.Errors)
	}
}

func TestParse_Idempotent(t *testing.T) {
	first := Parse(twoBlocks)
	second := Parse(twoBlocks)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Parse() not deterministic (-first +second):\n%s", diff)
	}
}

func TestParse_RejectsTraversal(t *testing.T) {
	raw := "FILE: ../../etc/passwd\n```\nroot:x:0:0\n```\n"

	got := Parse(raw)
	if len(got.Files) != 0 {
		t.Errorf("Parse() files = %v, want none", got.Files)
	}
	if len(got.Errors) != 1 {
		t.Fatalf("Parse() errors = %v, want exactly one", got.Errors)
	}
	if !strings.Contains(got.Errors[0], "../../etc/passwd") {
		t.Errorf("error %q should name the rejected path", got.Errors[0])
	}
}

func TestParse_RejectedBlockDoesNotHideNext(t *testing.T) {
	raw := "FILE: src/../../x.go\n```go\npackage x\n```\nFILE: ok.go\n```go\npackage ok\n```\n"

	got := Parse(raw)
	if len(got.Files) != 1 || got.Files[0].Path != "ok.go" {
		t.Errorf("Parse() files = %+v, want only ok.go", got.Files)
	}
	if len(got.Errors) != 1 {
		t.Errorf("Parse() errors = %v, want one", got.Errors)
	}
}

func TestParse_MarkerVariants(t *testing.T) {
	tests := []struct {
		name       string
		marker     string
		wantPath   string
		wantAction types.FileAction
	}{
		{"plain", "FILE: src/main.go", "src/main.go", types.ActionCreate},
		{"heading", "### FILE: src/main.go", "src/main.go", types.ActionCreate},
		{"backticks", "FILE: `src/main.go`", "src/main.go", types.ActionCreate},
		{"bold", "**FILE:** src/main.go", "src/main.go", types.ActionCreate},
		{"update tag", "FILE: src/main.go [update]", "src/main.go", types.ActionUpdate},
		{"delete tag with backticks", "## FILE: `old.go` [delete]", "old.go", types.ActionDelete},
		{"dot prefix cleaned", "FILE: ./src/main.go", "src/main.go", types.ActionCreate},
		{"dynamic route segment", "FILE: app/[id]/page.tsx", "app/[id]/page.tsx", types.ActionCreate},
		{"catch-all segment with tag", "FILE: `app/[...slug]/page.tsx` [update]", "app/[...slug]/page.tsx", types.ActionUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.marker + "\n```go\npackage main\n```\n")
			if len(got.Files) != 1 {
				t.Fatalf("Parse() files = %v, errors = %v", got.Files, got.Errors)
			}
			if got.Files[0].Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", got.Files[0].Path, tt.wantPath)
			}
			if got.Files[0].Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", got.Files[0].Action, tt.wantAction)
			}
		})
	}
}

func TestParse_StripsExactlyOneTrailingNewline(t *testing.T) {
	raw := "FILE: a.txt\n```\nline one\n\n```\n"

	got := Parse(raw)
	if len(got.Files) != 1 {
		t.Fatalf("Parse() files = %v", got.Files)
	}
	if got.Files[0].Content != "line one\n" {
		t.Errorf("Content = %q, want %q", got.Files[0].Content, "line one\n")
	}
}

func TestParse_EmptyBlock(t *testing.T) {
	got := Parse("FILE: empty.txt\n```\n```\n")
	if len(got.Files) != 1 || got.Files[0].Content != "" {
		t.Errorf("Parse() files = %+v, want one empty file", got.Files)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantMsg string
	}{
		{"no fence", "FILE: a.go\njust prose\n", "not followed by a fenced code block"},
		{"unterminated", "FILE: a.go\n```go\npackage a\n", "unterminated code block"},
		{"absolute", "FILE: /etc/hosts\n```\n127.0.0.1\n```\n", "absolute paths"},
		{"windows traversal", "FILE: a\\..\\..\\b\n```\nx\n```\n", "parent directory traversal"},
		{"empty marker", "FILE:\n```\nx\n```\n", "malformed file marker"},
		{"tag only", "FILE: [update]\n```\nx\n```\n", "malformed file marker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if len(got.Files) != 0 {
				t.Errorf("Parse() files = %v, want none", got.Files)
			}
			if len(got.Errors) != 1 || !strings.Contains(got.Errors[0], tt.wantMsg) {
				t.Errorf("Parse() errors = %v, want one containing %q", got.Errors, tt.wantMsg)
			}
		})
	}
}

func TestParse_NoMarkers(t *testing.T) {
	got := Parse("I could not produce any files.\n```\nstray code\n```\n")
	if len(got.Files) != 0 || len(got.Errors) != 0 {
		t.Errorf("Parse() = %+v, want empty result", got)
	}
}

func TestParse_CRLF(t *testing.T) {
	got := Parse("FILE: a.go\r\n```go\r\npackage a\r\n```\r\n")
	if len(got.Files) != 1 || got.Files[0].Content != "package a" {
		t.Errorf("Parse() files = %+v", got.Files)
	}
}

func TestConcat_RoundTrip(t *testing.T) {
	files := []types.FileChange{
		{Path: "a.go", Content: "package a", Action: types.ActionCreate},
		{Path: "b.go", Content: "package b\n", Action: types.ActionUpdate},
	}

	got := Parse(Concat(files))
	if diff := cmp.Diff(files, got.Files); diff != "" {
		t.Errorf("Parse(Concat()) mismatch (-want +got):\n%s", diff)
	}
}
