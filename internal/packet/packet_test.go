package packet

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/horizon/internal/engine/types"
	herrors "github.com/Iron-Ham/horizon/internal/errors"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	want := types.WorkPacket{
		Title:              "Todo API",
		Description:        "REST service for todos",
		Tasks:              []string{"CRUD endpoints", "Persistence"},
		AcceptanceCriteria: []string{"Returns JSON"},
	}

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "packet.yaml",
			content: `title: "  Todo API  "
description: |
  REST service for todos
tasks:
  - CRUD endpoints
  - Persistence
acceptance_criteria:
  - Returns JSON
`,
		},
		{
			name:    "json",
			file:    "packet.json",
			content: `{"title":"Todo API","description":"REST service for todos","tasks":["CRUD endpoints","Persistence"],"acceptance_criteria":["Returns JSON"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(writeTemp(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", "", "packet is empty"},
		{"unknown field", "title: x\ndescription: y\nowner: bob\n", "owner"},
		{"missing title", "description: y\n", "title is required"},
		{"no work", "title: x\n", "description or at least one task"},
		{"blank task", "title: x\ntasks: ['ok', '  ']\n", "tasks[1]"},
		{"blank criterion", "title: x\ndescription: y\nacceptance_criteria: ['']\n", "acceptance_criteria[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, "p.yaml", tt.content))
			if err == nil {
				t.Fatal("Load() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %q, want it to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	err := Validate(types.WorkPacket{Tasks: []string{""}})
	if !errors.Is(err, herrors.ErrInvalidInput) {
		t.Errorf("Validate() error = %v, want ErrInvalidInput", err)
	}
	for _, want := range []string{"title", "tasks[0]"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q missing %q", err.Error(), want)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want ErrNotExist", err)
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	p := types.WorkPacket{Title: "T", Description: "D", Tasks: []string{"a"}}
	data, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
