package critique

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/horizon/internal/util"
)

// SystemPrompt puts the backend in the critique role.
const SystemPrompt = `You are a CRITICAL REVIEWER of generated code. Be demanding: your job is to find problems, not to approve work prematurely.

Respond with a single JSON object and nothing else. Do not wrap it in prose.`

// UserPromptTemplate is filled in by FormatUserPrompt.
const UserPromptTemplate = `## Work Packet: %s
%s

## Acceptance Criteria
%s

## Repository Tech Stack
%s

## Generated Files
%s

## Required JSON structure
` + "```json" + `
{
  "issues": ["Missing error handling in handlers/todo.go"],
  "suggestions": ["Add request logging"],
  "confidence": 0.65,
  "passes_acceptance_criteria": false,
  "criteria_met": ["All endpoints return JSON"],
  "criteria_missing": ["Input is validated"]
}
` + "```" + `

**Rules:**
- confidence is a number from 0.0 to 1.0 estimating how fully the acceptance criteria are satisfied
- issues lists concrete problems that MUST be fixed, most severe first
- every acceptance criterion appears in exactly one of criteria_met or criteria_missing
- set passes_acceptance_criteria to true ONLY if criteria_missing is empty`

// FormatUserPrompt builds the critique prompt for in.
func FormatUserPrompt(in Input) string {
	stack := "unknown"
	if in.Repo != nil && len(in.Repo.TechStack) > 0 {
		stack = strings.Join(in.Repo.TechStack, ", ")
	}
	files := in.Files
	if strings.TrimSpace(files) == "" {
		files = "(no files)"
	}
	return fmt.Sprintf(UserPromptTemplate,
		in.Packet.Title,
		in.Packet.Description,
		util.BulletList(in.Packet.AcceptanceCriteria),
		stack,
		util.TruncateString(files, MaxFilesChars),
	)
}
