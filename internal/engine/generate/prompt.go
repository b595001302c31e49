package generate

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Iron-Ham/horizon/internal/util"
)

// SystemPrompt tells the backend its role and the output protocol.
const SystemPrompt = `You are a senior software engineer generating production code one phase at a time.

## Output Format
Emit every file you create or change as a marker line followed by exactly one fenced code block:

FILE: path/to/file.ext [create]
` + "```" + `lang
<entire file content>
` + "```" + `

**Rules:**
- Paths are relative to the repository root. Never use ".." or absolute paths.
- The action tag is one of [create], [update] or [delete]. It defaults to [create].
- Always emit the complete file, never a diff or an excerpt.
- Only emit files that belong to the current phase.`

// UserPromptTemplate is filled in by FormatUserPrompt.
const UserPromptTemplate = `## Current Phase: %s
%s

## Work Packet: %s
%s

## Tasks
%s

## Acceptance Criteria
%s

## Repository
**Tech stack:** %s

%s
%s
## Progress (iteration %d)
**Recently completed files:**
%s

**Key decisions:**
%s

**Open issues to fix:**
%s

**Pending tasks:**
%s

Generate the files for the %s phase now.`

// keyFileTemplate renders one key file summary.
const keyFileTemplate = `**%s:**
%s

`

// FormatUserPrompt builds the phase-aware prompt for one attempt.
func FormatUserPrompt(in Input) string {
	techStack := in.Summary.TechStack
	var tree, keyFiles string
	if in.Repo != nil {
		if len(techStack) == 0 {
			techStack = in.Repo.TechStack
		}
		tree = in.Repo.FileTreeSummary
		var sb strings.Builder
		for _, name := range slices.Sorted(maps.Keys(in.Repo.KeyFileSummaries)) {
			fmt.Fprintf(&sb, keyFileTemplate, name, in.Repo.KeyFileSummaries[name])
		}
		keyFiles = sb.String()
	}
	if tree == "" {
		tree = "(empty repository)"
	}
	stack := "unknown"
	if len(techStack) > 0 {
		stack = strings.Join(techStack, ", ")
	}

	description := in.Packet.Description
	if strings.TrimSpace(description) == "" {
		description = "(no description)"
	}

	return fmt.Sprintf(UserPromptTemplate,
		in.Phase.Name,
		in.Phase.Focus,
		in.Packet.Title,
		description,
		util.BulletList(in.Packet.Tasks),
		util.BulletList(in.Packet.AcceptanceCriteria),
		stack,
		tree,
		keyFiles,
		in.Summary.Iteration,
		util.BulletList(in.Summary.RecentFiles(RecentFileLimit)),
		util.BulletList(in.Summary.KeyDecisions),
		util.BulletList(in.Summary.Issues),
		util.BulletList(in.Summary.PendingTasks),
		in.Phase.Name,
	)
}
