// Package output extracts file edits from generator text.
//
// The generator is asked to emit each file as a marker line followed by one
// fenced code block:
//
//	FILE: src/app.ts [create]
//	```ts
//	export const app = 1;
//	```
//
// The marker may be prefixed by markdown heading hashes and the path may be
// wrapped in backticks. Brackets may appear in the path (app/[id]/page.tsx);
// only a trailing [create], [update] or [delete] is read as the action tag,
// which defaults to create.
package output

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/Iron-Ham/horizon/internal/errors"
)

// Result is the outcome of parsing one generator response.
type Result struct {
	Files  []types.FileChange
	Errors []string
}

var (
	markerPattern = regexp.MustCompile(`^\s*(?:#{1,6}\s*)?(?:\*\*)?FILE:(?:\*\*)?(.*)$`)
	actionPattern = regexp.MustCompile(`\s*\[(create|update|delete)\]\s*$`)
	fencePattern  = regexp.MustCompile("^\\s*```")
)

// Parse scans raw for file blocks in order of appearance. Rejected blocks are
// reported in Result.Errors and never added to Result.Files. Parse is pure:
// the same input always yields the same result.
func Parse(raw string) Result {
	var res Result
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	for i := 0; i < len(lines); i++ {
		m := markerPattern.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		filePath, action := splitMarker(m[1])
		if filePath == "" || strings.ContainsRune(filePath, '`') {
			res.Errors = append(res.Errors, errors.NewParseError(filePath, "malformed file marker").Error())
			continue
		}

		// The fence must be the next non-blank line.
		j := i + 1
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		if j >= len(lines) || !fencePattern.MatchString(lines[j]) {
			res.Errors = append(res.Errors, errors.NewParseError(filePath, "marker is not followed by a fenced code block").Error())
			continue
		}

		end := j + 1
		for end < len(lines) && !isClosingFence(lines[end]) {
			end++
		}
		if end >= len(lines) {
			res.Errors = append(res.Errors, errors.NewParseError(filePath, "unterminated code block").Error())
			i = end
			continue
		}
		i = end

		if reason := checkPath(filePath); reason != "" {
			res.Errors = append(res.Errors, errors.NewParseError(filePath, reason).Error())
			continue
		}

		// Joining drops the newline before the closing fence, which is the
		// one trailing newline stripped from the content.
		content := strings.Join(lines[j+1:end], "\n")
		res.Files = append(res.Files, types.FileChange{
			Path:    path.Clean(filePath),
			Content: content,
			Action:  action,
		})
	}
	return res
}

// splitMarker separates the text after FILE: into a path and the trailing
// action tag. Brackets elsewhere in the path are kept.
func splitMarker(rest string) (string, types.FileAction) {
	action := types.ActionCreate
	if loc := actionPattern.FindStringSubmatchIndex(rest); loc != nil {
		action = types.FileAction(rest[loc[2]:loc[3]])
		rest = rest[:loc[0]]
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(rest), "`")), action
}

func isClosingFence(line string) bool {
	return strings.TrimSpace(line) == "```"
}

// checkPath returns a rejection reason, or "" if p is acceptable.
func checkPath(p string) string {
	if p == "" {
		return "empty path"
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") || (len(p) > 1 && p[1] == ':') {
		return "absolute paths are not allowed"
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "parent directory traversal is not allowed"
		}
	}
	return ""
}

// Concat renders files in the marker protocol, for feeding generated code
// back into a critique or compaction prompt.
func Concat(files []types.FileChange) string {
	var sb strings.Builder
	for i, f := range files {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "FILE: %s [%s]\n```\n%s\n```\n", f.Path, f.Action, f.Content)
	}
	return sb.String()
}
