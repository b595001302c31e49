package util

import (
	"regexp"
	"strings"
)

var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
	"«", `"`, "»", `"`, "＂", `"`,
	"‘", `'`, "’", `'`, "‚", `'`, "‛", `'`,
	"‹", `'`, "›", `'`,
)

// fencedBlock matches the first markdown code fence, with or without a
// language tag.
var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)\\n?```")

// SanitizeJSON recovers a JSON object from model output. It normalizes smart
// quotes, unwraps a markdown code fence, and cuts any prose before the first
// '{' and after the last '}'. The result is not guaranteed to be valid JSON.
func SanitizeJSON(raw string) string {
	content := quoteReplacer.Replace(raw)

	if m := fencedBlock.FindStringSubmatch(content); len(m) > 1 {
		content = m[1]
	}

	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start > 0 {
		content = content[start:]
	}
	if end := strings.LastIndex(content, "}"); end >= 0 && end < len(content)-1 {
		content = content[:end+1]
	}
	return strings.TrimSpace(content)
}
