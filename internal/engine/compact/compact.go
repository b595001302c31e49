// Package compact condenses the rolling context summary so prompts stay
// bounded over long runs.
//
// Compact always returns a bounded summary. The backend is asked to condense
// decisions, issues and pending tasks; if that fails the input is
// deduplicated and truncated deterministically instead. Structural fields
// (project name, tech stack, current phase, iteration) are copied exactly and
// never summarized.
package compact

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/Iron-Ham/horizon/internal/errors"
	"github.com/Iron-Ham/horizon/internal/llm"
	"github.com/Iron-Ham/horizon/internal/logging"
	"github.com/Iron-Ham/horizon/internal/util"
)

// Bounds applied to every compacted summary.
const (
	MaxCompletedFiles = 50
	MaxKeyDecisions   = 5
	MaxIssues         = 5
	MaxPendingTasks   = 10

	maxRecentChars = 20000
	temperature    = 0.1
	maxTokens      = 1024
)

const systemPrompt = `You condense the working memory of a code generation run. Keep only what the next iteration needs. Respond with a single JSON object and nothing else.`

const userPromptTemplate = `## Project: %s (phase %s, iteration %d)

## Key Decisions
%s

## Open Issues
%s

## Pending Tasks
%s

## Completed Files
%s

## Recent Output
%s

## Required JSON structure
` + "```json" + `
{
  "key_decisions": ["at most %d, most important first"],
  "issues": ["at most %d unresolved issues"],
  "pending_tasks": ["at most %d remaining tasks"],
  "completed_files": ["paths from Completed Files that still matter"]
}
` + "```"

type condensed struct {
	KeyDecisions   []string `json:"key_decisions"`
	Issues         []string `json:"issues"`
	PendingTasks   []string `json:"pending_tasks"`
	CompletedFiles []string `json:"completed_files"`
}

// Compactor calls a backend in the compaction role.
type Compactor struct {
	backend llm.Backend
	server  string
	logger  *logging.Logger
}

// Option configures a Compactor.
type Option func(*Compactor)

// WithServer sets the preferred backend server.
func WithServer(name string) Option {
	return func(c *Compactor) { c.server = name }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Compactor) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Compactor. A nil backend always uses the deterministic path.
func New(backend llm.Backend, opts ...Option) *Compactor {
	c := &Compactor{backend: backend, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact returns a bounded replacement for summary. On backend or parse
// failure it returns Fallback(summary) and the non-fatal cause.
func (c *Compactor) Compact(ctx context.Context, summary types.ContextSummary, recent string) (types.ContextSummary, error) {
	if c.backend == nil {
		return Fallback(summary), nil
	}

	resp, err := c.backend.Generate(ctx, llm.Request{
		SystemPrompt:    systemPrompt,
		UserPrompt:      formatPrompt(summary, recent),
		Temperature:     temperature,
		MaxTokens:       maxTokens,
		PreferredServer: c.server,
	})
	if err != nil {
		c.logger.Warn("compaction call failed, truncating instead", "error", err.Error())
		return Fallback(summary), fmt.Errorf("compaction call: %w", err)
	}
	if resp == nil {
		resp = &llm.Response{}
	}

	var out condensed
	if err := json.Unmarshal([]byte(util.SanitizeJSON(resp.Content)), &out); err != nil {
		c.logger.Warn("compaction reply unreadable, truncating instead", "error", err.Error())
		return Fallback(summary), errors.Wrap(err, "compaction reply")
	}

	next := Fallback(summary)
	if v := clean(out.KeyDecisions); len(v) > 0 {
		next.KeyDecisions = head(v, MaxKeyDecisions)
	}
	if v := clean(out.Issues); len(v) > 0 {
		next.Issues = head(v, MaxIssues)
	}
	if v := clean(out.PendingTasks); len(v) > 0 {
		next.PendingTasks = head(v, MaxPendingTasks)
	}
	if files := known(out.CompletedFiles, next.CompletedFiles); len(files) > 0 {
		next.CompletedFiles = files
	}

	c.logger.Debug("context compacted",
		"iteration", next.Iteration,
		"files_before", len(summary.CompletedFiles),
		"files_after", len(next.CompletedFiles),
	)
	return next, nil
}

// Fallback deduplicates and truncates summary without a backend. Completed
// files keep their last occurrence and only the most recent are retained;
// the most recent decisions are kept, and the first issues and pending tasks.
func Fallback(summary types.ContextSummary) types.ContextSummary {
	next := summary.Clone()
	next.CompletedFiles = tail(dedupeLast(next.CompletedFiles), MaxCompletedFiles)
	next.KeyDecisions = tail(dedupeLast(next.KeyDecisions), MaxKeyDecisions)
	next.Issues = head(next.Issues, MaxIssues)
	next.PendingTasks = head(next.PendingTasks, MaxPendingTasks)
	return next
}

func formatPrompt(s types.ContextSummary, recent string) string {
	return fmt.Sprintf(userPromptTemplate,
		s.ProjectName, s.CurrentPhase, s.Iteration,
		util.BulletList(s.KeyDecisions),
		util.BulletList(s.Issues),
		util.BulletList(s.PendingTasks),
		util.BulletList(dedupeLast(s.CompletedFiles)),
		util.TruncateString(recent, maxRecentChars),
		MaxKeyDecisions, MaxIssues, MaxPendingTasks,
	)
}

// dedupeLast removes duplicates, keeping each item at its last position.
func dedupeLast(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	last := make(map[string]int, len(items))
	for i, item := range items {
		last[item] = i
	}
	out := make([]string, 0, len(last))
	for i, item := range items {
		if last[item] == i {
			out = append(out, item)
		}
	}
	return out
}

// known keeps the paths of proposed that appear in allowed, in allowed's
// order, so the backend can drop files but never invent them.
func known(proposed, allowed []string) []string {
	keep := make(map[string]bool, len(proposed))
	for _, p := range proposed {
		keep[strings.TrimSpace(p)] = true
	}
	var out []string
	for _, a := range allowed {
		if keep[a] {
			out = append(out, a)
		}
	}
	return out
}

func clean(items []string) []string {
	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func head(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func tail(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
