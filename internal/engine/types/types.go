// Package types holds the data model shared by the horizon engine and its
// collaborators: the work packet, guardrails, the rolling context summary,
// parsed file changes, and per-phase and per-run results.
package types

import (
	"slices"
	"time"
)

// WorkPacket is one unit of work handed to the engine. It is never mutated
// during a run.
type WorkPacket struct {
	Title              string   `json:"title" yaml:"title"`
	Description        string   `json:"description" yaml:"description"`
	Tasks              []string `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria,omitempty"`
}

// BudgetPolicy decides what happens once the global iteration cap is hit.
type BudgetPolicy string

const (
	// BudgetDegrade lets the remaining phases start, immediately re-hit the
	// cap, and record an exhausted zero-iteration result each.
	BudgetDegrade BudgetPolicy = "degrade"

	// BudgetAbort ends the run at the first exhaustion.
	BudgetAbort BudgetPolicy = "abort"
)

// Guardrails bound a single run. They are immutable for its duration.
type Guardrails struct {
	MaxRetriesPerPhase        int
	MaxTotalIterations        int
	MaxTokensPerGeneration    int
	MinConfidenceToAdvance    float64 // 0..1
	SummarizeEveryNIterations int
	TimeoutMinutes            float64
	RequireCritiquePass       bool
	BudgetPolicy              BudgetPolicy
}

// Timeout returns the wall-clock limit as a duration.
func (g Guardrails) Timeout() time.Duration {
	return time.Duration(g.TimeoutMinutes * float64(time.Minute))
}

// Phase is one stage of the ordered pipeline.
type Phase struct {
	Name  string
	Focus string
}

// DefaultPhases returns the standard scaffold → shared → features → integration pipeline.
func DefaultPhases() []Phase {
	return []Phase{
		{Name: "scaffold", Focus: "Project structure, configuration files, dependency manifests and entry points"},
		{Name: "shared", Focus: "Shared types, utilities, data models and common infrastructure"},
		{Name: "features", Focus: "Core feature implementation satisfying the tasks and acceptance criteria"},
		{Name: "integration", Focus: "Wiring components together, tests, documentation and final polish"},
	}
}

// ContextSummary is the rolling, bounded memory carried between iterations.
// The scheduler owns it; the compactor replaces it wholesale and the
// critique step writes Issues.
type ContextSummary struct {
	ProjectName    string   `json:"project_name"`
	TechStack      []string `json:"tech_stack,omitempty"`
	CurrentPhase   string   `json:"current_phase"`
	CompletedFiles []string `json:"completed_files,omitempty"`
	PendingTasks   []string `json:"pending_tasks,omitempty"`
	KeyDecisions   []string `json:"key_decisions,omitempty"`
	Issues         []string `json:"issues,omitempty"`
	Iteration      int      `json:"iteration"`
}

// Clone returns a deep copy.
func (s ContextSummary) Clone() ContextSummary {
	s.TechStack = slices.Clone(s.TechStack)
	s.CompletedFiles = slices.Clone(s.CompletedFiles)
	s.PendingTasks = slices.Clone(s.PendingTasks)
	s.KeyDecisions = slices.Clone(s.KeyDecisions)
	s.Issues = slices.Clone(s.Issues)
	return s
}

// RecentFiles returns up to n of the most recently completed files.
func (s ContextSummary) RecentFiles(n int) []string {
	if n <= 0 || len(s.CompletedFiles) == 0 {
		return nil
	}
	if len(s.CompletedFiles) <= n {
		return s.CompletedFiles
	}
	return s.CompletedFiles[len(s.CompletedFiles)-n:]
}

// FileAction is the intended effect of a FileChange.
type FileAction string

const (
	ActionCreate FileAction = "create"
	ActionUpdate FileAction = "update"
	ActionDelete FileAction = "delete"
)

// Valid reports whether a is a known action.
func (a FileAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// FileChange is one parsed file edit. Path is relative and never contains a
// ".." segment.
type FileChange struct {
	Path    string     `json:"path"`
	Content string     `json:"content"`
	Action  FileAction `json:"action"`
}

// MergeFiles merges changes by path in order; a later change to the same path
// replaces the earlier one but keeps its original position.
func MergeFiles(changes ...[]FileChange) []FileChange {
	var out []FileChange
	index := make(map[string]int)
	for _, batch := range changes {
		for _, fc := range batch {
			if i, ok := index[fc.Path]; ok {
				out[i] = fc
				continue
			}
			index[fc.Path] = len(out)
			out = append(out, fc)
		}
	}
	return out
}

// PhaseStatus is the terminal state of a phase.
type PhaseStatus string

const (
	// PhaseAdvanced means confidence reached the threshold, or critique was disabled.
	PhaseAdvanced PhaseStatus = "advanced"
	// PhaseExhausted means the phase or global iteration budget ran out.
	PhaseExhausted PhaseStatus = "exhausted"
	// PhaseAborted means the run deadline passed while the phase was running.
	PhaseAborted PhaseStatus = "aborted"
)

// PhaseResult is created once when a phase's loop exits.
type PhaseResult struct {
	Phase         string       `json:"phase"`
	Status        PhaseStatus  `json:"status"`
	Iterations    int          `json:"iterations"`
	Files         []FileChange `json:"files"`
	Confidence    float64      `json:"confidence"`
	AttemptErrors []string     `json:"attempt_errors,omitempty"`
}

// Result is the aggregate outcome of a run.
type Result struct {
	RunID           string           `json:"run_id"`
	Success         bool             `json:"success"`
	Aborted         bool             `json:"aborted"`
	Phases          []PhaseResult    `json:"phases"`
	AllFiles        []FileChange     `json:"all_files"`
	ContextHistory  []ContextSummary `json:"context_history,omitempty"`
	TotalIterations int              `json:"total_iterations"`
	Duration        time.Duration    `json:"duration"`
	Errors          []string         `json:"errors,omitempty"`
}

// Phase returns the result for the named phase, or nil.
func (r *Result) Phase(name string) *PhaseResult {
	for i := range r.Phases {
		if r.Phases[i].Phase == name {
			return &r.Phases[i]
		}
	}
	return nil
}

// RepoContext describes the target repository. It is fetched once per run.
type RepoContext struct {
	TechStack        []string          `json:"tech_stack,omitempty"`
	FileTreeSummary  string            `json:"file_tree_summary,omitempty"`
	KeyFileSummaries map[string]string `json:"key_file_summaries,omitempty"`
}
