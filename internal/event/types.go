package event

import (
	"time"

	"github.com/Iron-Ham/horizon/internal/engine/types"
)

// UpdateType is the discriminant of an Update. Consumers switch on it.
type UpdateType string

const (
	TypePhaseStart    UpdateType = "phase_start"
	TypeGenerating    UpdateType = "generating"
	TypeCritiquing    UpdateType = "critiquing"
	TypeSummarizing   UpdateType = "summarizing"
	TypePhaseComplete UpdateType = "phase_complete"
	TypeCheckpoint    UpdateType = "checkpoint"
	TypeCompleted     UpdateType = "completed"
	TypeFailed        UpdateType = "failed"
)

// IsTerminal reports whether t ends a stream.
func (t UpdateType) IsTerminal() bool {
	return t == TypeCompleted || t == TypeFailed
}

// AllTypes returns every update type in emission order.
func AllTypes() []UpdateType {
	return []UpdateType{
		TypePhaseStart, TypeGenerating, TypeCritiquing, TypeSummarizing,
		TypePhaseComplete, TypeCheckpoint, TypeCompleted, TypeFailed,
	}
}

// Update is one progress event of a run. Optional fields are nil when they
// do not apply to the update's type.
type Update struct {
	Type            UpdateType `json:"type"`
	RunID           string     `json:"run_id"`
	Phase           string     `json:"phase,omitempty"`
	Iteration       int        `json:"iteration"`
	TotalIterations int        `json:"total_iterations"`
	Message         string     `json:"message,omitempty"`
	Time            time.Time  `json:"time"`

	Confidence     *float64              `json:"confidence,omitempty"`
	FilesGenerated *int                  `json:"files_generated,omitempty"`
	ContextSummary *types.ContextSummary `json:"context_summary,omitempty"`

	// Result is set on the terminal update only.
	Result *types.Result `json:"result,omitempty"`
}

// WithConfidence returns a copy of u carrying confidence.
func (u Update) WithConfidence(c float64) Update {
	u.Confidence = &c
	return u
}

// WithFiles returns a copy of u carrying the generated file count.
func (u Update) WithFiles(n int) Update {
	u.FilesGenerated = &n
	return u
}

// WithSummary returns a copy of u carrying a snapshot of summary.
func (u Update) WithSummary(summary types.ContextSummary) Update {
	s := summary.Clone()
	u.ContextSummary = &s
	return u
}
