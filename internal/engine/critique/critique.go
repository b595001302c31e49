// Package critique scores generated files against a packet's acceptance
// criteria by asking the backend for a JSON verdict.
//
// Parsing is defensive. ParseReport returns a *errors.CritiqueParseError for
// anything it cannot decode and Evaluate substitutes FallbackReport, so a
// broken critique never stops a run.
package critique

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/Iron-Ham/horizon/internal/errors"
	"github.com/Iron-Ham/horizon/internal/llm"
	"github.com/Iron-Ham/horizon/internal/logging"
	"github.com/Iron-Ham/horizon/internal/util"
)

const (
	// Temperature for critique calls.
	Temperature = 0.1

	// MaxTokens caps the verdict length.
	MaxTokens = 2048

	// MaxFilesChars bounds the generated code embedded in the prompt.
	MaxFilesChars = 60000

	// FallbackConfidence is reported when no verdict could be obtained.
	FallbackConfidence = 0.5

	// MaxIssuesFedBack is how many issues the scheduler carries into the
	// next prompt.
	MaxIssuesFedBack = 5
)

// Report is a critique verdict.
type Report struct {
	Issues                   []string `json:"issues"`
	Suggestions              []string `json:"suggestions"`
	Confidence               float64  `json:"confidence"`
	PassesAcceptanceCriteria bool     `json:"passes_acceptance_criteria"`
	CriteriaMet              []string `json:"criteria_met"`
	CriteriaMissing          []string `json:"criteria_missing"`

	// Fallback is true when the report was synthesized by FallbackReport.
	Fallback bool `json:"-"`
}

// TopIssues returns at most n issues, most severe first.
func (r *Report) TopIssues(n int) []string {
	if r == nil || n <= 0 {
		return nil
	}
	if len(r.Issues) <= n {
		return append([]string(nil), r.Issues...)
	}
	return append([]string(nil), r.Issues[:n]...)
}

// FallbackReport is the neutral verdict used when critique fails: confidence
// 0.5 with every acceptance criterion reported missing.
func FallbackReport(packet types.WorkPacket) *Report {
	return &Report{
		Confidence:      FallbackConfidence,
		CriteriaMissing: append([]string(nil), packet.AcceptanceCriteria...),
		Fallback:        true,
	}
}

// score accepts a JSON number or a numeric string such as "0.8" or "80%".
type score struct {
	value   float64
	set     bool
	percent bool
}

func (s *score) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		s.value, s.set = f, true
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("confidence must be a number, got %s", b)
	}
	str = strings.TrimSpace(str)
	trimmed := strings.TrimSuffix(str, "%")
	f, err := strconv.ParseFloat(strings.TrimSpace(trimmed), 64)
	if err != nil {
		return fmt.Errorf("confidence must be a number, got %q", str)
	}
	s.value, s.set, s.percent = f, true, trimmed != str
	return nil
}

// normalized maps the score into [0,1].
func (s score) normalized() float64 {
	if s.percent {
		return ClampConfidence(s.value / 100)
	}
	return ClampConfidence(s.value)
}

// rawReport mirrors Report with lenient field types.
type rawReport struct {
	Issues                   []string `json:"issues"`
	Suggestions              []string `json:"suggestions"`
	Confidence               score    `json:"confidence"`
	PassesAcceptanceCriteria bool     `json:"passes_acceptance_criteria"`
	CriteriaMet              []string `json:"criteria_met"`
	CriteriaMissing          []string `json:"criteria_missing"`
}

// ParseReport decodes a verdict from raw model output. Markdown fences,
// smart quotes and surrounding prose are tolerated.
func ParseReport(raw string) (*Report, error) {
	content := util.SanitizeJSON(raw)
	if content == "" {
		return nil, errors.NewCritiqueParseError(raw, errors.New("empty response"))
	}

	var rr rawReport
	if err := json.Unmarshal([]byte(content), &rr); err != nil {
		return nil, errors.NewCritiqueParseError(raw, err)
	}
	if !rr.Confidence.set {
		return nil, errors.NewCritiqueParseError(raw, errors.New("missing confidence"))
	}
	if math.IsNaN(rr.Confidence.value) || math.IsInf(rr.Confidence.value, 0) {
		return nil, errors.NewCritiqueParseError(raw, errors.New("confidence is not finite"))
	}

	return &Report{
		Issues:                   nonEmpty(rr.Issues),
		Suggestions:              nonEmpty(rr.Suggestions),
		Confidence:               rr.Confidence.normalized(),
		PassesAcceptanceCriteria: rr.PassesAcceptanceCriteria,
		CriteriaMet:              nonEmpty(rr.CriteriaMet),
		CriteriaMissing:          nonEmpty(rr.CriteriaMissing),
	}, nil
}

// ClampConfidence maps v into [0,1]. Values in [2,100] are read as
// percentages; a slight overshoot below 2 clamps to 1.
func ClampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v <= 1:
		return v
	case v < 2:
		return 1
	case v <= 100:
		return v / 100
	default:
		return 1
	}
}

func nonEmpty(items []string) []string {
	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Input is what the gate reviews.
type Input struct {
	Packet types.WorkPacket
	// Files is the generated code, concatenated in the file-block protocol.
	Files string
	Repo  *types.RepoContext
}

// Gate calls a backend in the critique role.
type Gate struct {
	backend llm.Backend
	server  string
	logger  *logging.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithServer sets the preferred backend server.
func WithServer(name string) Option {
	return func(g *Gate) { g.server = name }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Gate over backend.
func New(backend llm.Backend, opts ...Option) *Gate {
	g := &Gate{backend: backend, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate critiques in. It always returns a usable report; when the
// backend or parsing fails the report is FallbackReport(in.Packet) and the
// returned error explains why.
func (g *Gate) Evaluate(ctx context.Context, in Input) (*Report, error) {
	resp, err := g.backend.Generate(ctx, llm.Request{
		SystemPrompt:    SystemPrompt,
		UserPrompt:      FormatUserPrompt(in),
		Temperature:     Temperature,
		MaxTokens:       MaxTokens,
		PreferredServer: g.server,
	})
	if err != nil {
		g.logger.Warn("critique call failed, using fallback verdict", "error", err.Error())
		return FallbackReport(in.Packet), fmt.Errorf("critique call: %w", err)
	}
	if resp == nil {
		resp = &llm.Response{}
	}

	report, err := ParseReport(resp.Content)
	if err != nil {
		g.logger.Warn("critique verdict unreadable, using fallback verdict",
			"server", resp.Server,
			"error", err.Error(),
		)
		return FallbackReport(in.Packet), err
	}

	g.logger.Debug("critique verdict",
		"server", resp.Server,
		"confidence", report.Confidence,
		"issues", len(report.Issues),
		"passes", report.PassesAcceptanceCriteria,
	)
	return report, nil
}
