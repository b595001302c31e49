// Package generate runs one generation attempt: it builds a phase-aware
// prompt, calls the backend and parses the file blocks in its reply.
package generate

import (
	"context"
	"time"

	"github.com/Iron-Ham/horizon/internal/engine/output"
	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/Iron-Ham/horizon/internal/errors"
	"github.com/Iron-Ham/horizon/internal/llm"
	"github.com/Iron-Ham/horizon/internal/logging"
)

const (
	// Temperature is fixed low so retries stay close to the previous attempt.
	Temperature = 0.2

	// RecentFileLimit bounds the completed files shown in the prompt.
	RecentFileLimit = 20
)

// Input is everything one attempt needs.
type Input struct {
	Packet     types.WorkPacket
	Phase      types.Phase
	Summary    types.ContextSummary
	Repo       *types.RepoContext
	Guardrails types.Guardrails
}

// Output is the outcome of one attempt. Err is a *errors.GenerationError
// when the backend call failed. Files may be empty with a nil Err, which
// callers treat as a failed attempt (see Failure).
type Output struct {
	Files       []types.FileChange
	ParseErrors []string
	Err         error
	Server      string
	Model       string
	Duration    time.Duration
}

// Failure returns the error that makes this attempt unusable, or nil.
// Empty output is reported as a GenerationError wrapping ErrEmptyOutput.
func (o Output) Failure(phase string, iteration int) error {
	if o.Err != nil {
		return o.Err
	}
	if len(o.Files) == 0 {
		return errors.NewGenerationError(phase, iteration, errors.ErrEmptyOutput).WithServer(o.Server)
	}
	return nil
}

// Attempt calls a backend in the generation role.
type Attempt struct {
	backend llm.Backend
	server  string
	logger  *logging.Logger
}

// Option configures an Attempt.
type Option func(*Attempt)

// WithServer sets the preferred backend server.
func WithServer(name string) Option {
	return func(a *Attempt) { a.server = name }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Attempt) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Attempt over backend.
func New(backend llm.Backend, opts ...Option) *Attempt {
	a := &Attempt{backend: backend, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run performs the attempt. It never panics and never returns backend
// failures other than through Output.Err.
func (a *Attempt) Run(ctx context.Context, in Input) Output {
	start := time.Now()
	req := llm.Request{
		SystemPrompt:    SystemPrompt,
		UserPrompt:      FormatUserPrompt(in),
		Temperature:     Temperature,
		MaxTokens:       in.Guardrails.MaxTokensPerGeneration,
		PreferredServer: a.server,
	}

	resp, err := a.backend.Generate(ctx, req)
	if err != nil {
		a.logger.Warn("generation call failed",
			"phase", in.Phase.Name,
			"iteration", in.Summary.Iteration,
			"error", err.Error(),
		)
		return Output{
			Err:      errors.NewGenerationError(in.Phase.Name, in.Summary.Iteration, err).WithServer(a.server),
			Duration: time.Since(start),
		}
	}

	if resp == nil {
		resp = &llm.Response{}
	}
	parsed := output.Parse(resp.Content)
	for _, pe := range parsed.Errors {
		a.logger.Warn("rejected file block", "phase", in.Phase.Name, "error", pe)
	}
	a.logger.Debug("generation parsed",
		"phase", in.Phase.Name,
		"iteration", in.Summary.Iteration,
		"server", resp.Server,
		"files", len(parsed.Files),
		"parse_errors", len(parsed.Errors),
	)

	return Output{
		Files:       parsed.Files,
		ParseErrors: parsed.Errors,
		Server:      resp.Server,
		Model:       resp.Model,
		Duration:    time.Since(start),
	}
}
