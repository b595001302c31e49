// Package engine runs a work packet through an ordered pipeline of phases.
//
// Each phase loops generate → critique → maybe compact until the critique
// confidence reaches the threshold or the phase's iteration budget runs out.
// Progress is reported on an [event.Stream]; the final [types.Result] is
// carried by the terminal update. Nothing crosses the engine boundary as an
// error or panic: failures are recorded in Result.Errors.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/horizon/internal/engine/compact"
	"github.com/Iron-Ham/horizon/internal/engine/critique"
	"github.com/Iron-Ham/horizon/internal/engine/generate"
	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/Iron-Ham/horizon/internal/errors"
	"github.com/Iron-Ham/horizon/internal/event"
	"github.com/Iron-Ham/horizon/internal/llm"
	"github.com/Iron-Ham/horizon/internal/logging"
	"github.com/Iron-Ham/horizon/internal/repocontext"
)

const (
	// DisabledCritiqueConfidence is recorded for phases that skip critique.
	DisabledCritiqueConfidence = 0.8

	// SuccessFactor scales the threshold every phase must reach for the run
	// to count as successful.
	SuccessFactor = 0.9

	defaultStreamBuffer = 16
)

// Servers names the preferred backend server per role. Empty uses the
// backend's default.
type Servers struct {
	Generation string
	Critique   string
	Compaction string
}

// Config is the immutable configuration of an Engine.
type Config struct {
	// Backend serves every role.
	Backend llm.Backend
	Servers Servers

	Phases     []types.Phase
	Guardrails types.Guardrails

	// Repo supplies repository context once per run. Nil means none.
	Repo repocontext.Provider
}

// Engine holds configuration only; every Run owns its own state, so one
// Engine may serve several runs.
type Engine struct {
	cfg    Config
	logger *logging.Logger
	clock  func() time.Time
	bus    *event.Bus
	buffer int

	generator *generate.Attempt
	gate      *critique.Gate
	compactor *compact.Compactor
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the time source used for elapsed-time checks and event
// timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithBus publishes every update to bus as well as the stream.
func WithBus(bus *event.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithStreamBuffer sets the update channel capacity.
func WithStreamBuffer(n int) Option {
	return func(e *Engine) { e.buffer = n }
}

// New validates cfg and creates an Engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, errors.NewValidationError("backend is required").WithField("backend")
	}
	if len(cfg.Phases) == 0 {
		return nil, errors.NewValidationError("at least one phase is required").WithField("phases")
	}
	g := cfg.Guardrails
	if g.MaxRetriesPerPhase < 1 {
		return nil, errors.NewValidationError("must be at least 1").WithField("max_retries_per_phase").WithValue(g.MaxRetriesPerPhase)
	}
	if g.MaxTotalIterations < 1 {
		return nil, errors.NewValidationError("must be at least 1").WithField("max_total_iterations").WithValue(g.MaxTotalIterations)
	}
	if g.MinConfidenceToAdvance < 0 || g.MinConfidenceToAdvance > 1 {
		return nil, errors.NewValidationError("must be between 0 and 1").WithField("min_confidence_to_advance").WithValue(g.MinConfidenceToAdvance)
	}
	if g.TimeoutMinutes < 0 {
		return nil, errors.NewValidationError("must not be negative").WithField("timeout_minutes").WithValue(g.TimeoutMinutes)
	}
	if cfg.Guardrails.BudgetPolicy == "" {
		cfg.Guardrails.BudgetPolicy = types.BudgetDegrade
	}
	cfg.Phases = append([]types.Phase(nil), cfg.Phases...)

	e := &Engine{
		cfg:    cfg,
		logger: logging.NopLogger(),
		clock:  time.Now,
		buffer: defaultStreamBuffer,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.generator = generate.New(cfg.Backend, generate.WithServer(cfg.Servers.Generation), generate.WithLogger(e.logger))
	e.gate = critique.New(cfg.Backend, critique.WithServer(cfg.Servers.Critique), critique.WithLogger(e.logger))
	e.compactor = compact.New(cfg.Backend, compact.WithServer(cfg.Servers.Compaction), compact.WithLogger(e.logger))
	return e, nil
}

// Guardrails returns the limits runs are bound by.
func (e *Engine) Guardrails() types.Guardrails {
	return e.cfg.Guardrails
}

// Run starts a run for packet and returns its update stream. The producer
// goroutine exits once the terminal update is delivered or ctx is done.
func (e *Engine) Run(ctx context.Context, packet types.WorkPacket) *event.Stream {
	runID := uuid.NewString()[:8]
	stream, emitter := event.NewStream(ctx, e.buffer, e.bus)

	r := &run{
		engine:  e,
		id:      runID,
		packet:  packet,
		emitter: emitter,
		logger:  e.logger.WithRun(runID).WithPacket(packet.Title),
	}
	go r.execute(ctx)
	return stream
}

// Execute runs packet to completion and returns the result.
func (e *Engine) Execute(ctx context.Context, packet types.WorkPacket) *types.Result {
	return e.Run(ctx, packet).Drain()
}
