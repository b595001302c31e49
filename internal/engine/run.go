package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/horizon/internal/engine/critique"
	"github.com/Iron-Ham/horizon/internal/engine/generate"
	"github.com/Iron-Ham/horizon/internal/engine/output"
	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/Iron-Ham/horizon/internal/errors"
	"github.com/Iron-Ham/horizon/internal/event"
	"github.com/Iron-Ham/horizon/internal/logging"
	"github.com/Iron-Ham/horizon/internal/util"
)

// run is the state of one execution. It is owned by a single goroutine.
type run struct {
	engine  *Engine
	id      string
	packet  types.WorkPacket
	emitter *event.Emitter
	logger  *logging.Logger

	ctx   context.Context
	start time.Time
	repo  *types.RepoContext

	summary         types.ContextSummary
	history         []types.ContextSummary
	phases          []types.PhaseResult
	allFiles        []types.FileChange
	errors          []string
	totalIterations int
	aborted         bool
}

// phaseState tracks one phase's loop.
type phaseState struct {
	phase         types.Phase
	iterations    int
	batches       [][]types.FileChange
	confidence    float64
	advanced      bool
	budgetErr     error
	attemptErrors []string
	lastParseErr  string
}

func (r *run) execute(parent context.Context) {
	e := r.engine
	r.start = e.clock()
	r.ctx = parent

	r.logger.Info("run started",
		"phases", len(e.cfg.Phases),
		"max_total_iterations", e.cfg.Guardrails.MaxTotalIterations,
	)

	// Fetched with the parent context so an already expired deadline is
	// reported as a timeout by the first iteration check.
	if e.cfg.Repo != nil {
		repo, err := e.cfg.Repo.Fetch(parent)
		if err != nil {
			var rce *errors.RepoContextError
			if !errors.As(err, &rce) {
				err = errors.NewRepoContextError("", err)
			}
			r.fail(err)
			r.finish()
			return
		}
		r.repo = repo
	}

	r.summary = types.ContextSummary{
		ProjectName:  util.Slugify(r.packet.Title, 48),
		PendingTasks: append([]string(nil), r.packet.Tasks...),
	}
	if r.repo != nil {
		r.summary.TechStack = append([]string(nil), r.repo.TechStack...)
	}

	for _, phase := range e.cfg.Phases {
		if r.aborted {
			break
		}
		r.runPhase(phase)
	}
	r.finish()
}

func (r *run) runPhase(phase types.Phase) {
	g := r.engine.cfg.Guardrails
	ps := &phaseState{phase: phase}
	logger := r.logger.WithPhase(phase.Name)

	r.summary.CurrentPhase = phase.Name
	r.emit(ps, event.TypePhaseStart, fmt.Sprintf("Starting phase %s", phase.Name))

	for ps.iterations < g.MaxRetriesPerPhase {
		if err := r.checkDeadline(phase.Name); err != nil {
			logger.Error("run deadline reached", "error", err.Error())
			r.fail(err)
			break
		}
		if r.totalIterations >= g.MaxTotalIterations {
			ps.budgetErr = errors.NewBudgetExceededError("max_total_iterations", r.totalIterations, g.MaxTotalIterations).WithPhase(phase.Name)
			logger.Warn("iteration budget exhausted", "policy", string(g.BudgetPolicy))
			if g.BudgetPolicy == types.BudgetAbort {
				r.aborted = true
			}
			break
		}

		ps.iterations++
		r.totalIterations++
		r.summary.Iteration = r.totalIterations

		ctx, cancel := r.callContext()
		recent := r.iterate(ctx, ps, logger)
		r.maybeCompact(ctx, ps, recent)
		cancel()
		if ps.advanced {
			break
		}
	}

	r.completePhase(ps, logger)
}

// iterate runs one generate and critique step and returns the generated
// files in block form for compaction.
func (r *run) iterate(ctx context.Context, ps *phaseState, logger *logging.Logger) string {
	e := r.engine
	g := e.cfg.Guardrails

	r.emit(ps, event.TypeGenerating, fmt.Sprintf("Generating %s (attempt %d/%d)", ps.phase.Name, ps.iterations, g.MaxRetriesPerPhase))
	out := e.generator.Run(ctx, generate.Input{
		Packet:     r.packet,
		Phase:      ps.phase,
		Summary:    r.summary.Clone(),
		Repo:       r.repo,
		Guardrails: g,
	})
	for _, pe := range out.ParseErrors {
		ps.attemptErrors = append(ps.attemptErrors, pe)
		ps.lastParseErr = pe
	}
	if err := out.Failure(ps.phase.Name, r.summary.Iteration); err != nil {
		ps.attemptErrors = append(ps.attemptErrors, err.Error())
		logger.Warn("generation attempt failed", "iteration", ps.iterations, "error", err.Error())
		return ""
	}
	ps.batches = append(ps.batches, out.Files)
	recent := output.Concat(out.Files)

	if !g.RequireCritiquePass {
		ps.confidence = DisabledCritiqueConfidence
		ps.advanced = true
		return recent
	}

	r.emitUpdate(r.update(ps, event.TypeCritiquing, fmt.Sprintf("Critiquing %d files", len(out.Files))).WithFiles(len(out.Files)))
	report, err := e.gate.Evaluate(ctx, critique.Input{Packet: r.packet, Files: recent, Repo: r.repo})
	if err != nil {
		// The fallback verdict has no issues; keep the last real ones.
		logger.Warn("critique unavailable, using fallback verdict", "error", err.Error())
	} else {
		r.summary.Issues = report.TopIssues(critique.MaxIssuesFedBack)
	}
	ps.confidence = report.Confidence
	if ps.confidence >= g.MinConfidenceToAdvance {
		ps.advanced = true
	}
	logger.Info("critique verdict",
		"iteration", ps.iterations,
		"confidence", ps.confidence,
		"advanced", ps.advanced,
	)
	return recent
}

// maybeCompact replaces the summary every SummarizeEveryNIterations total
// iterations, archiving the old one.
func (r *run) maybeCompact(ctx context.Context, ps *phaseState, recent string) {
	n := r.engine.cfg.Guardrails.SummarizeEveryNIterations
	if n <= 0 || r.totalIterations%n != 0 {
		return
	}

	r.emit(ps, event.TypeSummarizing, fmt.Sprintf("Compacting context at iteration %d", r.totalIterations))
	r.history = append(r.history, r.summary.Clone())
	next, err := r.engine.compactor.Compact(ctx, r.summary.Clone(), recent)
	if err != nil {
		r.logger.Warn("compaction degraded", "error", err.Error())
	}
	next.Iteration = r.totalIterations
	r.summary = next
}

func (r *run) completePhase(ps *phaseState, logger *logging.Logger) {
	timedOut := r.aborted && ps.budgetErr == nil
	if timedOut && ps.iterations == 0 {
		return
	}

	files := types.MergeFiles(ps.batches...)
	for _, f := range files {
		r.summary.CompletedFiles = append(r.summary.CompletedFiles, f.Path)
	}
	r.allFiles = append(r.allFiles, files...)

	status := types.PhaseExhausted
	switch {
	case ps.advanced:
		status = types.PhaseAdvanced
	case timedOut:
		status = types.PhaseAborted
	}

	result := types.PhaseResult{
		Phase:         ps.phase.Name,
		Status:        status,
		Iterations:    ps.iterations,
		Files:         files,
		Confidence:    ps.confidence,
		AttemptErrors: ps.attemptErrors,
	}
	if result.Files == nil {
		result.Files = []types.FileChange{}
	}
	r.phases = append(r.phases, result)

	if status == types.PhaseExhausted {
		r.errors = append(r.errors, r.exhaustedMessage(ps))
	}

	logger.Info("phase complete",
		"status", string(status),
		"iterations", ps.iterations,
		"files", len(files),
		"confidence", ps.confidence,
	)
	r.emitUpdate(r.update(ps, event.TypePhaseComplete, fmt.Sprintf("Phase %s %s", ps.phase.Name, status)).
		WithConfidence(ps.confidence).
		WithFiles(len(files)))
	r.emitUpdate(r.update(ps, event.TypeCheckpoint, fmt.Sprintf("Checkpoint after %s", ps.phase.Name)).
		WithFiles(len(r.allFiles)).
		WithSummary(r.summary))
}

func (r *run) exhaustedMessage(ps *phaseState) string {
	if ps.budgetErr != nil {
		return ps.budgetErr.Error()
	}
	msg := fmt.Sprintf("phase %s did not reach confidence %.2f after %d iterations (last %.2f)",
		ps.phase.Name, r.engine.cfg.Guardrails.MinConfidenceToAdvance, ps.iterations, ps.confidence)
	if n := len(ps.attemptErrors); n > 0 {
		msg += ": " + ps.attemptErrors[n-1]
	}
	if ps.lastParseErr != "" && !strings.HasSuffix(msg, ps.lastParseErr) {
		msg += " (last rejected block: " + ps.lastParseErr + ")"
	}
	return msg
}

// callContext bounds one iteration's backend calls by the time left on the
// run, measured with the engine clock.
func (r *run) callContext() (context.Context, context.CancelFunc) {
	remaining := r.engine.cfg.Guardrails.Timeout() - r.engine.clock().Sub(r.start)
	return context.WithTimeout(r.ctx, remaining)
}

// checkDeadline returns a fatal error once the run is out of time or
// canceled.
func (r *run) checkDeadline(phase string) error {
	limit := r.engine.cfg.Guardrails.Timeout()
	elapsed := r.engine.clock().Sub(r.start)
	if elapsed >= limit {
		return errors.NewTimeoutError(elapsed, limit).WithPhase(phase)
	}
	if err := r.ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.NewTimeoutError(elapsed, limit).WithPhase(phase).WithCause(err)
		}
		return fmt.Errorf("%w [phase=%s]: %w", errors.ErrCanceled, phase, err)
	}
	return nil
}

// fail records a fatal error and stops the run.
func (r *run) fail(err error) {
	r.aborted = true
	r.errors = append(r.errors, err.Error())
}

func (r *run) finish() {
	e := r.engine
	threshold := SuccessFactor * e.cfg.Guardrails.MinConfidenceToAdvance

	success := !r.aborted && len(r.phases) == len(e.cfg.Phases)
	for _, p := range r.phases {
		if p.Confidence < threshold {
			success = false
		}
	}

	result := &types.Result{
		RunID:           r.id,
		Success:         success,
		Aborted:         r.aborted,
		Phases:          r.phases,
		AllFiles:        r.allFiles,
		ContextHistory:  r.history,
		TotalIterations: r.totalIterations,
		Duration:        e.clock().Sub(r.start),
		Errors:          r.errors,
	}
	if result.Phases == nil {
		result.Phases = []types.PhaseResult{}
	}
	if result.AllFiles == nil {
		result.AllFiles = []types.FileChange{}
	}

	typ, msg := event.TypeCompleted, "Run completed"
	if !success {
		typ, msg = event.TypeFailed, fmt.Sprintf("Run failed with %d errors", len(r.errors))
	}
	r.logger.Info("run finished",
		"success", success,
		"aborted", r.aborted,
		"total_iterations", r.totalIterations,
		"files", len(r.allFiles),
		"duration", result.Duration.String(),
	)

	terminal := r.update(nil, typ, msg)
	terminal.Result = result
	r.emitter.Close(terminal)
}

func (r *run) update(ps *phaseState, typ event.UpdateType, msg string) event.Update {
	u := event.Update{
		Type:            typ,
		RunID:           r.id,
		TotalIterations: r.totalIterations,
		Message:         msg,
		Time:            r.engine.clock(),
	}
	if ps != nil {
		u.Phase = ps.phase.Name
		u.Iteration = ps.iterations
	}
	return u
}

func (r *run) emit(ps *phaseState, typ event.UpdateType, msg string) {
	r.emitUpdate(r.update(ps, typ, msg))
}

func (r *run) emitUpdate(u event.Update) {
	if !r.emitter.Emit(u) {
		r.logger.Debug("update dropped, consumer gone", "type", string(u.Type))
	}
}
