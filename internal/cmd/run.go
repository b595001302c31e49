package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/horizon/internal/apply"
	"github.com/Iron-Ham/horizon/internal/config"
	"github.com/Iron-Ham/horizon/internal/engine"
	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/Iron-Ham/horizon/internal/event"
	"github.com/Iron-Ham/horizon/internal/llm"
	"github.com/Iron-Ham/horizon/internal/logging"
	"github.com/Iron-Ham/horizon/internal/metrics"
	"github.com/Iron-Ham/horizon/internal/packet"
	"github.com/Iron-Ham/horizon/internal/repocontext"
)

var runCmd = &cobra.Command{
	Use:   "run <packet>...",
	Short: "Generate code for one or more work packets",
	Long: `Run each work packet through the phase pipeline and print progress as it
happens. Packets are YAML or JSON files with a title, description, tasks and
acceptance criteria.

With --apply (or apply.enabled), the generated files are committed to a
branch named after the packet in the --repo checkout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runRepo          string
	runApply         bool
	runParallel      int
	runNoCritique    bool
	runMaxIterations int
	runTimeout       float64
)

// newBackend builds the generation backend. Tests replace it.
var newBackend = llm.NewFromConfig

func init() {
	runCmd.Flags().StringVar(&runRepo, "repo", ".", "Target repository, used for context and --apply")
	runCmd.Flags().BoolVar(&runApply, "apply", false, "Commit generated files to a branch in --repo")
	runCmd.Flags().IntVar(&runParallel, "parallel", 1, "Number of packets run at once")
	runCmd.Flags().BoolVar(&runNoCritique, "no-critique", false, "Skip the critique step and advance after one attempt per phase")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Override guardrails.max_total_iterations")
	runCmd.Flags().Float64Var(&runTimeout, "timeout", 0, "Override guardrails.timeout_minutes")
	rootCmd.AddCommand(runCmd)
}

// runJob is one packet to run.
type runJob struct {
	path   string
	label  string
	packet types.WorkPacket
	engine *engine.Engine
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	jobs, err := loadJobs(args)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(ctx, cfg.Backend, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize backend: %w", err)
	}

	repoDir, err := filepath.Abs(runRepo)
	if err != nil {
		return fmt.Errorf("failed to resolve repository path: %w", err)
	}

	bus := event.NewBus(logger)
	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
		recorder.Attach(bus)
	}

	engineCfg := engine.Config{
		Backend: backend,
		Servers: engine.Servers{
			Generation: cfg.Backend.Roles.Generation,
			Critique:   cfg.Backend.Roles.Critique,
			Compaction: cfg.Backend.Roles.Compaction,
		},
		Phases:     cfg.EnginePhases(),
		Guardrails: cfg.EngineGuardrails(),
		Repo:       repocontext.NewLocal(repoDir),
	}
	if err := buildEngines(jobs, engineCfg, engine.WithLogger(logger), engine.WithBus(bus)); err != nil {
		return err
	}

	var applier apply.Applier
	if cfg.Apply.Enabled {
		applier = apply.NewGit(repoDir,
			apply.WithBranchPrefix(cfg.Apply.BranchPrefix),
			apply.WithAuthor(cfg.Apply.AuthorName, cfg.Apply.AuthorEmail),
			apply.WithLogger(logger),
		)
	}

	out := newPrinter(cmd.OutOrStdout())
	r := &runner{
		applier:        applier,
		applyOnFailure: cfg.Apply.ApplyOnFailure,
		printer:        out,
		logger:         logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(runParallel, 1))

	var (
		mu     sync.Mutex
		failed []string
	)
	for _, job := range jobs {
		g.Go(func() error {
			if !r.run(gctx, job) {
				mu.Lock()
				failed = append(failed, job.label)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if recorder != nil {
		if err := recorder.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			logger.Warn("failed to write metrics", "path", cfg.Metrics.TextfilePath, "error", err.Error())
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d runs failed: %s", len(failed), len(jobs), strings.Join(failed, ", "))
	}
	return nil
}

// applyRunFlags layers explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("apply") {
		cfg.Apply.Enabled = runApply
	}
	if flags.Changed("no-critique") {
		cfg.Guardrails.RequireCritiquePass = !runNoCritique
	}
	if flags.Changed("max-iterations") {
		cfg.Guardrails.MaxTotalIterations = runMaxIterations
	}
	if flags.Changed("timeout") {
		cfg.Guardrails.TimeoutMinutes = runTimeout
	}
}

// loadJobs loads every packet up front so a typo fails before any backend
// call is made.
func loadJobs(paths []string) ([]runJob, error) {
	jobs := make([]runJob, 0, len(paths))
	for _, path := range paths {
		p, err := packet.Load(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		base := filepath.Base(path)
		jobs = append(jobs, runJob{
			path:   path,
			label:  strings.TrimSuffix(base, filepath.Ext(base)),
			packet: p,
		})
	}
	return jobs, nil
}

// buildEngines gives every job its own engine. Only the backend, repository
// context provider and bus are shared.
func buildEngines(jobs []runJob, cfg engine.Config, opts ...engine.Option) error {
	for i := range jobs {
		eng, err := engine.New(cfg, opts...)
		if err != nil {
			return err
		}
		jobs[i].engine = eng
	}
	return nil
}

// runner executes jobs, each on its own engine.
type runner struct {
	applier        apply.Applier
	applyOnFailure bool
	printer        *printer
	logger         *logging.Logger

	// applyMu serializes commits to the shared worktree.
	applyMu sync.Mutex
}

// run executes one job, prints its progress, and applies its files. It
// reports whether the run (and the apply, if any) succeeded.
func (r *runner) run(ctx context.Context, job runJob) bool {
	stream := job.engine.Run(ctx, job.packet)
	for u := range stream.Updates() {
		r.printer.update(job.label, u)
	}
	<-stream.Done()
	res := stream.Result()

	var applied *apply.Result
	if r.shouldApply(res) {
		r.applyMu.Lock()
		ar := r.applier.Apply(ctx, res.AllFiles, commitMessage(job.packet, res))
		r.applyMu.Unlock()
		applied = &ar
	}

	r.printer.result(job.label, res, applied)
	return res != nil && res.Success && (applied == nil || applied.Success)
}

func (r *runner) shouldApply(res *types.Result) bool {
	if r.applier == nil || res == nil || len(res.AllFiles) == 0 {
		return false
	}
	return res.Success || r.applyOnFailure
}

// commitMessage uses the packet title as the subject, which also names the
// branch.
func commitMessage(p types.WorkPacket, res *types.Result) string {
	var b strings.Builder
	b.WriteString(p.Title)
	b.WriteString("\n\n")
	if desc := strings.TrimSpace(p.Description); desc != "" {
		b.WriteString(desc)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Generated by horizon run %s: %d files in %d iterations across %d phases.",
		res.RunID, len(res.AllFiles), res.TotalIterations, len(res.Phases))
	if !res.Success {
		b.WriteString("\nThe run did not succeed; this commit holds partial output.")
	}
	return b.String()
}
