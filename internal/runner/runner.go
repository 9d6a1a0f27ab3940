// Package runner orchestrates simulation runs for the CLI and the MCP
// server: it seeds and drives the simulator, writes the event log, saves
// the run, prunes old logs and rebuilds reports from stored runs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/evosim/internal/community"
	"github.com/nvandessel/evosim/internal/config"
	"github.com/nvandessel/evosim/internal/constants"
	"github.com/nvandessel/evosim/internal/eventlog"
	"github.com/nvandessel/evosim/internal/genesis"
	"github.com/nvandessel/evosim/internal/logging"
	"github.com/nvandessel/evosim/internal/pathutil"
	"github.com/nvandessel/evosim/internal/store"
	"github.com/nvandessel/evosim/internal/synthesis"
)

var (
	// ErrNoEventLog is returned when a stored run has no readable event log.
	ErrNoEventLog = errors.New("run has no event log")

	// ErrInvalidParams is returned for run parameters outside the supported bounds.
	ErrInvalidParams = errors.New("invalid run parameters")
)

// Config holds what a Runner needs.
type Config struct {
	// Settings supplies simulation options, storage and snapshot settings.
	// Nil means config.Default().
	Settings *config.EvosimConfig

	// Root is the project root; relative snapshot paths and the status
	// command resolve against it.
	Root string

	// Store receives saved runs. Nil disables saving.
	Store store.RunStore

	// EventLogDir holds compressed event logs. Empty disables them.
	EventLogDir string

	Logger    *slog.Logger
	Decisions *logging.DecisionLogger

	// Clock stamps runs and seeds unseeded ones. Defaults to time.Now.
	Clock func() time.Time
}

// Params describes one requested run.
type Params struct {
	Duration   int
	JoinBudget int

	// Seed 0 seeds from the clock; the seed used is reported back.
	Seed uint64

	// Save persists the run when the runner has a store.
	Save bool
}

// Validate checks the run shape against the supported bounds.
func (p Params) Validate() error {
	if p.Duration < 1 || p.Duration > constants.MaxDuration {
		return fmt.Errorf("%w: duration must be between 1 and %d, got %d", ErrInvalidParams, constants.MaxDuration, p.Duration)
	}
	if p.JoinBudget < 0 || p.JoinBudget > constants.MaxJoinBudget {
		return fmt.Errorf("%w: join budget must be between 0 and %d, got %d", ErrInvalidParams, constants.MaxJoinBudget, p.JoinBudget)
	}
	return nil
}

// Result is the outcome of Execute.
type Result struct {
	// Run is the stored summary. Its ID is empty when the run was not saved.
	Run *store.Run

	// Report is the full in-memory report including events.
	Report *community.Report

	// Pruned lists event logs removed by retention after this run.
	Pruned []string
}

// Runner executes and revisits simulation runs.
type Runner struct {
	cfg      *config.EvosimConfig
	root     string
	store    store.RunStore
	logDir   string
	logger   *slog.Logger
	decision *logging.DecisionLogger
	clock    func() time.Time
}

// New creates a Runner. Missing optional fields get defaults.
func New(c Config) *Runner {
	r := &Runner{
		cfg:      c.Settings,
		root:     c.Root,
		store:    c.Store,
		logDir:   c.EventLogDir,
		logger:   c.Logger,
		decision: c.Decisions,
		clock:    c.Clock,
	}
	if r.cfg == nil {
		r.cfg = config.Default()
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	return r
}

// Store returns the run store, which may be nil.
func (r *Runner) Store() store.RunStore { return r.store }

// Options converts the simulation settings into simulator options.
func (r *Runner) Options() community.Options {
	s := r.cfg.Simulation
	return community.Options{
		JoinProbability:       s.JoinProbability,
		RuleProbability:       s.RuleProbability,
		InnovationProbability: s.InnovationProbability,
		AdaptationGate:        s.AdaptationGate,
		AdaptationWindow:      s.AdaptationWindow,
		Clock:                 r.clock,
		Logger:                r.logger,
		Decisions:             r.decision,
	}
}

// DefaultParams returns the configured run shape.
func (r *Runner) DefaultParams() Params {
	s := r.cfg.Simulation
	return Params{
		Duration:   s.Duration,
		JoinBudget: s.JoinBudget,
		Seed:       s.Seed,
		Save:       r.cfg.Storage.Enabled,
	}
}

// Execute runs one simulation. When saving, the event log is written
// before the run row so the row can point at it.
func (r *Runner) Execute(ctx context.Context, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	startedAt := r.clock()
	seed := p.Seed
	if seed == 0 {
		seed = uint64(startedAt.UnixNano())
	}

	save := p.Save && r.store != nil
	var runID string
	if save {
		runID = uuid.NewString()
		r.decision.SetRunID(runID)
		defer r.decision.SetRunID("")
	}

	sim := community.New(community.NewRand(seed), r.Options())
	report, err := sim.Run(ctx, p.Duration, p.JoinBudget)
	if err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}

	run, samples := store.NewRun(store.RunParams{
		StartedAt:  startedAt,
		Duration:   p.Duration,
		JoinBudget: p.JoinBudget,
		Seed:       seed,
	}, report)

	result := &Result{Run: run, Report: report}
	if !save {
		return result, nil
	}

	run.ID = runID
	if r.logDir != "" {
		path := eventlog.Path(r.logDir, runID)
		if err := eventlog.Save(path, report.Events); err != nil {
			return nil, fmt.Errorf("failed to write event log: %w", err)
		}
		run.EventLog = path
	}

	if err := r.store.SaveRun(ctx, run, samples); err != nil {
		if run.EventLog != "" {
			if rerr := os.Remove(run.EventLog); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
				r.logger.Warn("failed to remove orphaned event log", "path", pathutil.RedactPath(run.EventLog), "error", rerr)
			}
		}
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	r.logger.Debug("run saved", "run_id", run.ID, "events", run.TotalEvents, "seed", seed)

	pruned, err := r.prune()
	if err != nil {
		r.logger.Warn("event log retention failed", "error", err)
	}
	result.Pruned = pruned
	return result, nil
}

// Prune applies the configured retention policy to the event log directory.
func (r *Runner) Prune() ([]string, error) {
	return r.prune()
}

func (r *Runner) prune() ([]string, error) {
	if r.logDir == "" {
		return nil, nil
	}
	rc := r.cfg.Storage.Retention
	policy, err := eventlog.Retention{MaxCount: rc.MaxCount, MaxAge: rc.MaxAge, MaxSize: rc.MaxSize}.Policy()
	if err != nil || policy == nil {
		return nil, err
	}
	deleted, err := eventlog.ApplyRetention(r.logDir, policy)
	if len(deleted) > 0 {
		r.logger.Debug("pruned event logs", "count", len(deleted))
	}
	return deleted, err
}

// Latest returns the most recent stored run.
func (r *Runner) Latest(ctx context.Context) (*store.Run, error) {
	if r.store == nil {
		return nil, store.ErrRunNotFound
	}
	runs, err := r.store.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, store.ErrRunNotFound
	}
	return &runs[0], nil
}

// Report rebuilds the full report of a stored run from its event log.
func (r *Runner) Report(ctx context.Context, run *store.Run) (*community.Report, error) {
	if run.EventLog == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEventLog, run.ID)
	}
	if r.logDir == "" {
		return nil, fmt.Errorf("%w: event logs are disabled", ErrNoEventLog)
	}
	if err := pathutil.ValidatePath(run.EventLog, []string{r.logDir}); err != nil {
		return nil, fmt.Errorf("refusing to read event log: %w", err)
	}
	report, err := eventlog.Replay(ctx, run.EventLog, r.Options())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoEventLog, filepath.Base(run.EventLog), err)
	}
	// Quiet trailing steps leave no trace in the log
	if run.Steps > report.Steps {
		report.Steps = run.Steps
	}
	return report, nil
}

// Verification compares a replayed event log with the stored samples.
type Verification struct {
	RunID      string   `json:"run_id"`
	Events     int      `json:"events"`
	Matches    bool     `json:"matches"`
	Mismatches []string `json:"mismatches,omitempty"`
}

// Verify replays a stored run's event log and checks that it reproduces
// the stored history sample for sample.
func (r *Runner) Verify(ctx context.Context, id string) (*Verification, error) {
	if r.store == nil {
		return nil, store.ErrRunNotFound
	}
	run, err := r.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	samples, err := r.store.Samples(ctx, id)
	if err != nil {
		return nil, err
	}
	report, err := r.Report(ctx, run)
	if err != nil {
		return nil, err
	}

	v := &Verification{RunID: id, Events: len(report.Events)}
	if len(report.Balance) != len(samples) {
		v.Mismatches = append(v.Mismatches,
			fmt.Sprintf("replay produced %d samples, store has %d", len(report.Balance), len(samples)))
	}
	for i := range min(len(report.Balance), len(samples)) {
		s := samples[i]
		if !near(report.Coherence[i], s.Coherence) || !near(report.Diversity[i], s.Diversity) || !near(report.Balance[i], s.Balance) {
			v.Mismatches = append(v.Mismatches, fmt.Sprintf("sample %d differs", i))
		}
	}
	v.Matches = len(v.Mismatches) == 0
	return v, nil
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

// verifyConcurrency bounds the replays VerifyAll runs at once.
const verifyConcurrency = 4

// VerifyReport is the outcome of VerifyAll.
type VerifyReport struct {
	Runs []*Verification `json:"runs"`

	// Skipped lists runs whose event log was never written or has been
	// pruned since.
	Skipped []string `json:"skipped,omitempty"`

	Failed int `json:"failed"`
}

// VerifyAll verifies every stored run, replaying up to verifyConcurrency
// event logs in parallel. Runs keep the store's newest-first order.
func (r *Runner) VerifyAll(ctx context.Context) (*VerifyReport, error) {
	out := &VerifyReport{Runs: []*Verification{}}
	if r.store == nil {
		return out, nil
	}
	runs, err := r.store.ListRuns(ctx, 0)
	if err != nil {
		return nil, err
	}

	results := make([]*Verification, len(runs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for i, run := range runs {
		if run.EventLog == "" {
			continue
		}
		g.Go(func() error {
			v, err := r.Verify(gctx, run.ID)
			if errors.Is(err, ErrNoEventLog) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("verify %s: %w", run.ID, err)
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, v := range results {
		if v == nil {
			out.Skipped = append(out.Skipped, runs[i].ID)
			continue
		}
		if !v.Matches {
			out.Failed++
		}
		out.Runs = append(out.Runs, v)
	}
	r.logger.Debug("verified runs", "runs", len(out.Runs), "skipped", len(out.Skipped), "failed", out.Failed)
	return out, nil
}

// SnapshotSource builds the configured genesis source, or nil when none
// is configured. A command takes precedence over a file.
func (r *Runner) SnapshotSource() genesis.Source {
	sc := r.cfg.Snapshot
	switch {
	case sc.Command != "":
		return genesis.CommandSource{Command: sc.Command, Dir: r.root, Timeout: sc.Timeout}
	case sc.File != "":
		path := sc.File
		if !filepath.IsAbs(path) && r.root != "" {
			path = filepath.Join(r.root, path)
		}
		return genesis.FileSource{Path: path}
	}
	return nil
}

// Synthesize reads the evolution state of a stored run. With an event log
// the full report feeds every signal; without one the stored finals supply
// diversity and emergence and stagnation is not assessed. A nil run
// yields phase assessment only.
func (r *Runner) Synthesize(ctx context.Context, run *store.Run) synthesis.Synthesis {
	opts := []synthesis.Option{
		synthesis.WithStateSource(r.SnapshotSource()),
		synthesis.WithLogger(r.logger),
	}
	if run == nil {
		return synthesis.New(nil, nil, opts...).Synthesize(ctx)
	}

	report, err := r.Report(ctx, run)
	if err == nil {
		return synthesis.FromReport(report, opts...).Synthesize(ctx)
	}
	r.logger.Debug("synthesizing from stored finals", "run_id", run.ID, "reason", err)
	src := runSource{run}
	return synthesis.New(src, src, opts...).Synthesize(ctx)
}

// runSource reads synthesis inputs from a stored run summary.
type runSource struct {
	run *store.Run
}

func (s runSource) DiversityScore(ctx context.Context) (float64, error) {
	return s.run.FinalDiversity, nil
}

func (s runSource) EmergenceScore(ctx context.Context) (float64, error) {
	return s.run.MeanBalance, nil
}
