package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/evosim/internal/constants"
	"github.com/nvandessel/evosim/internal/genesis"
	"github.com/nvandessel/evosim/internal/ratelimit"
	"github.com/nvandessel/evosim/internal/runner"
	"github.com/nvandessel/evosim/internal/store"
)

// defaultListLimit caps evosim_runs listings when no limit is given.
const defaultListLimit = 20

// LatestRunURI is the resource carrying the most recent local run.
const LatestRunURI = "evosim://runs/latest"

// registerTools registers all evosim MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolRun,
		Description: "Run a community evolution simulation and report coherence, diversity and balance",
	}, s.handleEvosimRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolRuns,
		Description: "List stored simulation runs, or show one run's balance history and verify it against its event log",
	}, s.handleEvosimRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolPhase,
		Description: "Classify the community's genesis phase and recommend evolution strategies from the latest run",
	}, s.handleEvosimPhase)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         LatestRunURI,
		Name:        "evosim-latest-run",
		Description: "Summary of the most recent community simulation run in this project.",
		MIMEType:    "text/markdown",
	}, s.handleLatestRunResource)
}

// handleLatestRunResource renders the latest local run as markdown.
func (s *Server) handleLatestRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	r, err := s.runnerFor(constants.ScopeLocal)
	if err != nil {
		return nil, err
	}

	var text string
	run, err := r.Latest(ctx)
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		text = "# Latest evosim run\n\nNo runs recorded yet. Use the `evosim_run` tool to start one.\n"
	case err != nil:
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	default:
		text = formatRunMarkdown(run)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{{
			URI:      LatestRunURI,
			MIMEType: "text/markdown",
			Text:     text,
		}},
	}, nil
}

func formatRunMarkdown(run *store.Run) string {
	var sb strings.Builder
	sb.WriteString("# Latest evosim run\n\n")
	fmt.Fprintf(&sb, "- **Run**: `%s` (seed %d)\n", run.ID, run.Seed)
	fmt.Fprintf(&sb, "- **Started**: %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "- **Shape**: %d steps, join budget %d\n", run.Duration, run.JoinBudget)
	fmt.Fprintf(&sb, "- **Events**: %d\n", run.TotalEvents)
	fmt.Fprintf(&sb, "- **Final**: coherence %.3f, diversity %.3f, balance %.3f\n",
		run.FinalCoherence, run.FinalDiversity, run.FinalBalance)
	fmt.Fprintf(&sb, "- **Mean balance**: %.3f (%.1f%% healthy)\n", run.MeanBalance, run.HealthyPercent)
	fmt.Fprintf(&sb, "- **Trajectory**: %s\n", run.Trajectory)
	return sb.String()
}

// handleEvosimRun implements the evosim_run tool.
func (s *Server) handleEvosimRun(ctx context.Context, req *sdk.CallToolRequest, args EvosimRunInput) (_ *sdk.CallToolResult, _ EvosimRunOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := map[string]any{
			"duration": args.Duration, "seed": args.Seed, "scope": args.Scope,
		}
		if args.JoinBudget != nil {
			params["join_budget"] = *args.JoinBudget
		}
		if args.Save != nil {
			params["save"] = *args.Save
		}
		s.auditTool(ToolRun, start, retErr, sanitizeToolParams(params), constants.Scope(args.Scope))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ToolRun); err != nil {
		return nil, EvosimRunOutput{}, err
	}
	if args.Duration < 0 || args.Duration > constants.MaxDuration {
		return nil, EvosimRunOutput{}, fmt.Errorf("duration must be between 1 and %d, got %d", constants.MaxDuration, args.Duration)
	}
	if args.JoinBudget != nil && (*args.JoinBudget < 0 || *args.JoinBudget > constants.MaxJoinBudget) {
		return nil, EvosimRunOutput{}, fmt.Errorf("join_budget must be between 0 and %d, got %d", constants.MaxJoinBudget, *args.JoinBudget)
	}

	r, err := s.runnerFor(constants.Scope(args.Scope))
	if err != nil {
		return nil, EvosimRunOutput{}, err
	}

	p := r.DefaultParams()
	if args.Duration != 0 {
		p.Duration = args.Duration
	}
	if args.JoinBudget != nil {
		p.JoinBudget = *args.JoinBudget
	}
	if args.Seed != 0 {
		p.Seed = args.Seed
	}
	if args.Save != nil {
		p.Save = *args.Save
	}

	res, err := r.Execute(ctx, p)
	if err != nil {
		return nil, EvosimRunOutput{}, err
	}

	run := res.Run
	msg := fmt.Sprintf("%d events over %d steps; final balance %.3f, trajectory %s",
		run.TotalEvents, run.Steps, run.FinalBalance, run.Trajectory)
	if run.ID != "" {
		msg += fmt.Sprintf(" (saved as %s)", run.ID)
	}

	return nil, EvosimRunOutput{
		RunID:          run.ID,
		Seed:           run.Seed,
		Steps:          run.Steps,
		TotalEvents:    run.TotalEvents,
		EventCounts:    run.EventCounts,
		FinalCoherence: run.FinalCoherence,
		FinalDiversity: run.FinalDiversity,
		FinalBalance:   run.FinalBalance,
		MeanBalance:    run.MeanBalance,
		HealthyPercent: run.HealthyPercent,
		Trajectory:     run.Trajectory,
		Pruned:         len(res.Pruned),
		Message:        msg,
	}, nil
}

// handleEvosimRuns implements the evosim_runs tool.
func (s *Server) handleEvosimRuns(ctx context.Context, req *sdk.CallToolRequest, args EvosimRunsInput) (_ *sdk.CallToolResult, _ EvosimRunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ToolRuns, start, retErr, sanitizeToolParams(map[string]any{
			"run_id": args.RunID, "limit": args.Limit, "verify": args.Verify, "scope": args.Scope,
		}), constants.Scope(args.Scope))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ToolRuns); err != nil {
		return nil, EvosimRunsOutput{}, err
	}
	if args.Verify && args.RunID == "" {
		return nil, EvosimRunsOutput{}, fmt.Errorf("verify requires run_id")
	}

	r, err := s.runnerFor(constants.Scope(args.Scope))
	if err != nil {
		return nil, EvosimRunsOutput{}, err
	}

	if args.RunID != "" {
		return s.showRun(ctx, r, args)
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	runs, err := r.Store().ListRuns(ctx, limit)
	if err != nil {
		return nil, EvosimRunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}

	items := make([]RunListItem, len(runs))
	for i := range runs {
		items[i] = toListItem(&runs[i])
	}
	return nil, EvosimRunsOutput{Runs: items, Count: len(items)}, nil
}

// showRun returns one run with its samples and, if asked, a replay check.
func (s *Server) showRun(ctx context.Context, r *runner.Runner, args EvosimRunsInput) (*sdk.CallToolResult, EvosimRunsOutput, error) {
	run, err := r.Store().GetRun(ctx, args.RunID)
	if err != nil {
		return nil, EvosimRunsOutput{}, fmt.Errorf("run %s: %w", args.RunID, err)
	}
	samples, err := r.Store().Samples(ctx, args.RunID)
	if err != nil {
		return nil, EvosimRunsOutput{}, fmt.Errorf("failed to load samples: %w", err)
	}

	out := EvosimRunsOutput{
		Runs:    []RunListItem{toListItem(run)},
		Count:   1,
		Samples: make([]SampleItem, len(samples)),
	}
	for i, smp := range samples {
		out.Samples[i] = SampleItem(smp)
	}

	if args.Verify {
		v, err := r.Verify(ctx, args.RunID)
		if err != nil {
			return nil, EvosimRunsOutput{}, fmt.Errorf("verification failed: %w", err)
		}
		out.Verification = &VerificationResult{
			Matches:    v.Matches,
			Events:     v.Events,
			Mismatches: v.Mismatches,
		}
	}
	return nil, out, nil
}

func toListItem(run *store.Run) RunListItem {
	return RunListItem{
		ID:             run.ID,
		StartedAt:      run.StartedAt.UTC().Format(time.RFC3339),
		Duration:       run.Duration,
		JoinBudget:     run.JoinBudget,
		Seed:           run.Seed,
		TotalEvents:    run.TotalEvents,
		FinalBalance:   run.FinalBalance,
		MeanBalance:    run.MeanBalance,
		HealthyPercent: run.HealthyPercent,
		Trajectory:     run.Trajectory,
		HasEventLog:    run.EventLog != "",
	}
}

// handleEvosimPhase implements the evosim_phase tool.
func (s *Server) handleEvosimPhase(ctx context.Context, req *sdk.CallToolRequest, args EvosimPhaseInput) (_ *sdk.CallToolResult, _ EvosimPhaseOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ToolPhase, start, retErr, sanitizeToolParams(map[string]any{
			"run_id": args.RunID, "scope": args.Scope,
		}), constants.Scope(args.Scope))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ToolPhase); err != nil {
		return nil, EvosimPhaseOutput{}, err
	}

	r, err := s.runnerFor(constants.Scope(args.Scope))
	if err != nil {
		return nil, EvosimPhaseOutput{}, err
	}

	var run *store.Run
	if args.RunID != "" {
		run, err = r.Store().GetRun(ctx, args.RunID)
		if err != nil {
			return nil, EvosimPhaseOutput{}, fmt.Errorf("run %s: %w", args.RunID, err)
		}
	} else {
		run, err = r.Latest(ctx)
		if err != nil && !errors.Is(err, store.ErrRunNotFound) {
			return nil, EvosimPhaseOutput{}, fmt.Errorf("failed to load latest run: %w", err)
		}
	}

	syn := r.Synthesize(ctx, run)
	out := EvosimPhaseOutput{
		Phase:           syn.Assessment.Phase,
		Snapshot:        syn.Assessment.Snapshot,
		SnapshotError:   syn.Assessment.Error,
		Recommendations: syn.Recommendations,
	}
	if out.Recommendations == nil {
		out.Recommendations = []genesis.Recommendation{}
	}
	if snap := syn.Assessment.Snapshot; snap != nil {
		readiness := genesis.AssessReadiness(snap.Genesis)
		out.Readiness = &readiness
		out.Actions = genesis.CompletionActions(snap.Genesis)
	}
	if run != nil {
		out.RunID = run.ID
		out.Insights = &syn.Insights
	}
	return nil, out, nil
}
