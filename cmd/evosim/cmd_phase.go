package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/evosim/internal/genesis"
	"github.com/nvandessel/evosim/internal/store"
	"github.com/nvandessel/evosim/internal/synthesis"
)

// phaseReport is the JSON shape of the phase command.
type phaseReport struct {
	Phase           genesis.Phase            `json:"phase"`
	Snapshot        *genesis.Snapshot        `json:"snapshot,omitempty"`
	SnapshotError   string                   `json:"snapshot_error,omitempty"`
	Readiness       *genesis.Readiness       `json:"readiness,omitempty"`
	Actions         []genesis.Action         `json:"actions,omitempty"`
	RunID           string                   `json:"run_id,omitempty"`
	Insights        *synthesis.Insights      `json:"insights,omitempty"`
	Recommendations []genesis.Recommendation `json:"recommendations"`
}

func newPhaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phase",
		Short: "Classify the community's genesis phase and recommend next steps",
		Long: `Read the community state snapshot (snapshot.command or snapshot.file),
classify its genesis phase and combine it with insights from a recorded
run into prioritized evolution recommendations.

A missing or malformed snapshot yields the "unknown" phase rather than
an error.

Examples:
  evosim phase
  evosim phase --run <run-id> --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			runID, _ := cmd.Flags().GetString("run")
			ctx := cmd.Context()

			r, err := openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			var run *store.Run
			if runID != "" {
				run, err = r.Store().GetRun(ctx, runID)
				if err != nil {
					return fmt.Errorf("run %s: %w", runID, err)
				}
			} else {
				run, err = r.Latest(ctx)
				if err != nil && !errors.Is(err, store.ErrRunNotFound) {
					return fmt.Errorf("failed to load latest run: %w", err)
				}
			}

			rep := buildPhaseReport(r.Synthesize(ctx, run), run)
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			printPhaseReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}

	cmd.Flags().String("run", "", "Run to draw insights from (default: latest recorded run)")

	return cmd
}

func buildPhaseReport(syn synthesis.Synthesis, run *store.Run) phaseReport {
	rep := phaseReport{
		Phase:           syn.Assessment.Phase,
		Snapshot:        syn.Assessment.Snapshot,
		SnapshotError:   syn.Assessment.Error,
		Recommendations: syn.Recommendations,
	}
	if rep.Recommendations == nil {
		rep.Recommendations = []genesis.Recommendation{}
	}
	if snap := syn.Assessment.Snapshot; snap != nil {
		readiness := genesis.AssessReadiness(snap.Genesis)
		rep.Readiness = &readiness
		rep.Actions = genesis.CompletionActions(snap.Genesis)
	}
	if run != nil {
		rep.RunID = run.ID
		rep.Insights = &syn.Insights
	}
	return rep
}

func printPhaseReport(out io.Writer, rep phaseReport) {
	fmt.Fprintf(out, "Phase: %s\n", rep.Phase)
	if rep.SnapshotError != "" {
		fmt.Fprintf(out, "  (%s)\n", rep.SnapshotError)
	}

	if snap := rep.Snapshot; snap != nil {
		g := snap.Genesis
		fmt.Fprintf(out, "  members %d, rules %d, stuff %d, complete %v\n", g.Members, g.Rules, g.Stuff, g.Complete)
	}

	if rd := rep.Readiness; rd != nil {
		fmt.Fprintln(out, "\nReadiness:")
		fmt.Fprintf(out, "  critical mass:         %s\n", check(rd.CriticalMass))
		fmt.Fprintf(out, "  governance foundation: %s\n", check(rd.GovernanceFoundation))
		fmt.Fprintf(out, "  creative output:       %s\n", check(rd.CreativeOutput))
		fmt.Fprintf(out, "  score %.2f: %s\n", rd.Score, rd.Advice)
	}

	if len(rep.Actions) > 0 {
		fmt.Fprintln(out, "\nNext actions:")
		for _, a := range rep.Actions {
			fmt.Fprintf(out, "  - [%s] %s\n", a.Type, a.Action)
			if a.Suggestion != "" {
				fmt.Fprintf(out, "      %s\n", a.Suggestion)
			}
		}
	}

	if in := rep.Insights; in != nil {
		fmt.Fprintf(out, "\nInsights (run %s):\n", rep.RunID)
		fmt.Fprintf(out, "  diversity %.3f, emergence %.3f, stagnation risk %.3f\n", in.Diversity, in.Emergence, in.StagnationRisk)
		if len(in.CriticalPatterns) > 0 {
			fmt.Fprintf(out, "  patterns: %s\n", strings.Join(in.CriticalPatterns, ", "))
		}
		for _, opp := range in.SynergyOpportunities {
			fmt.Fprintf(out, "  opportunity: %s\n", opp)
		}
	}

	if len(rep.Recommendations) == 0 {
		return
	}
	fmt.Fprintln(out, "\nRecommendations:")
	for i, rec := range rep.Recommendations {
		fmt.Fprintf(out, "%d. [%s/%s] %s\n", i+1, rec.Priority, rec.Focus, rec.Description)
		for _, step := range rec.Steps {
			fmt.Fprintf(out, "     - %s\n", step)
		}
	}
}

func check(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
