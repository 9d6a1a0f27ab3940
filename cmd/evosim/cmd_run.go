package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a community simulation and record it",
		Long: `Run a community simulation with the configured shape and record the run
in the state directory along with its compressed event log.

Flags override the simulation section of the configuration for this run.
A seed of 0 seeds from the clock; the seed used is printed so the run
can be reproduced.

Examples:
  evosim run                               # Configured duration and join budget
  evosim run --duration 100 --join-budget 20
  evosim run --seed 42 --no-save           # Reproducible, not recorded
  evosim run --scope global --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			r, err := openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			p := r.DefaultParams()
			if cmd.Flags().Changed("duration") {
				p.Duration, _ = cmd.Flags().GetInt("duration")
			}
			if cmd.Flags().Changed("join-budget") {
				p.JoinBudget, _ = cmd.Flags().GetInt("join-budget")
			}
			if cmd.Flags().Changed("seed") {
				p.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			if noSave, _ := cmd.Flags().GetBool("no-save"); noSave {
				p.Save = false
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			res, err := r.Execute(ctx, p)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]interface{}{
					"run":    res.Run,
					"saved":  res.Run.ID != "",
					"pruned": len(res.Pruned),
				})
			}

			printRunHeader(out, res.Run)
			printReport(out, res.Report)
			if res.Run.ID == "" {
				fmt.Fprintln(out, "\nRun not saved.")
			}
			if len(res.Pruned) > 0 {
				fmt.Fprintf(out, "\nPruned %d old event log(s).\n", len(res.Pruned))
			}
			return nil
		},
	}

	cmd.Flags().Int("duration", 0, "Number of simulation steps (default: simulation.duration)")
	cmd.Flags().Int("join-budget", 0, "Maximum number of joins (default: simulation.join_budget)")
	cmd.Flags().Uint64("seed", 0, "Random seed; 0 seeds from the clock (default: simulation.seed)")
	cmd.Flags().Bool("no-save", false, "Do not record the run")

	return cmd
}
