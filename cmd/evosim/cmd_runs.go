package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/evosim/internal/backup"
	"github.com/nvandessel/evosim/internal/constants"
	"github.com/nvandessel/evosim/internal/runner"
	"github.com/nvandessel/evosim/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded simulation runs",
		Long: `List, show, check and export the runs recorded in the state directory.

Examples:
  evosim runs list --limit 5
  evosim runs show <run-id>
  evosim runs verify <run-id>       # Replay the event log against the stored history
  evosim runs verify --all
  evosim runs validate              # Check every stored run for consistency
  evosim runs export -o runs.jsonl
  evosim runs prune                 # Apply storage.retention to event logs
  evosim runs backup --keep 5       # Snapshot the run store
  evosim runs restore <file>`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsVerifyCmd(),
		newRunsValidateCmd(),
		newRunsExportCmd(),
		newRunsPruneCmd(),
		newRunsBackupCmd(),
		newRunsRestoreCmd(),
	)

	return cmd
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			r, err := openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			runs, err := r.Store().ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}

			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet. Use 'evosim run' to start one.")
				return nil
			}

			fmt.Fprintf(out, "%-36s  %-19s  %6s  %6s  %7s  %s\n", "ID", "STARTED", "STEPS", "EVENTS", "BALANCE", "TRAJECTORY")
			for _, run := range runs {
				fmt.Fprintf(out, "%-36s  %-19s  %6d  %6d  %7.3f  %s\n",
					run.ID, run.StartedAt.Format("2006-01-02 15:04:05"),
					run.Steps, run.TotalEvents, run.FinalBalance, run.Trajectory)
			}
			fmt.Fprintf(out, "\n%d run(s)\n", len(runs))
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 for all)")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its balance history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			ctx := cmd.Context()

			r, err := openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			run, err := r.Store().GetRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			samples, err := r.Store().Samples(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load samples: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]interface{}{
					"run":     run,
					"samples": samples,
				})
			}

			printRunHeader(out, run)
			fmt.Fprintf(out, "Events:     %d over %d steps\n", run.TotalEvents, run.Steps)
			fmt.Fprintf(out, "Final:      coherence %.3f, diversity %.3f, balance %.3f\n",
				run.FinalCoherence, run.FinalDiversity, run.FinalBalance)
			fmt.Fprintf(out, "Mean:       %.3f (%.1f%% healthy)\n", run.MeanBalance, run.HealthyPercent)
			fmt.Fprintf(out, "Trajectory: %s\n", run.Trajectory)
			if run.EventLog != "" {
				fmt.Fprintf(out, "Event log:  %s\n", filepath.Base(run.EventLog))
			}

			fmt.Fprintln(out, "\nHistory:")
			fmt.Fprintf(out, "  %5s  %9s  %9s  %7s\n", "#", "COHERENCE", "DIVERSITY", "BALANCE")
			for _, s := range samples {
				fmt.Fprintf(out, "  %5d  %9.3f  %9.3f  %7.3f\n", s.Index, s.Coherence, s.Diversity, s.Balance)
			}
			return nil
		},
	}

	return cmd
}

func newRunsVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [run-id]",
		Short: "Replay a run's event log and compare it with the stored history",
		Long: `Replay a run's event log and compare it with the stored history.
With --all every stored run is checked; runs whose event log is missing
are reported as skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			all, _ := cmd.Flags().GetBool("all")
			if all == (len(args) == 1) {
				return fmt.Errorf("give either a run ID or --all")
			}

			r, err := openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			if all {
				rep, err := r.VerifyAll(cmd.Context())
				if err != nil {
					return fmt.Errorf("verify failed: %w", err)
				}
				return outputVerifyReport(cmd.OutOrStdout(), rep, jsonOut)
			}

			v, err := r.Verify(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("verify %s: %w", args[0], err)
			}
			return outputVerification(cmd.OutOrStdout(), v, jsonOut)
		},
	}

	cmd.Flags().Bool("all", false, "Verify every stored run")

	return cmd
}

func outputVerifyReport(out io.Writer, rep *runner.VerifyReport, jsonOut bool) error {
	if jsonOut {
		if err := writeJSON(out, rep); err != nil {
			return err
		}
	} else {
		for _, v := range rep.Runs {
			if v.Matches {
				fmt.Fprintf(out, "✓ %s (%d events)\n", v.RunID, v.Events)
				continue
			}
			fmt.Fprintf(out, "✗ %s: %s\n", v.RunID, strings.Join(v.Mismatches, "; "))
		}
		for _, id := range rep.Skipped {
			fmt.Fprintf(out, "- %s (no event log)\n", id)
		}
		fmt.Fprintf(out, "\n%d verified, %d failed, %d skipped\n", len(rep.Runs), rep.Failed, len(rep.Skipped))
	}

	if rep.Failed > 0 {
		return fmt.Errorf("%d run(s) failed verification", rep.Failed)
	}
	return nil
}

func outputVerification(out io.Writer, v *runner.Verification, jsonOut bool) error {
	if jsonOut {
		return writeJSON(out, v)
	}

	if v.Matches {
		fmt.Fprintf(out, "✓ Run %s replays identically (%d events).\n", v.RunID, v.Events)
		return nil
	}

	fmt.Fprintf(out, "✗ Run %s does not match its event log:\n\n", v.RunID)
	for _, m := range v.Mismatches {
		fmt.Fprintf(out, "  - %s\n", m)
	}
	return fmt.Errorf("run %s failed verification", v.RunID)
}

func newRunsValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check stored runs for consistency issues",
		Long: `Check every stored run for consistency issues.

This command checks for:
  - Sample counts that differ from the run's event count
  - Gaps in sample indexes
  - Coherence, diversity or balance outside [0, 1]
  - Final values that differ from the last sample`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			scope, _ := cmd.Flags().GetString("scope")

			r, err := openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			validationErrors, err := store.ValidateRuns(cmd.Context(), r.Store())
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			return outputValidationResults(cmd.OutOrStdout(), validationErrors, scope, jsonOut)
		},
	}

	return cmd
}

// outputValidationResults formats and outputs validation results.
func outputValidationResults(out io.Writer, validationErrors []store.ValidationError, scope string, jsonOut bool) error {
	valid := len(validationErrors) == 0

	if jsonOut {
		output := map[string]interface{}{
			"valid":       valid,
			"error_count": len(validationErrors),
			"scope":       scope,
		}
		if len(validationErrors) > 0 {
			output["errors"] = validationErrors
		}
		if valid {
			output["message"] = "Stored runs are consistent"
		} else {
			output["message"] = fmt.Sprintf("Found %d validation error(s)", len(validationErrors))
		}
		return writeJSON(out, output)
	}

	fmt.Fprintf(out, "Validating %s runs...\n\n", scope)

	if valid {
		fmt.Fprintln(out, "✓ Stored runs are consistent - no issues found.")
		return nil
	}

	fmt.Fprintf(out, "✗ Found %d validation error(s):\n\n", len(validationErrors))
	for i, ve := range validationErrors {
		fmt.Fprintf(out, "%d. %s\n", i+1, ve)
	}
	return nil
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored runs as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			r, err := openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			n, err := store.Export(cmd.Context(), r.Store(), w)
			if err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d run(s) to %s\n", n, output)
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")

	return cmd
}

func newRunsPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete event logs outside the retention policy",
		Long: `Apply storage.retention (max_count, max_age, max_size) to the event log
directory. A log is kept only while every configured limit keeps it.
Stored run summaries are not removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			r, err := openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			deleted, err := r.Prune()
			if err != nil {
				return fmt.Errorf("prune failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				names := make([]string, len(deleted))
				for i, p := range deleted {
					names[i] = filepath.Base(p)
				}
				return writeJSON(out, map[string]interface{}{
					"deleted": names,
					"count":   len(deleted),
				})
			}

			if len(deleted) == 0 {
				fmt.Fprintln(out, "Nothing to prune.")
				return nil
			}
			for _, p := range deleted {
				fmt.Fprintf(out, "  removed %s\n", filepath.Base(p))
			}
			fmt.Fprintf(out, "Pruned %d event log(s).\n", len(deleted))
			return nil
		},
	}

	return cmd
}

func newRunsBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a checksummed backup of the run store",
		Long: `Write every stored run and its history to a compressed backup file.
Without --output the file goes to the state directory's backups/ folder
and only the newest --keep backups there are retained.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")
			keep, _ := cmd.Flags().GetInt("keep")

			r, err := openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			now := time.Now()
			var dir string
			if output == "" {
				state, err := stateDir(cmd)
				if err != nil {
					return err
				}
				dir = backup.Dir(state)
				output = backup.GeneratePath(dir, now)
			}

			header, err := backup.Backup(cmd.Context(), r.Store(), output, now)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			var rotated []string
			if dir != "" && keep > 0 {
				rotated, err = backup.Rotate(dir, keep)
				if err != nil {
					return fmt.Errorf("backup written but rotation failed: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]interface{}{
					"path":    output,
					"header":  header,
					"rotated": len(rotated),
				})
			}

			fmt.Fprintf(out, "Backed up %d run(s) (%d samples) to %s\n", header.RunCount, header.SampleCount, output)
			if len(rotated) > 0 {
				fmt.Fprintf(out, "Removed %d old backup(s).\n", len(rotated))
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Backup file path (default: <state>/backups/evosim-<timestamp>.evosim-backup)")
	cmd.Flags().Int("keep", 10, "Backups to keep in the default directory (0 keeps all)")

	return cmd
}

func newRunsRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore runs from a backup file",
		Long: `Verify a backup's checksum and import its runs. Runs that already
exist are skipped. Restored runs whose event log is gone lose their
event log reference and can no longer be verified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			r, err := openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			result, err := backup.Restore(cmd.Context(), r.Store(), args[0])
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, result)
			}
			fmt.Fprintf(out, "Restored %d run(s), skipped %d existing.\n", result.Restored, result.Skipped)
			if result.Detached > 0 {
				fmt.Fprintf(out, "%d run(s) restored without their event log.\n", result.Detached)
			}
			return nil
		},
	}

	return cmd
}

// stateDir resolves the --scope state directory.
func stateDir(cmd *cobra.Command) (string, error) {
	root, _ := cmd.Flags().GetString("root")
	scope, _ := cmd.Flags().GetString("scope")
	dir, err := constants.Scope(scope).Dir(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s state directory: %w", scope, err)
	}
	return dir, nil
}
