package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/evosim/internal/community"
	"github.com/nvandessel/evosim/internal/eventlog"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <run-id|event-log>",
		Short: "Rebuild a run's report from its event log",
		Long: `Replay a recorded event log through a fresh simulator and print the
resulting report. The argument is either the ID of a stored run or the
path to a .jsonl.zst event log.

Examples:
  evosim replay 3f2b9c1e-...
  evosim replay .evosim/runs/3f2b9c1e-....jsonl.zst --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			r, err := openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			var rep *community.Report
			if isEventLogPath(args[0]) {
				rep, err = eventlog.Replay(ctx, args[0], r.Options())
				if err != nil {
					return fmt.Errorf("failed to replay %s: %w", args[0], err)
				}
			} else {
				if r.Store() == nil {
					return fmt.Errorf("run %s: no run store", args[0])
				}
				run, err := r.Store().GetRun(ctx, args[0])
				if err != nil {
					return fmt.Errorf("run %s: %w", args[0], err)
				}
				rep, err = r.Report(ctx, run)
				if err != nil {
					return err
				}
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}

	return cmd
}
