package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/evosim/internal/community"
	"github.com/nvandessel/evosim/internal/config"
	"github.com/nvandessel/evosim/internal/constants"
	"github.com/nvandessel/evosim/internal/eventlog"
	"github.com/nvandessel/evosim/internal/logging"
	"github.com/nvandessel/evosim/internal/models"
	"github.com/nvandessel/evosim/internal/runner"
	"github.com/nvandessel/evosim/internal/store"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "evosim",
		Short: "Community evolution simulator",
		Long: `evosim simulates how a small agent community evolves through founding,
joins, rule creation, innovation and adaptation events, and tracks the
balance between coherence and diversity along the way.

Run without a subcommand to play the demo community (21 steps, at most
8 joins) and print its report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDemo,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (default: logging.level)")
	rootCmd.PersistentFlags().String("scope", "local", "State directory: local (project) or global (home)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newReplayCmd(),
		newRunsCmd(),
		newPhaseCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// runDemo plays the fixed demo community without touching the state directory.
func runDemo(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")

	root, _ := cmd.Flags().GetString("root")

	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	r := runner.New(runner.Config{
		Settings: settings,
		Root:     root,
		Logger:   logging.NewLogger(settings.Logging.Level, cmd.ErrOrStderr()),
	})

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	p := r.DefaultParams()
	p.Duration = constants.DemoDuration
	p.JoinBudget = constants.DemoJoinBudget
	p.Save = false

	res, err := r.Execute(ctx, p)
	if err != nil {
		return fmt.Errorf("demo run failed: %w", err)
	}

	if jsonOut {
		return writeJSON(cmd.OutOrStdout(), res.Run)
	}
	printReport(cmd.OutOrStdout(), res.Report)
	return nil
}

// loadSettings loads configuration for --root and applies --log-level.
func loadSettings(cmd *cobra.Command) (*config.EvosimConfig, error) {
	root, _ := cmd.Flags().GetString("root")
	level, _ := cmd.Flags().GetString("log-level")

	settings, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level != "" {
		settings.Logging.Level = level
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return settings, nil
}

// openRunner opens a runner over the --scope state directory. Logs go to stderr.
func openRunner(cmd *cobra.Command) (*runner.Runner, error) {
	root, _ := cmd.Flags().GetString("root")
	scope, _ := cmd.Flags().GetString("scope")

	if !constants.Scope(scope).Valid() {
		return nil, fmt.Errorf("invalid scope: %s (must be local or global)", scope)
	}

	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(settings.Logging.Level, cmd.ErrOrStderr())
	r, err := runner.Open(settings, root, constants.Scope(scope), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s state: %w", scope, err)
	}
	return r, nil
}

// signalContext returns a context cancelled on interrupt.
func signalContext(parent context.Context) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport writes the human-readable run report.
func printReport(w io.Writer, rep *community.Report) {
	fmt.Fprintf(w, "Total events: %d\n", len(rep.Events))
	fmt.Fprintln(w, "Event types:")
	for _, kind := range models.EventKinds {
		fmt.Fprintf(w, "  %-14s %d\n", kind, rep.EventCounts[kind])
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Final coherence: %.3f\n", rep.FinalCoherence)
	fmt.Fprintf(w, "Final diversity: %.3f\n", rep.FinalDiversity)
	fmt.Fprintf(w, "Final balance:   %.3f\n", rep.FinalBalance)
	fmt.Fprintf(w, "Mean balance:    %.3f\n", rep.MeanBalance)
	fmt.Fprintf(w, "Trajectory:      %s\n", rep.Trajectory)
	fmt.Fprintf(w, "Healthy samples: %.1f%% (balance > %.1f)\n", rep.HealthyPercent, constants.HealthyBalanceThreshold)
}

// printRunHeader writes the identifying lines of a stored run.
func printRunHeader(w io.Writer, run *store.Run) {
	if run.ID != "" {
		fmt.Fprintf(w, "Run:     %s\n", run.ID)
	}
	fmt.Fprintf(w, "Seed:    %d\n", run.Seed)
	fmt.Fprintf(w, "Shape:   %d steps, join budget %d\n", run.Duration, run.JoinBudget)
	if !run.StartedAt.IsZero() {
		fmt.Fprintf(w, "Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w)
}

// isEventLogPath reports whether arg names an event log file rather than a run ID.
func isEventLogPath(arg string) bool {
	if !strings.HasSuffix(arg, eventlog.Ext) {
		return false
	}
	_, err := os.Stat(arg)
	return err == nil
}
