package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/evosim/internal/config"
	"github.com/nvandessel/evosim/internal/constants"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage evosim configuration",
		Long: `View and modify evosim configuration settings.

Configuration is read from ~/.evosim/config.yaml, then from the project's
.evosim/config.yaml, then from EVOSIM_* environment variables. 'set'
writes the global file unless --local is given.

Examples:
  evosim config list                                  # Show effective settings
  evosim config get simulation.duration               # Get a specific setting
  evosim config set simulation.join_budget 12         # Set a global setting
  evosim config set storage.retention.max_count 50 --local`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")

			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, cfg)
			}

			fmt.Fprintln(out, "Effective configuration:")
			for _, section := range configSections {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "%s:\n", section.title)
				for _, key := range section.keys {
					value, _ := getConfigValue(cfg, key)
					fmt.Fprintf(out, "  %-38s %v\n", key+":", displayValue(value))
				}
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")
			key := args[0]

			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, displayValue(value))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")
			local, _ := cmd.Flags().GetBool("local")
			key, value := args[0], args[1]

			path, err := configPath(root, local)
			if err != nil {
				return err
			}

			// Only the target file is edited so settings from other
			// layers are not copied into it.
			cfg, err := config.LoadFromFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				cfg, err = config.Default(), nil
			}
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", path, err)
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if err := saveConfig(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
					"file":   path,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s (%s)\n", key, value, path)
			return nil
		},
	}

	cmd.Flags().Bool("local", false, "Write the project .evosim/config.yaml instead of the global file")

	return cmd
}

var configSections = []struct {
	title string
	keys  []string
}{
	{"Simulation", []string{
		"simulation.duration",
		"simulation.join_budget",
		"simulation.seed",
		"simulation.join_probability",
		"simulation.rule_probability",
		"simulation.innovation_probability",
		"simulation.adaptation_gate",
		"simulation.adaptation_window",
	}},
	{"Logging", []string{
		"logging.level",
	}},
	{"Storage", []string{
		"storage.enabled",
		"storage.event_log_dir",
		"storage.database",
		"storage.retention.max_count",
		"storage.retention.max_age",
		"storage.retention.max_size",
	}},
	{"Snapshot", []string{
		"snapshot.command",
		"snapshot.file",
		"snapshot.timeout",
	}},
	{"MCP server", []string{
		"server.runs_per_minute",
		"server.run_burst",
		"server.queries_per_minute",
		"server.query_burst",
	}},
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.EvosimConfig, key string) (interface{}, bool) {
	switch key {
	case "simulation.duration":
		return cfg.Simulation.Duration, true
	case "simulation.join_budget":
		return cfg.Simulation.JoinBudget, true
	case "simulation.seed":
		return cfg.Simulation.Seed, true
	case "simulation.join_probability":
		return cfg.Simulation.JoinProbability, true
	case "simulation.rule_probability":
		return cfg.Simulation.RuleProbability, true
	case "simulation.innovation_probability":
		return cfg.Simulation.InnovationProbability, true
	case "simulation.adaptation_gate":
		return cfg.Simulation.AdaptationGate, true
	case "simulation.adaptation_window":
		return cfg.Simulation.AdaptationWindow, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "storage.enabled":
		return cfg.Storage.Enabled, true
	case "storage.event_log_dir":
		return cfg.Storage.EventLogDir, true
	case "storage.database":
		return cfg.Storage.Database, true
	case "storage.retention.max_count":
		return cfg.Storage.Retention.MaxCount, true
	case "storage.retention.max_age":
		return cfg.Storage.Retention.MaxAge, true
	case "storage.retention.max_size":
		return cfg.Storage.Retention.MaxSize, true
	case "snapshot.command":
		return cfg.Snapshot.Command, true
	case "snapshot.file":
		return cfg.Snapshot.File, true
	case "snapshot.timeout":
		return cfg.Snapshot.Timeout.String(), true
	case "server.runs_per_minute":
		return cfg.Server.RunsPerMinute, true
	case "server.run_burst":
		return cfg.Server.RunBurst, true
	case "server.queries_per_minute":
		return cfg.Server.QueriesPerMinute, true
	case "server.query_burst":
		return cfg.Server.QueryBurst, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.EvosimConfig, key, value string) error {
	var err error
	switch key {
	case "simulation.duration":
		cfg.Simulation.Duration, err = parseInt(key, value)
	case "simulation.join_budget":
		cfg.Simulation.JoinBudget, err = parseInt(key, value)
	case "simulation.seed":
		cfg.Simulation.Seed, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			err = fmt.Errorf("invalid %s: %s (must be a non-negative integer)", key, value)
		}
	case "simulation.join_probability":
		cfg.Simulation.JoinProbability, err = parseFloat(key, value)
	case "simulation.rule_probability":
		cfg.Simulation.RuleProbability, err = parseFloat(key, value)
	case "simulation.innovation_probability":
		cfg.Simulation.InnovationProbability, err = parseFloat(key, value)
	case "simulation.adaptation_gate":
		cfg.Simulation.AdaptationGate, err = parseFloat(key, value)
	case "simulation.adaptation_window":
		cfg.Simulation.AdaptationWindow, err = parseInt(key, value)
	case "logging.level":
		cfg.Logging.Level = value
	case "storage.enabled":
		cfg.Storage.Enabled = value == "true" || value == "1"
	case "storage.event_log_dir":
		cfg.Storage.EventLogDir = value
	case "storage.database":
		cfg.Storage.Database = value
	case "storage.retention.max_count":
		cfg.Storage.Retention.MaxCount, err = parseInt(key, value)
	case "storage.retention.max_age":
		cfg.Storage.Retention.MaxAge = value
	case "storage.retention.max_size":
		cfg.Storage.Retention.MaxSize = value
	case "snapshot.command":
		cfg.Snapshot.Command = value
	case "snapshot.file":
		cfg.Snapshot.File = value
	case "snapshot.timeout":
		d, perr := time.ParseDuration(value)
		if perr != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Snapshot.Timeout = d
	case "server.runs_per_minute":
		cfg.Server.RunsPerMinute, err = parseFloat(key, value)
	case "server.run_burst":
		cfg.Server.RunBurst, err = parseInt(key, value)
	case "server.queries_per_minute":
		cfg.Server.QueriesPerMinute, err = parseFloat(key, value)
	case "server.query_burst":
		cfg.Server.QueryBurst, err = parseInt(key, value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s (must be an integer)", key, value)
	}
	return n, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s (must be a number)", key, value)
	}
	return f, nil
}

// configPath returns the global or project config file path.
func configPath(root string, local bool) (string, error) {
	scope := constants.ScopeGlobal
	if local {
		scope = constants.ScopeLocal
	}
	dir, err := scope.Dir(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s config directory: %w", scope, err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// saveConfig writes the configuration to path.
func saveConfig(cfg *config.EvosimConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// displayValue shows empty strings as (not set).
func displayValue(v interface{}) interface{} {
	if s, ok := v.(string); ok && s == "" {
		return "(not set)"
	}
	return v
}
