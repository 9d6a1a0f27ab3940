// Package config provides unified configuration loading for evosim.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/evosim/internal/constants"
)

// EvosimConfig contains all evosim configuration settings.
type EvosimConfig struct {
	// Simulation contains the run shape and event probabilities.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Storage controls where runs and event logs are persisted.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Snapshot configures the genesis state source.
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`

	// Server configures the MCP tool server.
	Server ServerConfig `json:"server" yaml:"server"`
}

// SimulationConfig configures simulation runs.
type SimulationConfig struct {
	// Duration is the number of steps per run.
	Duration int `json:"duration" yaml:"duration"`

	// JoinBudget caps the number of join events per run.
	JoinBudget int `json:"join_budget" yaml:"join_budget"`

	// Seed fixes the random source. 0 means seed from the clock.
	Seed uint64 `json:"seed" yaml:"seed"`

	JoinProbability       float64 `json:"join_probability" yaml:"join_probability"`
	RuleProbability       float64 `json:"rule_probability" yaml:"rule_probability"`
	InnovationProbability float64 `json:"innovation_probability" yaml:"innovation_probability"`

	// AdaptationGate is the chance a struggling community adapts on a step.
	AdaptationGate float64 `json:"adaptation_gate" yaml:"adaptation_gate"`

	// AdaptationWindow is the number of trailing balance samples averaged.
	AdaptationWindow int `json:"adaptation_window" yaml:"adaptation_window"`
}

// LoggingConfig configures evosim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to .evosim/decisions.jsonl.
	// "trace" additionally logs every applied event.
	Level string `json:"level" yaml:"level"`
}

// StorageConfig configures run persistence.
type StorageConfig struct {
	// Enabled saves every run to the SQLite run store.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// EventLogDir holds compressed per-run event logs. Relative paths
	// resolve against the .evosim directory.
	EventLogDir string `json:"event_log_dir" yaml:"event_log_dir"`

	// Database is the SQLite file name, relative to the .evosim directory.
	Database string `json:"database" yaml:"database"`

	// Retention prunes old event logs after each saved run.
	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

// RetentionConfig bounds the event log directory. Zero values mean no limit.
type RetentionConfig struct {
	MaxCount int `json:"max_count,omitempty" yaml:"max_count,omitempty"`

	// MaxAge accepts Go durations and day or week suffixes, e.g. "30d".
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`

	// MaxSize caps total bytes, e.g. "100MB".
	MaxSize string `json:"max_size,omitempty" yaml:"max_size,omitempty"`
}

// SnapshotConfig configures where the genesis snapshot comes from.
type SnapshotConfig struct {
	// Command prints a JSON snapshot on stdout. Supports ${VAR} syntax.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	// File is read when Command is empty.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// Timeout bounds how long Command may run.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// ServerConfig configures per-tool rate limits for the MCP server.
type ServerConfig struct {
	// RunsPerMinute limits evosim_run calls.
	RunsPerMinute float64 `json:"runs_per_minute" yaml:"runs_per_minute"`

	// RunBurst is the number of evosim_run calls allowed at once.
	RunBurst int `json:"run_burst" yaml:"run_burst"`

	// QueriesPerMinute limits the read-only tools.
	QueriesPerMinute float64 `json:"queries_per_minute" yaml:"queries_per_minute"`

	// QueryBurst is the number of read-only calls allowed at once.
	QueryBurst int `json:"query_burst" yaml:"query_burst"`
}

// Default returns an EvosimConfig with sensible defaults.
func Default() *EvosimConfig {
	return &EvosimConfig{
		Simulation: SimulationConfig{
			Duration:              constants.DemoDuration,
			JoinBudget:            constants.DemoJoinBudget,
			Seed:                  0,
			JoinProbability:       constants.JoinProbability,
			RuleProbability:       constants.RuleProbability,
			InnovationProbability: constants.InnovationProbability,
			AdaptationGate:        constants.AdaptationGate,
			AdaptationWindow:      constants.AdaptationWindow,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Enabled:     true,
			EventLogDir: "runs",
			Database:    "evosim.db",
		},
		Snapshot: SnapshotConfig{
			Timeout: 5 * time.Second,
		},
		Server: ServerConfig{
			RunsPerMinute:    10,
			RunBurst:         3,
			QueriesPerMinute: 60,
			QueryBurst:       10,
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.evosim/config.yaml -> <root>/.evosim/config.yaml -> environment variables.
// An empty root skips the project file.
func Load(root string) (*EvosimConfig, error) {
	config := Default()

	var paths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, constants.EvosimDirName, "config.yaml"))
	}
	if root != "" {
		paths = append(paths, filepath.Join(root, constants.EvosimDirName, "config.yaml"))
	}

	for _, p := range paths {
		if err := mergeFile(config, p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*EvosimConfig, error) {
	config := Default()
	if err := mergeFile(config, path); err != nil {
		return nil, err
	}
	return config, nil
}

// mergeFile overlays the keys present in a YAML file onto config.
func mergeFile(config *EvosimConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	// Expand environment variables in the snapshot command
	config.Snapshot.Command = expandEnvVars(config.Snapshot.Command)

	return nil
}

// Validate checks that the configuration is valid.
func (c *EvosimConfig) Validate() error {
	s := c.Simulation
	if s.Duration < 1 || s.Duration > constants.MaxDuration {
		return fmt.Errorf("duration must be between 1 and %d, got %d", constants.MaxDuration, s.Duration)
	}
	if s.JoinBudget < 0 || s.JoinBudget > constants.MaxJoinBudget {
		return fmt.Errorf("join_budget must be between 0 and %d, got %d", constants.MaxJoinBudget, s.JoinBudget)
	}
	if s.AdaptationWindow < 1 {
		return fmt.Errorf("adaptation_window must be at least 1, got %d", s.AdaptationWindow)
	}

	probabilities := []struct {
		name  string
		value float64
	}{
		{"join_probability", s.JoinProbability},
		{"rule_probability", s.RuleProbability},
		{"innovation_probability", s.InnovationProbability},
		{"adaptation_gate", s.AdaptationGate},
	}
	for _, p := range probabilities {
		if p.value < 0 || p.value > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", p.name, p.value)
		}
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Storage.Enabled && c.Storage.Database == "" {
		return fmt.Errorf("storage.database must be set when storage is enabled")
	}

	if c.Storage.Retention.MaxCount < 0 {
		return fmt.Errorf("retention max_count must be non-negative, got %d", c.Storage.Retention.MaxCount)
	}

	if c.Snapshot.Timeout < 0 {
		return fmt.Errorf("snapshot timeout must be non-negative, got %v", c.Snapshot.Timeout)
	}

	if c.Server.RunsPerMinute <= 0 || c.Server.QueriesPerMinute <= 0 {
		return fmt.Errorf("server rates must be positive")
	}
	if c.Server.RunBurst < 1 || c.Server.QueryBurst < 1 {
		return fmt.Errorf("server bursts must be at least 1")
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *EvosimConfig) {
	if v := os.Getenv("EVOSIM_DURATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Duration = n
		}
	}

	if v := os.Getenv("EVOSIM_JOIN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.JoinBudget = n
		}
	}

	if v := os.Getenv("EVOSIM_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}

	if v := os.Getenv("EVOSIM_ADAPTATION_GATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.AdaptationGate = f
		}
	}

	if v := os.Getenv("EVOSIM_STORAGE_ENABLED"); v != "" {
		config.Storage.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("EVOSIM_SNAPSHOT_COMMAND"); v != "" {
		config.Snapshot.Command = v
	}

	if v := os.Getenv("EVOSIM_SNAPSHOT_FILE"); v != "" {
		config.Snapshot.File = v
	}

	if v := os.Getenv("EVOSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
