package mcp

import (
	"github.com/nvandessel/evosim/internal/community"
	"github.com/nvandessel/evosim/internal/genesis"
	"github.com/nvandessel/evosim/internal/models"
	"github.com/nvandessel/evosim/internal/synthesis"
)

// EvosimRunInput defines the input for evosim_run tool.
type EvosimRunInput struct {
	Duration   int    `json:"duration,omitempty" jsonschema:"Number of simulation steps, at most 10000 (default: configured duration)"`
	JoinBudget *int   `json:"join_budget,omitempty" jsonschema:"Maximum number of agents that may join, at most 10000 (default: configured budget)"`
	Seed       uint64 `json:"seed,omitempty" jsonschema:"Random seed for a reproducible run (0 seeds from the clock)"`
	Save       *bool  `json:"save,omitempty" jsonschema:"Persist the run and its event log (default: storage.enabled)"`
	Scope      string `json:"scope,omitempty" jsonschema:"State directory: 'local' (project) or 'global' (home) (default: 'local')"`
}

// EvosimRunOutput defines the output for evosim_run tool.
type EvosimRunOutput struct {
	RunID          string                   `json:"run_id,omitempty" jsonschema:"ID of the saved run (empty when not saved)"`
	Seed           uint64                   `json:"seed" jsonschema:"Seed used, for reproducing the run"`
	Steps          int                      `json:"steps"`
	TotalEvents    int                      `json:"total_events"`
	EventCounts    map[models.EventKind]int `json:"event_counts"`
	FinalCoherence float64                  `json:"final_coherence"`
	FinalDiversity float64                  `json:"final_diversity"`
	FinalBalance   float64                  `json:"final_balance"`
	MeanBalance    float64                  `json:"mean_balance"`
	HealthyPercent float64                  `json:"healthy_percent" jsonschema:"Percentage of samples with balance above 0.6"`
	Trajectory     community.Trajectory     `json:"trajectory" jsonschema:"improving, declining, stable or insufficient_data"`
	Pruned         int                      `json:"pruned,omitempty" jsonschema:"Number of old event logs removed by retention"`
	Message        string                   `json:"message" jsonschema:"Human-readable summary"`
}

// EvosimRunsInput defines the input for evosim_runs tool.
type EvosimRunsInput struct {
	RunID  string `json:"run_id,omitempty" jsonschema:"Show one run with its balance history instead of listing"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum runs to list, newest first (default: 20)"`
	Verify bool   `json:"verify,omitempty" jsonschema:"With run_id: replay the event log and compare it with the stored history"`
	Scope  string `json:"scope,omitempty" jsonschema:"State directory: 'local' or 'global' (default: 'local')"`
}

// EvosimRunsOutput defines the output for evosim_runs tool.
type EvosimRunsOutput struct {
	Runs         []RunListItem       `json:"runs,omitempty" jsonschema:"Stored runs, newest first"`
	Count        int                 `json:"count" jsonschema:"Number of runs returned"`
	Samples      []SampleItem        `json:"samples,omitempty" jsonschema:"Balance history of the requested run"`
	Verification *VerificationResult `json:"verification,omitempty"`
}

// RunListItem provides a list view of a stored run.
type RunListItem struct {
	ID             string               `json:"id"`
	StartedAt      string               `json:"started_at" jsonschema:"RFC 3339 start time"`
	Duration       int                  `json:"duration"`
	JoinBudget     int                  `json:"join_budget"`
	Seed           uint64               `json:"seed"`
	TotalEvents    int                  `json:"total_events"`
	FinalBalance   float64              `json:"final_balance"`
	MeanBalance    float64              `json:"mean_balance"`
	HealthyPercent float64              `json:"healthy_percent"`
	Trajectory     community.Trajectory `json:"trajectory"`
	HasEventLog    bool                 `json:"has_event_log"`
}

// SampleItem is one point of a run's history.
type SampleItem struct {
	Index     int     `json:"index"`
	Coherence float64 `json:"coherence"`
	Diversity float64 `json:"diversity"`
	Balance   float64 `json:"balance"`
}

// VerificationResult reports whether a replay reproduced the stored run.
type VerificationResult struct {
	Matches    bool     `json:"matches"`
	Events     int      `json:"events"`
	Mismatches []string `json:"mismatches,omitempty"`
}

// EvosimPhaseInput defines the input for evosim_phase tool.
type EvosimPhaseInput struct {
	RunID string `json:"run_id,omitempty" jsonschema:"Run to synthesize insights from (default: latest stored run)"`
	Scope string `json:"scope,omitempty" jsonschema:"State directory: 'local' or 'global' (default: 'local')"`
}

// EvosimPhaseOutput defines the output for evosim_phase tool.
type EvosimPhaseOutput struct {
	Phase           genesis.Phase            `json:"phase" jsonschema:"initialization_phase, growth_phase, genesis_convergence, genesis_complete or unknown"`
	Snapshot        *genesis.Snapshot        `json:"snapshot,omitempty"`
	SnapshotError   string                   `json:"snapshot_error,omitempty" jsonschema:"Why the state snapshot was unavailable"`
	Readiness       *genesis.Readiness       `json:"readiness,omitempty"`
	Actions         []genesis.Action         `json:"actions,omitempty" jsonschema:"Concrete steps toward genesis completion"`
	RunID           string                   `json:"run_id,omitempty" jsonschema:"Run the insights were read from"`
	Insights        *synthesis.Insights      `json:"insights,omitempty"`
	Recommendations []genesis.Recommendation `json:"recommendations" jsonschema:"Prioritized evolution strategies, most urgent first"`
}
