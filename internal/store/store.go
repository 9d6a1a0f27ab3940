// Package store defines the RunStore interface for persisting simulation
// runs and their balance histories.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/evosim/internal/community"
	"github.com/nvandessel/evosim/internal/models"
)

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("run not found")

// Run is the stored summary of one simulation run.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	Duration   int       `json:"duration"`
	JoinBudget int       `json:"join_budget"`
	Seed       uint64    `json:"seed"`

	Steps       int                      `json:"steps"`
	TotalEvents int                      `json:"total_events"`
	EventCounts map[models.EventKind]int `json:"event_counts"`

	FinalCoherence float64              `json:"final_coherence"`
	FinalDiversity float64              `json:"final_diversity"`
	FinalBalance   float64              `json:"final_balance"`
	MeanBalance    float64              `json:"mean_balance"`
	HealthyPercent float64              `json:"healthy_percent"`
	Trajectory     community.Trajectory `json:"trajectory"`

	// EventLog is the path of the compressed event log, if one was written
	EventLog string `json:"event_log,omitempty"`
}

// Sample is one point of a run's state history.
type Sample struct {
	Index     int     `json:"index"`
	Coherence float64 `json:"coherence"`
	Diversity float64 `json:"diversity"`
	Balance   float64 `json:"balance"`
}

// RunParams describes how a run was started.
type RunParams struct {
	StartedAt  time.Time
	Duration   int
	JoinBudget int
	Seed       uint64
}

// NewRun converts a report into a stored run and its samples. The ID is
// left empty for the store to assign.
func NewRun(p RunParams, r *community.Report) (*Run, []Sample) {
	run := &Run{
		StartedAt:      p.StartedAt,
		Duration:       p.Duration,
		JoinBudget:     p.JoinBudget,
		Seed:           p.Seed,
		Steps:          r.Steps,
		TotalEvents:    len(r.Events),
		EventCounts:    r.EventCounts,
		FinalCoherence: r.FinalCoherence,
		FinalDiversity: r.FinalDiversity,
		FinalBalance:   r.FinalBalance,
		MeanBalance:    r.MeanBalance,
		HealthyPercent: r.HealthyPercent,
		Trajectory:     r.Trajectory,
	}

	samples := make([]Sample, len(r.Balance))
	for i := range r.Balance {
		samples[i] = Sample{
			Index:     i,
			Coherence: r.Coherence[i],
			Diversity: r.Diversity[i],
			Balance:   r.Balance[i],
		}
	}
	return run, samples
}

// RunStore persists runs. Implementations must be safe for concurrent use.
type RunStore interface {
	// SaveRun stores a run with its samples. An empty run.ID is replaced
	// with a fresh identifier.
	SaveRun(ctx context.Context, run *Run, samples []Sample) error

	// GetRun returns ErrRunNotFound for unknown IDs.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs newest first. limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Samples returns a run's history in index order.
	Samples(ctx context.Context, id string) ([]Sample, error)

	Close() error
}
