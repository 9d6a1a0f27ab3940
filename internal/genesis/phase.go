package genesis

import (
	"context"
	"log/slog"

	"github.com/nvandessel/evosim/internal/constants"
)

// Phase is a community's position in its founding lifecycle.
type Phase string

const (
	PhaseUnknown        Phase = "unknown"
	PhaseInitialization Phase = "initialization_phase"
	PhaseGrowth         Phase = "growth_phase"
	PhaseConvergence    Phase = "genesis_convergence"
	PhaseComplete       Phase = "genesis_complete"
)

// DeterminePhase classifies a snapshot. A nil snapshot is PhaseUnknown.
func DeterminePhase(s *Snapshot) Phase {
	if s == nil {
		return PhaseUnknown
	}
	g := s.Genesis
	switch {
	case g.Complete:
		return PhaseComplete
	case g.Members >= constants.ConvergenceMembers && g.Rules >= constants.ConvergenceRules && g.Stuff >= constants.ConvergenceStuff:
		return PhaseConvergence
	case g.Members >= constants.GrowthMembers || g.Rules >= constants.GrowthRules:
		return PhaseGrowth
	default:
		return PhaseInitialization
	}
}

// Assessment is the phase reading taken from a source.
type Assessment struct {
	Phase    Phase     `json:"phase"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`

	// Error records why the snapshot was unavailable
	Error string `json:"error,omitempty"`
}

// Assess reads a snapshot from src and classifies it. Source failures
// never propagate: they yield PhaseUnknown with the reason recorded.
func Assess(ctx context.Context, src Source, logger *slog.Logger) Assessment {
	if src == nil {
		return Assessment{Phase: PhaseUnknown, Error: ErrNoSnapshot.Error()}
	}
	snap, err := src.Snapshot(ctx)
	if err != nil {
		if logger != nil {
			logger.Debug("state snapshot unavailable", "error", err)
		}
		return Assessment{Phase: PhaseUnknown, Error: err.Error()}
	}
	return Assessment{Phase: DeterminePhase(snap), Snapshot: snap}
}
