package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// ValidationError describes an inconsistency in a stored run.
type ValidationError struct {
	RunID string `json:"run_id"`
	Field string `json:"field"` // "samples", "coherence", "diversity", "balance", ...
	Index int    `json:"index"` // sample index, or -1 for run-level issues
	Issue string `json:"issue"` // "count-mismatch", "out-of-range", "gap", "final-mismatch"
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: run %s %s", e.Issue, e.RunID, e.Field)
	}
	return fmt.Sprintf("%s: run %s %s at sample %d", e.Issue, e.RunID, e.Field, e.Index)
}

// ValidateRuns checks every stored run against its samples:
//   - one sample per event, indexed without gaps
//   - every sample inside [0, 1]
//   - final values equal to the last sample
func ValidateRuns(ctx context.Context, s RunStore) ([]ValidationError, error) {
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var errs []ValidationError
	for _, run := range runs {
		samples, err := s.Samples(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load samples for %s: %w", run.ID, err)
		}
		errs = append(errs, validateRun(run, samples)...)
	}
	return errs, nil
}

func validateRun(run Run, samples []Sample) []ValidationError {
	var errs []ValidationError
	add := func(field string, index int, issue string) {
		errs = append(errs, ValidationError{RunID: run.ID, Field: field, Index: index, Issue: issue})
	}

	if len(samples) != run.TotalEvents {
		add("samples", -1, "count-mismatch")
	}

	for i, smp := range samples {
		if smp.Index != i {
			add("samples", i, "gap")
		}
		if !inUnit(smp.Coherence) {
			add("coherence", i, "out-of-range")
		}
		if !inUnit(smp.Diversity) {
			add("diversity", i, "out-of-range")
		}
		if !inUnit(smp.Balance) {
			add("balance", i, "out-of-range")
		}
	}

	if n := len(samples); n > 0 {
		last := samples[n-1]
		if !nearlyEqual(last.Coherence, run.FinalCoherence) {
			add("final_coherence", -1, "final-mismatch")
		}
		if !nearlyEqual(last.Diversity, run.FinalDiversity) {
			add("final_diversity", -1, "final-mismatch")
		}
		if !nearlyEqual(last.Balance, run.FinalBalance) {
			add("final_balance", -1, "final-mismatch")
		}
	}
	return errs
}

// Export writes every run as one JSON line, newest first.
func Export(ctx context.Context, s RunStore, w io.Writer) (int, error) {
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list runs: %w", err)
	}

	enc := json.NewEncoder(w)
	for i, run := range runs {
		if err := enc.Encode(run); err != nil {
			return i, fmt.Errorf("failed to encode run %s: %w", run.ID, err)
		}
	}
	return len(runs), nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
