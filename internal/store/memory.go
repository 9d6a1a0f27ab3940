package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements RunStore for tests and unsaved runs.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]Run
	samples map[string][]Sample
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]Run),
		samples: make(map[string][]Sample),
	}
}

// SaveRun stores a copy of the run and its samples.
func (s *MemoryStore) SaveRun(ctx context.Context, run *Run, samples []Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run already exists: %s", run.ID)
	}

	stored := *run
	stored.EventCounts = maps.Clone(run.EventCounts)
	s.runs[run.ID] = stored
	s.samples[run.ID] = slices.Clone(samples)
	return nil
}

// GetRun retrieves a run by ID.
func (s *MemoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	run.EventCounts = maps.Clone(run.EventCounts)
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := slices.Collect(maps.Values(s.runs))
	slices.SortFunc(runs, func(a, b Run) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Samples returns a copy of a run's history.
func (s *MemoryStore) Samples(ctx context.Context, id string) ([]Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.runs[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return slices.Clone(s.samples[id]), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
