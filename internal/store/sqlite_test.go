package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteRunStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) RunStore {
		s, err := NewSQLiteRunStore(filepath.Join(t.TempDir(), ".evosim", "evosim.db"))
		if err != nil {
			t.Fatalf("NewSQLiteRunStore() error = %v", err)
		}
		return s
	})
}

func TestNewSQLiteRunStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "evosim.db")

	s, err := NewSQLiteRunStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("evosim.db was not created")
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestSQLiteRunStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "evosim.db")
	ctx := context.Background()

	s, err := NewSQLiteRunStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	run, samples := simulatedRun(t, 17, time.Now().UTC())
	if err := s.SaveRun(ctx, run, samples); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLiteRunStore(dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() after reopen error = %v", err)
	}
	if got.Seed != 17 || got.TotalEvents != run.TotalEvents {
		t.Errorf("reopened run = %+v, want seed 17 and %d events", got, run.TotalEvents)
	}
}
