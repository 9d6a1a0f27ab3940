// Package backup writes checksummed snapshots of the run store and restores
// them.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nvandessel/evosim/internal/store"
)

// Ext is the file extension of backup files.
const Ext = ".evosim-backup"

// Payload is the compressed body of a backup file.
type Payload struct {
	CreatedAt time.Time `json:"created_at"`
	Runs      []Entry   `json:"runs"`
}

// Entry is one stored run with its samples.
type Entry struct {
	Run     store.Run      `json:"run"`
	Samples []store.Sample `json:"samples"`
}

// Dir returns the backup directory inside a state directory.
func Dir(stateDir string) string {
	return filepath.Join(stateDir, "backups")
}

// Backup writes every run in s to path.
func Backup(ctx context.Context, s store.RunStore, path string, now time.Time) (*Header, error) {
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	p := &Payload{
		CreatedAt: now,
		Runs:      make([]Entry, len(runs)),
	}
	for i, run := range runs {
		samples, err := s.Samples(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load samples for %s: %w", run.ID, err)
		}
		p.Runs[i] = Entry{Run: run, Samples: samples}
	}

	return Write(path, p)
}

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	Restored int `json:"restored"`
	Skipped  int `json:"skipped"`

	// Detached counts restored runs whose event log no longer exists
	Detached int `json:"detached"`
}

// Restore imports the runs of a backup file into s. Runs whose ID already
// exists are skipped.
func Restore(ctx context.Context, s store.RunStore, path string) (*RestoreResult, error) {
	p, _, err := Read(path)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	for _, e := range p.Runs {
		_, err := s.GetRun(ctx, e.Run.ID)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, store.ErrRunNotFound) {
			return nil, fmt.Errorf("failed to check existing run %s: %w", e.Run.ID, err)
		}

		run := e.Run
		if run.EventLog != "" {
			if _, err := os.Stat(run.EventLog); err != nil {
				run.EventLog = ""
				result.Detached++
			}
		}
		if err := s.SaveRun(ctx, &run, e.Samples); err != nil {
			return nil, fmt.Errorf("failed to restore run %s: %w", run.ID, err)
		}
		result.Restored++
	}
	return result, nil
}

// GeneratePath creates a timestamped backup filename in dir.
func GeneratePath(dir string, now time.Time) string {
	return filepath.Join(dir, "evosim-"+now.Format("20060102-150405")+Ext)
}

// Rotate keeps the keepN most recent backups in dir and returns the
// removed paths.
func Rotate(dir string, keepN int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Ext) {
			names = append(names, e.Name())
		}
	}

	// Newest first; the timestamp is in the name
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var removed []string
	if len(names) > keepN {
		for _, name := range names[keepN:] {
			path := filepath.Join(dir, name)
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("failed to remove old backup %s: %w", name, err)
			}
			removed = append(removed, path)
		}
	}
	return removed, nil
}
