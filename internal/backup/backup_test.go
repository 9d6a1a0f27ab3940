package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/nvandessel/evosim/internal/community"
	"github.com/nvandessel/evosim/internal/models"
	"github.com/nvandessel/evosim/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func addTestRuns(t *testing.T, s store.RunStore, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for i, id := range ids {
		run := &store.Run{
			ID:             id,
			StartedAt:      testNow.Add(time.Duration(i) * time.Minute),
			Duration:       3,
			JoinBudget:     1,
			Seed:           uint64(i + 1),
			Steps:          3,
			TotalEvents:    2,
			EventCounts:    map[models.EventKind]int{models.EventKindJoin: 1, models.EventKindInnovation: 1},
			FinalCoherence: 0.6,
			FinalDiversity: 0.4,
			FinalBalance:   0.8,
			MeanBalance:    0.75,
			HealthyPercent: 50,
			Trajectory:     community.TrajectoryInsufficientData,
		}
		samples := []store.Sample{
			{Index: 0, Coherence: 0.5, Diversity: 0.5, Balance: 0.7},
			{Index: 1, Coherence: 0.6, Diversity: 0.4, Balance: 0.8},
		}
		if err := s.SaveRun(ctx, run, samples); err != nil {
			t.Fatalf("SaveRun(%s) error = %v", id, err)
		}
	}
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemoryStore()
	addTestRuns(t, src, "run-a", "run-b")

	path := filepath.Join(t.TempDir(), "nested", "test"+Ext)
	header, err := Backup(ctx, src, path, testNow)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if header.RunCount != 2 || header.SampleCount != 4 {
		t.Errorf("header counts = %d runs, %d samples, want 2, 4", header.RunCount, header.SampleCount)
	}
	if !strings.HasPrefix(header.Checksum, "sha256:") {
		t.Errorf("Checksum = %q", header.Checksum)
	}

	dst := store.NewMemoryStore()
	result, err := Restore(ctx, dst, path)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.Restored != 2 || result.Skipped != 0 {
		t.Errorf("Restore() = %+v, want 2 restored", result)
	}

	for _, id := range []string{"run-a", "run-b"} {
		want, _ := src.GetRun(ctx, id)
		got, err := dst.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("GetRun(%s) error = %v", id, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("restored run %s mismatch (-want +got):\n%s", id, diff)
		}

		wantSamples, _ := src.Samples(ctx, id)
		gotSamples, _ := dst.Samples(ctx, id)
		if diff := cmp.Diff(wantSamples, gotSamples); diff != "" {
			t.Errorf("restored samples %s mismatch (-want +got):\n%s", id, diff)
		}
	}
}

func TestRestore_SkipsExisting(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemoryStore()
	addTestRuns(t, src, "run-a", "run-b")

	path := filepath.Join(t.TempDir(), "b"+Ext)
	if _, err := Backup(ctx, src, path, testNow); err != nil {
		t.Fatal(err)
	}

	dst := store.NewMemoryStore()
	addTestRuns(t, dst, "run-a")

	result, err := Restore(ctx, dst, path)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.Restored != 1 || result.Skipped != 1 {
		t.Errorf("Restore() = %+v, want 1 restored and 1 skipped", result)
	}
}

func TestRestore_DetachesMissingEventLogs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	present := filepath.Join(dir, "present.jsonl.zst")
	if err := os.WriteFile(present, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	src := store.NewMemoryStore()
	for id, log := range map[string]string{"kept": present, "gone": filepath.Join(dir, "gone.jsonl.zst")} {
		run := &store.Run{ID: id, StartedAt: testNow, EventLog: log}
		if err := src.SaveRun(ctx, run, nil); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(dir, "b"+Ext)
	if _, err := Backup(ctx, src, path, testNow); err != nil {
		t.Fatal(err)
	}

	dst := store.NewMemoryStore()
	result, err := Restore(ctx, dst, path)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.Detached != 1 {
		t.Errorf("Detached = %d, want 1", result.Detached)
	}

	kept, _ := dst.GetRun(ctx, "kept")
	gone, _ := dst.GetRun(ctx, "gone")
	if kept.EventLog != present || gone.EventLog != "" {
		t.Errorf("event logs = %q / %q", kept.EventLog, gone.EventLog)
	}
}

func TestBackup_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perm"+Ext)
	if _, err := Backup(context.Background(), store.NewMemoryStore(), path, testNow); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestRotate(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := range 5 {
		p := GeneratePath(dir, testNow.Add(time.Duration(i)*time.Hour))
		if err := os.WriteFile(p, []byte("{}"), 0600); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	// Files that are not backups are left alone
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0600); err != nil {
		t.Fatal(err)
	}

	removed, err := Rotate(dir, 2)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if diff := cmp.Diff([]string{paths[2], paths[1], paths[0]}, removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 3 {
		t.Errorf("%d entries left, want 2 backups and notes.txt", len(entries))
	}

	if removed, err := Rotate(filepath.Join(dir, "missing"), 1); err != nil || removed != nil {
		t.Errorf("Rotate(missing) = %v, %v", removed, err)
	}
}

func TestGeneratePath(t *testing.T) {
	got := GeneratePath("/tmp/backups", testNow)
	want := filepath.Join("/tmp/backups", "evosim-20260314-092653"+Ext)
	if got != want {
		t.Errorf("GeneratePath() = %q, want %q", got, want)
	}
	if Dir("/p/.evosim") != filepath.Join("/p/.evosim", "backups") {
		t.Errorf("Dir() = %q", Dir("/p/.evosim"))
	}
}
