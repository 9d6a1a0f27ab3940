package runner

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/nvandessel/evosim/internal/config"
	"github.com/nvandessel/evosim/internal/constants"
	"github.com/nvandessel/evosim/internal/eventlog"
	"github.com/nvandessel/evosim/internal/genesis"
	"github.com/nvandessel/evosim/internal/models"
	"github.com/nvandessel/evosim/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedTime = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestRunner(t *testing.T, mutate func(*Config)) *Runner {
	t.Helper()
	c := Config{
		Settings:    config.Default(),
		Root:        t.TempDir(),
		Store:       store.NewMemoryStore(),
		EventLogDir: filepath.Join(t.TempDir(), "runs"),
		Clock:       func() time.Time { return fixedTime },
	}
	if mutate != nil {
		mutate(&c)
	}
	return New(c)
}

func TestExecute_SavesRunAndEventLog(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	res, err := r.Execute(ctx, Params{Duration: 21, JoinBudget: 8, Seed: 7, Save: true})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Run.ID == "" {
		t.Fatal("saved run has no ID")
	}
	if res.Run.Seed != 7 {
		t.Errorf("Seed = %d, want 7", res.Run.Seed)
	}
	if res.Run.TotalEvents != len(res.Report.Events) {
		t.Errorf("TotalEvents = %d, want %d", res.Run.TotalEvents, len(res.Report.Events))
	}
	if _, err := os.Stat(res.Run.EventLog); err != nil {
		t.Fatalf("event log not written: %v", err)
	}

	got, err := r.Store().GetRun(ctx, res.Run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.EventLog != res.Run.EventLog {
		t.Errorf("stored EventLog = %q, want %q", got.EventLog, res.Run.EventLog)
	}
}

func TestExecute_WithoutSave(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	res, err := r.Execute(ctx, Params{Duration: 5, JoinBudget: 1, Seed: 3})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Run.ID != "" || res.Run.EventLog != "" {
		t.Errorf("unsaved run has ID %q and log %q", res.Run.ID, res.Run.EventLog)
	}
	runs, _ := r.Store().ListRuns(ctx, 0)
	if len(runs) != 0 {
		t.Errorf("store has %d runs, want 0", len(runs))
	}
}

func TestExecute_NoStoreIgnoresSave(t *testing.T) {
	r := newTestRunner(t, func(c *Config) { c.Store = nil })

	res, err := r.Execute(context.Background(), Params{Duration: 3, Seed: 1, Save: true})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Run.ID != "" {
		t.Errorf("run ID = %q, want empty without a store", res.Run.ID)
	}
}

func TestExecute_ZeroSeedUsesClock(t *testing.T) {
	r := newTestRunner(t, nil)

	res, err := r.Execute(context.Background(), Params{Duration: 3})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if want := uint64(fixedTime.UnixNano()); res.Run.Seed != want {
		t.Errorf("Seed = %d, want %d", res.Run.Seed, want)
	}
}

func TestExecute_SameSeedSameReport(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()
	p := Params{Duration: 30, JoinBudget: 5, Seed: 99}

	a, err := r.Execute(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Execute(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a.Report, b.Report); diff != "" {
		t.Errorf("reports differ (-first +second):\n%s", diff)
	}
}

func TestExecute_InvalidParams(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		p    Params
	}{
		{"zero duration", Params{Duration: 0}},
		{"negative join budget", Params{Duration: 5, JoinBudget: -1}},
		{"duration over limit", Params{Duration: constants.MaxDuration + 1}},
		{"huge run", Params{Duration: math.MaxInt32, JoinBudget: math.MaxInt32, Seed: 1}},
		{"join budget over limit", Params{Duration: 5, JoinBudget: constants.MaxJoinBudget + 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.p.Save = true
			if _, err := r.Execute(ctx, tt.p); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Execute() error = %v, want ErrInvalidParams", err)
			}
		})
	}

	runs, _ := r.Store().ListRuns(ctx, 0)
	if len(runs) != 0 {
		t.Errorf("%d runs saved from invalid params", len(runs))
	}
}

func TestExecute_Cancelled(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Execute(ctx, Params{Duration: 10, Seed: 1, Save: true}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
	runs, _ := r.Store().ListRuns(context.Background(), 0)
	if len(runs) != 0 {
		t.Errorf("cancelled run was saved")
	}
}

func TestExecute_AppliesRetention(t *testing.T) {
	r := newTestRunner(t, func(c *Config) {
		c.Settings.Storage.Retention.MaxCount = 2
	})
	ctx := context.Background()

	var pruned int
	for i := range 4 {
		res, err := r.Execute(ctx, Params{Duration: 3, Seed: uint64(i + 1), Save: true})
		if err != nil {
			t.Fatal(err)
		}
		pruned += len(res.Pruned)
	}

	logs, err := eventlog.ListLogs(r.logDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Errorf("event logs = %d, want 2", len(logs))
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2", pruned)
	}
}

func TestVerify_ReplayMatchesStore(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	res, err := r.Execute(ctx, Params{Duration: 40, JoinBudget: 6, Seed: 11, Save: true})
	if err != nil {
		t.Fatal(err)
	}

	v, err := r.Verify(ctx, res.Run.ID)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !v.Matches {
		t.Errorf("Verify() mismatches: %v", v.Mismatches)
	}
	if v.Events != res.Run.TotalEvents {
		t.Errorf("Events = %d, want %d", v.Events, res.Run.TotalEvents)
	}
}

func TestVerify_DetectsTamperedSamples(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	res, err := r.Execute(ctx, Params{Duration: 10, JoinBudget: 2, Seed: 5, Save: true})
	if err != nil {
		t.Fatal(err)
	}

	// Store a copy of the run whose samples were altered
	run := *res.Run
	run.ID = "tampered"
	samples, _ := r.Store().Samples(ctx, res.Run.ID)
	samples[0].Balance += 0.1
	if err := r.Store().SaveRun(ctx, &run, samples); err != nil {
		t.Fatal(err)
	}

	v, err := r.Verify(ctx, "tampered")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if v.Matches {
		t.Error("Verify() matched altered samples")
	}
}

func TestVerifyAll(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	var saved []*store.Run
	for seed := range uint64(3) {
		res, err := r.Execute(ctx, Params{Duration: 12, JoinBudget: 3, Seed: seed + 1, Save: true})
		if err != nil {
			t.Fatal(err)
		}
		saved = append(saved, res.Run)
	}

	// One log pruned, one run never had a log, one copy with altered samples
	if err := os.Remove(saved[0].EventLog); err != nil {
		t.Fatal(err)
	}
	if err := r.Store().SaveRun(ctx, &store.Run{ID: "no-log", StartedAt: fixedTime}, nil); err != nil {
		t.Fatal(err)
	}
	tampered := *saved[1]
	tampered.ID = "tampered"
	samples, _ := r.Store().Samples(ctx, saved[1].ID)
	samples[len(samples)-1].Coherence -= 0.05
	if err := r.Store().SaveRun(ctx, &tampered, samples); err != nil {
		t.Fatal(err)
	}

	rep, err := r.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll() error = %v", err)
	}
	if len(rep.Runs) != 3 {
		t.Errorf("verified %d runs, want 3", len(rep.Runs))
	}
	if rep.Failed != 1 {
		t.Errorf("Failed = %d, want 1", rep.Failed)
	}

	skipped := map[string]bool{}
	for _, id := range rep.Skipped {
		skipped[id] = true
	}
	if len(skipped) != 2 || !skipped["no-log"] || !skipped[saved[0].ID] {
		t.Errorf("Skipped = %v, want no-log and %s", rep.Skipped, saved[0].ID)
	}
}

func TestVerifyAll_NoStore(t *testing.T) {
	r := newTestRunner(t, func(c *Config) { c.Store = nil })

	rep, err := r.VerifyAll(context.Background())
	if err != nil {
		t.Fatalf("VerifyAll() error = %v", err)
	}
	if len(rep.Runs) != 0 || len(rep.Skipped) != 0 {
		t.Errorf("VerifyAll() = %+v, want empty", rep)
	}
}

func TestReport_RejectsLogOutsideDir(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	res, err := r.Execute(ctx, Params{Duration: 8, JoinBudget: 2, Seed: 3, Save: true})
	if err != nil {
		t.Fatal(err)
	}

	// A readable log from another project, recorded against a stored run
	outside := filepath.Join(t.TempDir(), "elsewhere"+eventlog.Ext)
	if err := eventlog.Save(outside, res.Report.Events); err != nil {
		t.Fatal(err)
	}
	run := *res.Run
	run.ID = "foreign"
	run.EventLog = outside
	samples, _ := r.Store().Samples(ctx, res.Run.ID)
	if err := r.Store().SaveRun(ctx, &run, samples); err != nil {
		t.Fatal(err)
	}

	stored, err := r.Store().GetRun(ctx, "foreign")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Report(ctx, stored); err == nil || !strings.Contains(err.Error(), "refusing to read event log") {
		t.Errorf("Report() error = %v, want refusal", err)
	}
	if _, err := r.Verify(ctx, "foreign"); err == nil || !strings.Contains(err.Error(), "refusing to read event log") {
		t.Errorf("Verify() error = %v, want refusal", err)
	}
}

func TestReport_StepsFromStoredRun(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	res, err := r.Execute(ctx, Params{Duration: 30, JoinBudget: 4, Seed: 9, Save: true})
	if err != nil {
		t.Fatal(err)
	}

	// Drop the events of the last active step, as if it had been quiet
	last := 0
	for _, e := range res.Report.Events {
		last = max(last, e.Metadata["step"].(int))
	}
	var kept []models.Event
	for _, e := range res.Report.Events {
		if e.Metadata["step"].(int) < last {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(res.Report.Events) {
		t.Fatal("run emitted no events to drop")
	}

	run := *res.Run
	run.ID = "quiet-tail"
	run.EventLog = eventlog.Path(r.logDir, run.ID)
	if err := eventlog.Save(run.EventLog, kept); err != nil {
		t.Fatal(err)
	}

	replayed, err := eventlog.Replay(ctx, run.EventLog, r.Options())
	if err != nil {
		t.Fatal(err)
	}
	if replayed.Steps >= run.Steps {
		t.Fatalf("replayed Steps = %d, want fewer than %d", replayed.Steps, run.Steps)
	}

	report, err := r.Report(ctx, &run)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if report.Steps != run.Steps {
		t.Errorf("Report().Steps = %d, want stored %d", report.Steps, run.Steps)
	}
}

// failingStore accepts reads but rejects every save.
type failingStore struct {
	*store.MemoryStore
}

func (failingStore) SaveRun(context.Context, *store.Run, []store.Sample) error {
	return errors.New("database is locked")
}

func TestExecute_SaveFailureRemovesEventLog(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "runs")
	r := newTestRunner(t, func(c *Config) {
		c.Store = failingStore{store.NewMemoryStore()}
		c.EventLogDir = logDir
	})

	_, err := r.Execute(context.Background(), Params{Duration: 10, JoinBudget: 2, Seed: 4, Save: true})
	if err == nil || !strings.Contains(err.Error(), "failed to save run") {
		t.Fatalf("Execute() error = %v, want save failure", err)
	}

	logs, err := filepath.Glob(filepath.Join(logDir, "*"+eventlog.Ext))
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Errorf("orphaned event logs left behind: %v", logs)
	}
}

func TestReport_NoEventLog(t *testing.T) {
	r := newTestRunner(t, nil)

	_, err := r.Report(context.Background(), &store.Run{ID: "x"})
	if !errors.Is(err, ErrNoEventLog) {
		t.Fatalf("Report() error = %v, want ErrNoEventLog", err)
	}
}

func TestLatest(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	if _, err := r.Latest(ctx); !errors.Is(err, store.ErrRunNotFound) {
		t.Fatalf("Latest() on empty store error = %v, want ErrRunNotFound", err)
	}

	res, err := r.Execute(ctx, Params{Duration: 3, Seed: 1, Save: true})
	if err != nil {
		t.Fatal(err)
	}
	latest, err := r.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != res.Run.ID {
		t.Errorf("Latest() = %s, want %s", latest.ID, res.Run.ID)
	}
}

func TestSnapshotSource(t *testing.T) {
	tests := []struct {
		name    string
		snap    config.SnapshotConfig
		wantNil bool
		wantCmd bool
	}{
		{"none", config.SnapshotConfig{}, true, false},
		{"file", config.SnapshotConfig{File: "genesis.json"}, false, false},
		{"command wins", config.SnapshotConfig{Command: "status --json", File: "genesis.json"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(t, func(c *Config) { c.Settings.Snapshot = tt.snap })
			src := r.SnapshotSource()
			if (src == nil) != tt.wantNil {
				t.Fatalf("SnapshotSource() = %v, wantNil %v", src, tt.wantNil)
			}
			if tt.wantNil {
				return
			}
			_, isCmd := src.(genesis.CommandSource)
			if isCmd != tt.wantCmd {
				t.Errorf("SnapshotSource() = %T, want command %v", src, tt.wantCmd)
			}
			if fs, ok := src.(genesis.FileSource); ok && fs.Path != filepath.Join(r.root, "genesis.json") {
				t.Errorf("FileSource.Path = %q, want it resolved against root", fs.Path)
			}
		})
	}
}

func TestSynthesize(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	snapshot := filepath.Join(r.root, "genesis.json")
	content := `{"genesis": {"members": 3, "rules": 2, "stuff": 4, "complete": false}}`
	if err := os.WriteFile(snapshot, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	r.cfg.Snapshot.File = "genesis.json"

	t.Run("no run", func(t *testing.T) {
		syn := r.Synthesize(ctx, nil)
		if syn.Assessment.Phase != genesis.PhaseConvergence {
			t.Errorf("Phase = %s, want %s", syn.Assessment.Phase, genesis.PhaseConvergence)
		}
		if len(syn.Recommendations) == 0 {
			t.Error("expected recommendations")
		}
	})

	t.Run("with event log", func(t *testing.T) {
		res, err := r.Execute(ctx, Params{Duration: 25, JoinBudget: 4, Seed: 2, Save: true})
		if err != nil {
			t.Fatal(err)
		}
		syn := r.Synthesize(ctx, res.Run)
		if syn.Insights.Diversity != res.Report.FinalDiversity {
			t.Errorf("Diversity = %f, want %f", syn.Insights.Diversity, res.Report.FinalDiversity)
		}
		if syn.Insights.StagnationRisk != res.Report.StagnationRisk() {
			t.Errorf("StagnationRisk = %f, want %f", syn.Insights.StagnationRisk, res.Report.StagnationRisk())
		}
	})

	t.Run("stored finals only", func(t *testing.T) {
		run := &store.Run{ID: "nolog", FinalDiversity: 0.9, MeanBalance: 0.1}
		syn := r.Synthesize(ctx, run)
		if syn.Insights.Emergence != 0.1 {
			t.Errorf("Emergence = %f, want 0.1", syn.Insights.Emergence)
		}
		if syn.Insights.StagnationRisk != 0 {
			t.Errorf("StagnationRisk = %f, want 0 without events", syn.Insights.StagnationRisk)
		}
	})
}

func TestOpen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	t.Run("storage enabled", func(t *testing.T) {
		r, err := Open(config.Default(), root, constants.ScopeLocal, nil)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer r.Close()

		if _, ok := r.Store().(*store.SQLiteRunStore); !ok {
			t.Errorf("Store() = %T, want *store.SQLiteRunStore", r.Store())
		}
		if want := filepath.Join(root, constants.EvosimDirName, "runs"); r.logDir != want {
			t.Errorf("logDir = %q, want %q", r.logDir, want)
		}

		res, err := r.Execute(ctx, Params{Duration: 4, Seed: 1, Save: true})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(root, constants.EvosimDirName, "evosim.db")); err != nil {
			t.Errorf("database not created: %v", err)
		}
		if _, err := r.Verify(ctx, res.Run.ID); err != nil {
			t.Errorf("Verify() error = %v", err)
		}
	})

	t.Run("storage disabled", func(t *testing.T) {
		settings := config.Default()
		settings.Storage.Enabled = false
		r, err := Open(settings, t.TempDir(), constants.ScopeLocal, nil)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer r.Close()

		if _, ok := r.Store().(*store.MemoryStore); !ok {
			t.Errorf("Store() = %T, want *store.MemoryStore", r.Store())
		}
		if r.logDir != "" {
			t.Errorf("logDir = %q, want empty", r.logDir)
		}
	})
}
