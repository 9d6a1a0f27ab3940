package eventlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/nvandessel/evosim/internal/community"
	"github.com/nvandessel/evosim/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fixedOptions() community.Options {
	opts := community.DefaultOptions()
	opts.Clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return opts
}

func TestSaveAndRead(t *testing.T) {
	path := Path(filepath.Join(t.TempDir(), "runs"), "run-1")

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var events []models.Event
	for _, kind := range []models.EventKind{models.EventKindFounding, models.EventKindJoin, models.EventKindInnovation} {
		e, err := models.NewEvent(ts, kind, "agent-1", string(kind), 0.1, -0.1, map[string]any{"step": 2})
		if err != nil {
			t.Fatalf("NewEvent() error = %v", err)
		}
		events = append(events, e)
	}

	if err := Save(path, events); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("Read() returned %d events, want %d", len(got), len(events))
	}
	for i := range events {
		if got[i].Kind != events[i].Kind || got[i].AgentID != events[i].AgentID {
			t.Errorf("event %d = %+v, want %+v", i, got[i], events[i])
		}
		if !got[i].Timestamp.Equal(events[i].Timestamp) {
			t.Errorf("event %d timestamp = %v, want %v", i, got[i].Timestamp, events[i].Timestamp)
		}
	}
}

func TestWriter_CloseIsIdempotent(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "a"+Ext))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	e, _ := models.NewEvent(time.Now(), models.EventKindJoin, "", "", 0, 0, nil)
	if err := w.Write(e); err == nil {
		t.Error("Write() after Close() should fail")
	}
}

func TestRead_Missing(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope"+Ext)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read() error = %v, want ErrNotExist", err)
	}
}

func TestRead_NotCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain"+Ext)
	if err := os.WriteFile(path, []byte(`{"kind":"join"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("Read() of uncompressed file should fail")
	}
}

func TestReplay_ReproducesHistories(t *testing.T) {
	sim := community.New(community.NewRand(11), fixedOptions())
	orig, err := sim.Run(context.Background(), 30, 6)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	path := Path(t.TempDir(), "replay")
	if err := Save(path, orig.Events); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Replay(context.Background(), path, fixedOptions())
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if diff := cmp.Diff(orig.Coherence, got.Coherence); diff != "" {
		t.Errorf("coherence history mismatch (-orig +replay):\n%s", diff)
	}
	if diff := cmp.Diff(orig.Diversity, got.Diversity); diff != "" {
		t.Errorf("diversity history mismatch (-orig +replay):\n%s", diff)
	}
	if diff := cmp.Diff(orig.Balance, got.Balance); diff != "" {
		t.Errorf("balance history mismatch (-orig +replay):\n%s", diff)
	}
	if diff := cmp.Diff(orig.EventCounts, got.EventCounts); diff != "" {
		t.Errorf("event counts mismatch (-orig +replay):\n%s", diff)
	}
	if got.Trajectory != orig.Trajectory {
		t.Errorf("Trajectory = %q, want %q", got.Trajectory, orig.Trajectory)
	}
	if got.Steps > orig.Steps {
		t.Errorf("replayed Steps = %d exceeds original %d", got.Steps, orig.Steps)
	}
}

func TestReplayEvents_RejectsUnknownKind(t *testing.T) {
	events := []models.Event{{Kind: models.EventKind("schism")}}
	if _, err := ReplayEvents(context.Background(), events, fixedOptions()); !errors.Is(err, models.ErrUnknownKind) {
		t.Errorf("ReplayEvents() error = %v, want ErrUnknownKind", err)
	}
}

func TestReplayEvents_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, _ := models.NewEvent(time.Now(), models.EventKindFounding, "", "", 0.4, 0.2, nil)
	r, err := ReplayEvents(ctx, []models.Event{e}, fixedOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ReplayEvents() error = %v, want context.Canceled", err)
	}
	if r == nil || len(r.Events) != 0 {
		t.Errorf("expected empty partial report, got %+v", r)
	}
}
