// Package eventlog persists simulation event logs as zstd-compressed JSONL
// and replays them through a fresh simulator.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/nvandessel/evosim/internal/community"
	"github.com/nvandessel/evosim/internal/models"
)

// Ext is the file extension of a run's event log.
const Ext = ".jsonl.zst"

// maxLine bounds a single encoded event.
const maxLine = 8 * 1024 * 1024

// Path returns the event log path for a run inside dir.
func Path(dir, runID string) string {
	return filepath.Join(dir, runID+Ext)
}

// Writer appends events to a compressed JSONL file. A Writer is not safe
// for concurrent use; a run's events are written from one goroutine.
type Writer struct {
	path string
	f    *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// Create opens a new event log at path, creating parent directories.
// An existing file is truncated.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &Writer{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 64*1024),
	}, nil
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string { return w.path }

// Write appends one event as a JSON line.
func (w *Writer) Write(e models.Event) error {
	if w.w == nil {
		return fmt.Errorf("event log %s is closed", w.path)
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// WriteAll appends events in order.
func (w *Writer) WriteAll(events []models.Event) error {
	for i, e := range events {
		if err := w.Write(e); err != nil {
			return fmt.Errorf("writing event %d: %w", i, err)
		}
	}
	return nil
}

// Close flushes buffered events and closes the file. Close is idempotent.
func (w *Writer) Close() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
		w.w = nil
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	return err
}

// Save writes a complete event log in one call.
func Save(path string, events []models.Event) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	if err := w.WriteAll(events); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Read loads every event from a compressed event log.
func Read(path string) ([]models.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var events []models.Event
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e models.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s:%d: unmarshal: %w", filepath.Base(path), line, err)
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return events, nil
}

// Replay re-applies a recorded event log through a fresh simulator and
// returns the resulting report. Applying is deterministic, so the
// histories match those of the run that produced the log.
func Replay(ctx context.Context, path string, opts community.Options) (*community.Report, error) {
	events, err := Read(path)
	if err != nil {
		return nil, err
	}
	return ReplayEvents(ctx, events, opts)
}

// ReplayEvents applies events in order through a fresh simulator.
//
// The log does not record the run length, so the report's Steps is one
// past the last step that emitted an event. Steps at the end of a run that
// emitted nothing are not counted; callers holding the stored run should
// take Steps from it.
func ReplayEvents(ctx context.Context, events []models.Event, opts community.Options) (*community.Report, error) {
	// Apply never draws, so any source will do
	sim := community.New(community.NewRand(0), opts)

	steps := 0
	for i, e := range events {
		if err := ctx.Err(); err != nil {
			return community.NewReport(steps, sim.Events(), sim.State()), err
		}
		if err := sim.Apply(e); err != nil {
			return nil, fmt.Errorf("replaying event %d: %w", i, err)
		}
		if s, ok := stepOf(e); ok && s+1 > steps {
			steps = s + 1
		}
	}
	return community.NewReport(steps, sim.Events(), sim.State()), nil
}

// stepOf reads the step recorded in event metadata. Decoded JSON numbers
// arrive as float64.
func stepOf(e models.Event) (int, bool) {
	switch v := e.Metadata["step"].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
