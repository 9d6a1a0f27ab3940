package genesis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/nvandessel/evosim/internal/sanitize"
)

// Source provides the current community state.
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context) (*Snapshot, error)

// Snapshot calls f.
func (f SourceFunc) Snapshot(ctx context.Context) (*Snapshot, error) { return f(ctx) }

// CommandSource runs a status command that prints a JSON snapshot.
// The command line is split on whitespace; no shell is involved.
type CommandSource struct {
	Command string
	Dir     string
	Timeout time.Duration
}

// Snapshot runs the command and parses its standard output.
func (c CommandSource) Snapshot(ctx context.Context) (*Snapshot, error) {
	args := strings.Fields(c.Command)
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no status command configured", ErrNoSnapshot)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s timed out after %v", ErrNoSnapshot, args[0], c.Timeout)
		}
		msg := sanitize.Diagnostic(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%w: %s: %v: %s", ErrNoSnapshot, args[0], err, msg)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNoSnapshot, args[0], err)
	}
	return ParseSnapshot(stdout.Bytes())
}

// FileSource reads a JSON snapshot from disk.
type FileSource struct {
	Path string
}

// Snapshot reads and parses the file.
func (f FileSource) Snapshot(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSnapshot, err)
	}
	return ParseSnapshot(data)
}
