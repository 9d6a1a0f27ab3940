package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolvePath resolves p against the evosim directory unless it is absolute.
func ResolvePath(evosimDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(evosimDir, p)
}

// EnsureDir creates dir if it doesn't exist.
// Returns nil if the directory already exists or was successfully created.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
