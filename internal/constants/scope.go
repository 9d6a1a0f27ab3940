package constants

import (
	"os"
	"path/filepath"
)

// Scope selects which state directory a command reads from or writes to:
// the project-local .evosim or the user-level ~/.evosim.
type Scope string

const (
	// ScopeLocal stores runs under <root>/.evosim
	ScopeLocal Scope = "local"

	// ScopeGlobal stores runs under ~/.evosim
	ScopeGlobal Scope = "global"
)

// Valid returns true if the scope is a recognized value.
func (s Scope) Valid() bool {
	switch s {
	case ScopeLocal, ScopeGlobal:
		return true
	}
	return false
}

// String returns the string representation of the scope.
func (s Scope) String() string {
	return string(s)
}

// Dir resolves the state directory for this scope. root is only consulted
// for ScopeLocal; an invalid scope falls back to local.
func (s Scope) Dir(root string) (string, error) {
	if s == ScopeGlobal {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, EvosimDirName), nil
	}
	return filepath.Join(root, EvosimDirName), nil
}
