package runner

import (
	"fmt"
	"log/slog"

	"github.com/nvandessel/evosim/internal/config"
	"github.com/nvandessel/evosim/internal/constants"
	"github.com/nvandessel/evosim/internal/logging"
	"github.com/nvandessel/evosim/internal/store"
)

// Open builds a Runner over the state directory of scope. With storage
// enabled runs go to the SQLite database and event logs next to it;
// otherwise runs are kept in memory and no event logs are written.
func Open(settings *config.EvosimConfig, root string, scope constants.Scope, logger *slog.Logger) (*Runner, error) {
	if settings == nil {
		settings = config.Default()
	}
	stateDir, err := scope.Dir(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s state directory: %w", scope, err)
	}

	var (
		runStore store.RunStore
		logDir   string
	)
	if settings.Storage.Enabled {
		s, err := store.NewSQLiteRunStore(store.ResolvePath(stateDir, settings.Storage.Database))
		if err != nil {
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		runStore = s
		if settings.Storage.EventLogDir != "" {
			logDir = store.ResolvePath(stateDir, settings.Storage.EventLogDir)
		}
	} else {
		runStore = store.NewMemoryStore()
	}

	return New(Config{
		Settings:    settings,
		Root:        root,
		Store:       runStore,
		EventLogDir: logDir,
		Logger:      logger,
		Decisions:   logging.NewDecisionLogger(stateDir, settings.Logging.Level),
	}), nil
}

// Close releases the store and the decision log.
func (r *Runner) Close() error {
	r.decision.Close()
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
