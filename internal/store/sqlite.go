package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/evosim/internal/community"
	"github.com/nvandessel/evosim/internal/models"
)

// timeFormat is fixed width so started_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRunStore implements RunStore using SQLite for persistence.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRunStore opens (or creates) the run database at dbPath,
// creating parent directories as needed.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	if err := EnsureDir(filepath.Dir(dbPath)); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string { return s.dbPath }

// SaveRun stores a run and its samples in one transaction.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, run *Run, samples []Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	counts, err := json.Marshal(run.EventCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal event counts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, duration, join_budget, seed,
			steps, total_events, event_counts,
			final_coherence, final_diversity, final_balance, mean_balance,
			healthy_percent, trajectory, event_log
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(timeFormat), run.Duration, run.JoinBudget, int64(run.Seed),
		run.Steps, run.TotalEvents, string(counts),
		run.FinalCoherence, run.FinalDiversity, run.FinalBalance, run.MeanBalance,
		run.HealthyPercent, string(run.Trajectory), nullString(run.EventLog),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_samples (run_id, idx, coherence, diversity, balance) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, smp := range samples {
		if _, err := stmt.ExecContext(ctx, run.ID, smp.Index, smp.Coherence, smp.Diversity, smp.Balance); err != nil {
			return fmt.Errorf("failed to insert sample %d: %w", smp.Index, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, started_at, duration, join_budget, seed,
	steps, total_events, event_counts,
	final_coherence, final_diversity, final_balance, mean_balance,
	healthy_percent, trajectory, event_log`

// GetRun retrieves a run by ID.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Samples returns a run's state history in index order.
func (s *SQLiteRunStore) Samples(ctx context.Context, id string) ([]Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, coherence, diversity, balance FROM run_samples WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.Index, &smp.Coherence, &smp.Diversity, &smp.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		startedAt  string
		seed       int64
		counts     sql.NullString
		trajectory string
		eventLog   sql.NullString
	)
	err := row.Scan(
		&run.ID, &startedAt, &run.Duration, &run.JoinBudget, &seed,
		&run.Steps, &run.TotalEvents, &counts,
		&run.FinalCoherence, &run.FinalDiversity, &run.FinalBalance, &run.MeanBalance,
		&run.HealthyPercent, &trajectory, &eventLog,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("run %s: invalid started_at %q: %w", run.ID, startedAt, err)
	}
	run.Seed = uint64(seed)
	run.Trajectory = community.Trajectory(trajectory)
	run.EventLog = eventLog.String

	run.EventCounts = make(map[models.EventKind]int)
	if counts.Valid && counts.String != "" {
		if err := json.Unmarshal([]byte(counts.String), &run.EventCounts); err != nil {
			return nil, fmt.Errorf("run %s: invalid event counts: %w", run.ID, err)
		}
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
