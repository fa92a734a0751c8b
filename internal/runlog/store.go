// Package runlog keeps a local SQLite history of training runs.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Run struct {
	ID        string
	CreatedAt time.Time
	Dataset   string
	Algorithm string
	NTrees    int
	Seed      int64
	TrainSize int
	TestSize  int
	Accuracy  float64
	F1        float64
	Artifact  string
	Duration  time.Duration
}

type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens the run history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, dbPath: path}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		dataset TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		n_trees INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		train_size INTEGER NOT NULL,
		test_size INTEGER NOT NULL,
		accuracy REAL NOT NULL,
		f1 REAL NOT NULL,
		artifact TEXT NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`)
	return err
}

// Record stores run, assigning an ID and timestamp when they are unset.
func (s *Store) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, dataset, algorithm, n_trees, seed,
			train_size, test_size, accuracy, f1, artifact, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixNano(), run.Dataset, run.Algorithm, run.NTrees, run.Seed,
		run.TrainSize, run.TestSize, run.Accuracy, run.F1, run.Artifact, run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, dataset, algorithm, n_trees, seed,
			train_size, test_size, accuracy, f1, artifact, duration_ms
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var created, durationMs int64
		if err := rows.Scan(&r.ID, &created, &r.Dataset, &r.Algorithm, &r.NTrees, &r.Seed,
			&r.TrainSize, &r.TestSize, &r.Accuracy, &r.F1, &r.Artifact, &durationMs); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, created)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
