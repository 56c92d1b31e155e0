/*
Package sqlite provides the SQLite-backed implementation of the run store.

PURPOSE:
  Persists finished pipeline runs so a restart can list and reload prior
  results without recomputing the pipeline. Implements store.RunStore.

KEY TABLES:
  runs:           One row per pipeline invocation (summary + detector config)
  run_records:    The scored analysis rows of a run
  run_quarantine: Region values held out by the quarantine policy

  Child tables cascade on run deletion; the DSN enables foreign keys so
  the cascade actually fires.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety around the handle. SaveRun writes
  all three tables inside one database transaction.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/sentinel.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - store/store.go: Interface and record types
  - store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/haldar/aadhaar-sentinel/store"
)

const dayFormat = "2006-01-02"

// Store implements store.RunStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	st := &Store{db: db}
	if err := st.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return st, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Runs (one row per pipeline invocation)
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		data_dir TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		analysis_rows INTEGER NOT NULL,
		scored_rows INTEGER NOT NULL,
		flagged_rows INTEGER NOT NULL,
		trees INTEGER NOT NULL,
		contamination REAL NOT NULL,
		seed INTEGER NOT NULL,
		stats_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at
		ON runs(started_at DESC);

	-- Scored analysis rows, in pipeline output order
	CREATE TABLE IF NOT EXISTS run_records (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		date TEXT NOT NULL,
		state TEXT NOT NULL,
		district TEXT NOT NULL,
		pincode TEXT NOT NULL,
		attrs_json TEXT NOT NULL DEFAULT '',
		counts_json TEXT NOT NULL,
		score REAL NOT NULL,
		flagged BOOLEAN NOT NULL,
		reason TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_run_records_flagged
		ON run_records(run_id, flagged);

	-- Region values held out by the quarantine policy
	CREATE TABLE IF NOT EXISTS run_quarantine (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		value TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		PRIMARY KEY (run_id, value)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUN STORE (store.RunStore interface)
// =============================================================================

// SaveRun persists a run with its records and quarantined values in one
// database transaction. Saving an existing id replaces the run wholesale.
func (s *Store) SaveRun(ctx context.Context, run store.Run, records []store.Record, quarantined []store.Quarantine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode run stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, data_dir, started_at, finished_at, analysis_rows,
			scored_rows, flagged_rows, trees, contamination, seed, stats_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data_dir = excluded.data_dir,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			analysis_rows = excluded.analysis_rows,
			scored_rows = excluded.scored_rows,
			flagged_rows = excluded.flagged_rows,
			trees = excluded.trees,
			contamination = excluded.contamination,
			seed = excluded.seed,
			stats_json = excluded.stats_json
	`,
		run.ID, run.DataDir,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339),
		run.AnalysisRows, run.ScoredRows, run.FlaggedRows,
		run.Trees, run.Contamination, run.Seed,
		string(statsJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	// Replacing a run replaces its children too.
	if _, err := tx.ExecContext(ctx, "DELETE FROM run_records WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to clear run records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM run_quarantine WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to clear run quarantine: %w", err)
	}

	for seq, rec := range records {
		countsJSON, err := json.Marshal(rec.Counts)
		if err != nil {
			return fmt.Errorf("failed to encode record counts: %w", err)
		}
		attrsJSON := ""
		if len(rec.Attrs) > 0 {
			b, err := json.Marshal(rec.Attrs)
			if err != nil {
				return fmt.Errorf("failed to encode record attributes: %w", err)
			}
			attrsJSON = string(b)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_records (run_id, seq, date, state, district, pincode,
				attrs_json, counts_json, score, flagged, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID, seq, rec.Date.Format(dayFormat),
			rec.State, rec.District, rec.Pincode,
			attrsJSON, string(countsJSON), rec.Score, rec.Flagged, rec.Reason,
		)
		if err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}
	}

	for _, q := range quarantined {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_quarantine (run_id, value, row_count)
			VALUES (?, ?, ?)
		`, run.ID, q.Value, q.Rows)
		if err != nil {
			return fmt.Errorf("failed to save quarantine value: %w", err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run summary by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, data_dir, started_at, finished_at, analysis_rows,
			scored_rows, flagged_rows, trees, contamination, seed, stats_json
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data_dir, started_at, finished_at, analysis_rows,
			scored_rows, flagged_rows, trees, contamination, seed, stats_json
		FROM runs
		ORDER BY started_at DESC, created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*store.Run, error) {
	var (
		run       store.Run
		startedAt string
		finished  string
		statsJSON string
	)

	err := row.Scan(
		&run.ID, &run.DataDir, &startedAt, &finished, &run.AnalysisRows,
		&run.ScoredRows, &run.FlaggedRows, &run.Trees, &run.Contamination,
		&run.Seed, &statsJSON,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	run.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	if statsJSON != "" && statsJSON != "null" {
		if err := json.Unmarshal([]byte(statsJSON), &run.Stats); err != nil {
			return nil, fmt.Errorf("failed to decode run stats: %w", err)
		}
	}
	return &run, nil
}

// =============================================================================
// RECORDS AND QUARANTINE
// =============================================================================

// GetRecords returns a run's scored rows in saved order.
func (s *Store) GetRecords(ctx context.Context, runID string) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, state, district, pincode, attrs_json, counts_json, score, flagged, reason
		FROM run_records
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []store.Record
	for rows.Next() {
		var (
			rec        store.Record
			date       string
			attrsJSON  string
			countsJSON string
		)
		if err := rows.Scan(&date, &rec.State, &rec.District, &rec.Pincode,
			&attrsJSON, &countsJSON, &rec.Score, &rec.Flagged, &rec.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Date, _ = time.Parse(dayFormat, date)
		if attrsJSON != "" {
			if err := json.Unmarshal([]byte(attrsJSON), &rec.Attrs); err != nil {
				return nil, fmt.Errorf("failed to decode record attributes: %w", err)
			}
		}
		if err := json.Unmarshal([]byte(countsJSON), &rec.Counts); err != nil {
			return nil, fmt.Errorf("failed to decode record counts: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetQuarantine returns a run's held-out region values.
func (s *Store) GetQuarantine(ctx context.Context, runID string) ([]store.Quarantine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT value, row_count
		FROM run_quarantine
		WHERE run_id = ?
		ORDER BY value ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quarantine: %w", err)
	}
	defer rows.Close()

	var quarantined []store.Quarantine
	for rows.Next() {
		var q store.Quarantine
		if err := rows.Scan(&q.Value, &q.Rows); err != nil {
			return nil, fmt.Errorf("failed to scan quarantine value: %w", err)
		}
		quarantined = append(quarantined, q)
	}
	return quarantined, rows.Err()
}

func (s *Store) requireRun(ctx context.Context, id string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return store.ErrRunNotFound
	}
	return nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// DeleteRun removes a run; foreign keys cascade to its children.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrRunNotFound
	}
	return nil
}

// Prune deletes all but the newest keep runs, returning the number removed.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM runs
		ORDER BY started_at DESC, created_at DESC
		LIMIT -1 OFFSET ?
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to query stale runs: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range stale {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id); err != nil {
			return 0, fmt.Errorf("failed to prune run: %w", err)
		}
	}
	return len(stale), nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"run_records", "run_quarantine", "runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
