// Package runstore persists simulation runs and their action trails to
// SQLite, one row per completed decision cycle.
package runstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
	_ "modernc.org/sqlite"
)

// Run is one persisted simulation run.
type Run struct {
	ID          string
	Persona     string
	WorkerID    string
	Status      domain.RunStatus
	Compression float64
	SimStart    time.Time
	SimEnd      time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Total       int
	Failed      int
}

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun records a new run in the running state.
func (s *Store) CreateRun(run Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, persona, worker_id, status, compression, sim_start, sim_end, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Persona,
		run.WorkerID,
		string(domain.RunRunning),
		run.Compression,
		run.SimStart,
		run.SimEnd,
		time.Now(),
	)
	return err
}

// FinishRun seals a run with its terminal status and action counters.
func (s *Store) FinishRun(id string, status domain.RunStatus, total, failed int) error {
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, finished_at = ?, actions_total = ?, actions_failed = ?
		WHERE id = ?
	`, string(status), time.Now(), total, failed, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// AppendAction records one completed decision cycle for a run.
func (s *Store) AppendAction(runID string, e domain.HistoryEntry) error {
	var metadata string
	if len(e.Result.Metadata) > 0 {
		data, err := json.Marshal(e.Result.Metadata)
		if err != nil {
			return err
		}
		metadata = string(data)
	}

	_, err := s.db.Exec(`
		INSERT INTO actions (run_id, request_id, sim_time, kind, target, duration_min, source, reason, success, error, duration_ms, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		e.Request.ID,
		e.SimTime,
		string(e.Request.Kind),
		e.Request.Target,
		e.Request.DurationMin,
		e.Request.Source,
		e.Request.Reason,
		e.Result.Success,
		e.Result.Error,
		e.Result.Duration.Milliseconds(),
		metadata,
	)
	return err
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, persona, worker_id, status, compression, sim_start, sim_end, started_at, finished_at, actions_total, actions_failed
		FROM runs WHERE id = ?
	`, id)
	return scanRun(row.Scan)
}

// ListOptions specifies filters for listing runs
type ListOptions struct {
	Persona string
	Status  domain.RunStatus
	Limit   int
}

// ListRuns returns runs matching the given options, newest first.
func (s *Store) ListRuns(opts ListOptions) ([]*Run, error) {
	query := `SELECT id, persona, worker_id, status, compression, sim_start, sim_end, started_at, finished_at, actions_total, actions_failed FROM runs WHERE 1=1`
	var args []interface{}

	if opts.Persona != "" {
		query += " AND persona = ?"
		args = append(args, opts.Persona)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// ListActions returns a run's recorded cycles in simulated-time order.
func (s *Store) ListActions(runID string) ([]domain.HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT request_id, sim_time, kind, target, duration_min, source, reason, success, error, duration_ms, metadata
		FROM actions WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var kind string
		var target, source, reason, errMsg, metadata sql.NullString
		var durationMs int64

		err := rows.Scan(&e.Request.ID, &e.SimTime, &kind, &target, &e.Request.DurationMin,
			&source, &reason, &e.Result.Success, &errMsg, &durationMs, &metadata)
		if err != nil {
			return nil, err
		}

		e.Request.Kind = domain.ActionKind(kind)
		e.Request.Target = target.String
		e.Request.Source = source.String
		e.Request.Reason = reason.String
		e.Request.RequestedAt = e.SimTime
		e.Result.RequestID = e.Request.ID
		e.Result.Error = errMsg.String
		e.Result.Duration = time.Duration(durationMs) * time.Millisecond

		if metadata.Valid && metadata.String != "" {
			var m map[string]string
			if err := json.Unmarshal([]byte(metadata.String), &m); err != nil {
				return nil, err
			}
			e.Result.Metadata = m
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func scanRun(scan func(dest ...interface{}) error) (*Run, error) {
	var run Run
	var status string
	var finishedAt sql.NullTime

	err := scan(&run.ID, &run.Persona, &run.WorkerID, &status, &run.Compression,
		&run.SimStart, &run.SimEnd, &run.StartedAt, &finishedAt, &run.Total, &run.Failed)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}
