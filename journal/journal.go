package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when a run ID has no journal entry.
var ErrRunNotFound = errors.New("run not found")

// Run is one launch of the application.
type Run struct {
	ID         string         `db:"id"`
	App        string         `db:"app"`
	Port       int            `db:"port"`
	StartedAt  int64          `db:"started_at"`
	FinishedAt sql.NullInt64  `db:"finished_at"`
	ExitCode   sql.NullInt64  `db:"exit_code"`
	Error      sql.NullString `db:"error"`
}

// Finished reports whether the run has recorded its exit.
func (r Run) Finished() bool {
	return r.FinishedAt.Valid
}

// Transition is one lifecycle state change of a run.
type Transition struct {
	ID        string `db:"id"`
	RunID     string `db:"run_id"`
	FromState string `db:"from_state"`
	ToState   string `db:"to_state"`
	Timestamp int64  `db:"timestamp"`
}

// Journal records runs and their state transitions in sqlite.
type Journal struct {
	db *sqlx.DB
}

// Open connects to the sqlite database at path and initializes its schema.
func Open(path string) (*Journal, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	j, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// New creates a Journal on an open database.
func New(db *sqlx.DB) (*Journal, error) {
	if err := DBInit(db); err != nil {
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// DBInit creates the journal tables.
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		app TEXT NOT NULL,
		port INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		exit_code INTEGER,
		error TEXT
	)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS transitions (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id),
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_transitions_run_id ON transitions(run_id)`)
	return err
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordRun inserts a new run.
func (j *Journal) RecordRun(runID, app string) error {
	_, err := j.db.Exec(
		"INSERT INTO runs (id, app, started_at) VALUES ($1, $2, $3)",
		runID, app, time.Now().UTC().UnixMilli())
	return err
}

// SetPort records the port selected for a run.
func (j *Journal) SetPort(runID string, port int) error {
	return j.updateRun("UPDATE runs SET port = $1 WHERE id = $2", port, runID)
}

// RecordTransition appends a state change to a run.
func (j *Journal) RecordTransition(runID, from, to string) error {
	_, err := j.db.Exec(
		"INSERT INTO transitions (id, run_id, from_state, to_state, timestamp) VALUES ($1, $2, $3, $4, $5)",
		uuid.New().String(), runID, from, to, time.Now().UTC().UnixMilli())
	return err
}

// FinishRun records the exit code and terminal error of a run. runErr may be nil.
func (j *Journal) FinishRun(runID string, exitCode int, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	return j.updateRun(
		"UPDATE runs SET finished_at = $1, exit_code = $2, error = $3 WHERE id = $4",
		time.Now().UTC().UnixMilli(), exitCode, errText, runID)
}

func (j *Journal) updateRun(query string, args ...any) error {
	result, err := j.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun returns a run by ID.
func (j *Journal) GetRun(runID string) (*Run, error) {
	var run Run
	err := j.db.Get(&run, "SELECT * FROM runs WHERE id = $1", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// RecentRuns returns the most recently started runs, newest first.
func (j *Journal) RecentRuns(limit int) ([]Run, error) {
	var runs []Run
	err := j.db.Select(&runs, "SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT $1", limit)
	return runs, err
}

// Transitions returns the state changes of a run in the order they happened.
func (j *Journal) Transitions(runID string) ([]Transition, error) {
	var transitions []Transition
	err := j.db.Select(&transitions,
		"SELECT * FROM transitions WHERE run_id = $1 ORDER BY timestamp, rowid", runID)
	return transitions, err
}

// DeleteOldRuns deletes runs started before olderThan ago, with their transitions.
func (j *Journal) DeleteOldRuns(olderThan time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-olderThan).UnixMilli()
	tx, err := j.db.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM transitions WHERE run_id IN (SELECT id FROM runs WHERE started_at < $1)", threshold); err != nil {
		return 0, err
	}
	result, err := tx.Exec("DELETE FROM runs WHERE started_at < $1", threshold)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
