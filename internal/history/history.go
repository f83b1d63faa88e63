// Package history records plan runs in a SQLite database so past rounds can be
// listed and inspected from the CLI.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/kingrea/chainexec/plan"
)

// Run statuses.
const (
	StatusRunning    = "running"
	StatusComplete   = "complete"
	StatusIncomplete = "incomplete"
)

// Run is one recorded round.
type Run struct {
	ID         string
	PlanID     string
	PlanName   string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      int
}

// Duration returns how long the run took, zero while it is still running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StepRecord is one recorded command.
type StepRecord struct {
	RunID      string
	Index      int
	Command    string
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int
	Error      string
	Stdout     string
	Stderr     string
}

// Failed reports whether the command returned an error.
func (s StepRecord) Failed() bool { return s.Error != "" }

// Store persists runs and their steps.
type Store struct {
	DB *sql.DB

	mu      sync.Mutex
	lastErr error
}

// Open creates (or reuses) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			plan_id TEXT,
			plan_name TEXT,
			status TEXT NOT NULL DEFAULT 'running',
			started_at TEXT NOT NULL,
			finished_at TEXT,
			steps INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			command TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			exit_code INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			stdout TEXT NOT NULL DEFAULT '',
			stderr TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, step)
		);`,
		`CREATE INDEX IF NOT EXISTS runs_started ON runs (started_at);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: migrate: %w", err)
		}
	}
	return &Store{DB: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Err returns the most recent error raised while recording events.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) record(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Attach records every round p executes from now on. The returned function
// detaches the store.
func (s *Store) Attach(p *plan.Plan, planID string) func() {
	name := p.Name()
	subs := []plan.Subscription{
		p.On(plan.EventStepStart, func(e plan.Event) {
			if e.Step == 0 {
				s.record(s.startRun(e, planID, name))
			}
			s.record(s.startStep(e))
		}),
		p.On(plan.EventStepEnd, func(e plan.Event) { s.record(s.endStep(e)) }),
		p.On(plan.EventComplete, func(e plan.Event) { s.record(s.setStatus(e.RunID, StatusComplete)) }),
		p.On(plan.EventFinish, func(e plan.Event) { s.record(s.finishRun(e)) }),
	}
	return func() {
		for _, sub := range subs {
			sub.Close()
		}
	}
}

func (s *Store) startRun(e plan.Event, planID, name string) error {
	_, err := s.DB.Exec(
		`INSERT OR IGNORE INTO runs (id, plan_id, plan_name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		e.RunID, planID, name, StatusRunning, formatTime(e.Time),
	)
	if err != nil {
		return fmt.Errorf("history: insert run %s: %w", e.RunID, err)
	}
	return nil
}

func (s *Store) startStep(e plan.Event) error {
	_, err := s.DB.Exec(
		`INSERT OR REPLACE INTO steps (run_id, step, command, started_at) VALUES (?, ?, ?, ?)`,
		e.RunID, e.Step, e.Command, formatTime(e.Time),
	)
	if err != nil {
		return fmt.Errorf("history: insert step %s/%d: %w", e.RunID, e.Step, err)
	}
	_, err = s.DB.Exec(`UPDATE runs SET steps = steps + 1 WHERE id = ?`, e.RunID)
	if err != nil {
		return fmt.Errorf("history: count step %s/%d: %w", e.RunID, e.Step, err)
	}
	return nil
}

func (s *Store) endStep(e plan.Event) error {
	exitCode := 0
	errText := ""
	if e.Err != nil {
		errText = e.Err.Error()
		var execErr *plan.ExecError
		if errors.As(e.Err, &execErr) {
			exitCode = execErr.ExitCode
		}
	}
	_, err := s.DB.Exec(
		`UPDATE steps SET finished_at = ?, exit_code = ?, error = ?, stdout = ?, stderr = ? WHERE run_id = ? AND step = ?`,
		formatTime(e.Time), exitCode, errText, e.Stdout, e.Stderr, e.RunID, e.Step,
	)
	if err != nil {
		return fmt.Errorf("history: update step %s/%d: %w", e.RunID, e.Step, err)
	}
	return nil
}

func (s *Store) setStatus(runID, status string) error {
	if _, err := s.DB.Exec(`UPDATE runs SET status = ? WHERE id = ?`, status, runID); err != nil {
		return fmt.Errorf("history: update run %s: %w", runID, err)
	}
	return nil
}

func (s *Store) finishRun(e plan.Event) error {
	_, err := s.DB.Exec(
		`UPDATE runs SET finished_at = ?, status = CASE WHEN status = ? THEN status ELSE ? END WHERE id = ?`,
		formatTime(e.Time), StatusComplete, StatusIncomplete, e.RunID,
	)
	if err != nil {
		return fmt.Errorf("history: finish run %s: %w", e.RunID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.Query(
		`SELECT id, plan_id, plan_name, status, started_at, COALESCE(finished_at, ''), steps
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started, finished string
		if err := rows.Scan(&run.ID, &run.PlanID, &run.PlanName, &run.Status, &started, &finished, &run.Steps); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Steps returns the recorded steps of one run in execution order.
func (s *Store) Steps(runID string) ([]StepRecord, error) {
	rows, err := s.DB.Query(
		`SELECT run_id, step, command, started_at, COALESCE(finished_at, ''), exit_code, error, stdout, stderr
		FROM steps WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: query steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var rec StepRecord
		var started, finished string
		if err := rows.Scan(&rec.RunID, &rec.Index, &rec.Command, &started, &finished, &rec.ExitCode, &rec.Error, &rec.Stdout, &rec.Stderr); err != nil {
			return nil, fmt.Errorf("history: scan step: %w", err)
		}
		rec.StartedAt = parseTime(started)
		rec.FinishedAt = parseTime(finished)
		steps = append(steps, rec)
	}
	return steps, rows.Err()
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
