package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/pocketbench/internal/models"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when no journal entry matches.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one journaled run.
type RunRecord struct {
	ID         string
	LogFile    string
	ServerURL  string
	Request    models.RunRequest
	Outcome    models.RunOutcome
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Tasks returns the task set of the run.
func (r *RunRecord) Tasks() []string {
	if len(r.Request.Jobs) == 0 {
		return nil
	}
	return r.Request.Jobs[0].Tasks
}

// Duration returns how long the run lasted, or the time since it started.
func (r *RunRecord) Duration(now time.Time) time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

// RunRepository persists RunRecords.
type RunRepository struct {
	db  *DB
	now func() time.Time
}

// NewRunRepository creates a RunRepository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db, now: time.Now}
}

// Create inserts a new record, assigning ID and StartedAt when unset.
func (r *RunRepository) Create(ctx context.Context, rec *RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = r.now().UTC()
	}
	jobs, err := json.Marshal(rec.Request.Jobs)
	if err != nil {
		return fmt.Errorf("marshal jobs: %w", err)
	}
	tasks, err := json.Marshal(rec.Tasks())
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (
				id, log_file, server_url, jobs_json, tasks_json, device, batch, verbosity, started_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID,
			nullString(rec.LogFile),
			rec.ServerURL,
			string(jobs),
			string(tasks),
			rec.Request.Device,
			rec.Request.Batch,
			rec.Request.Verbosity,
			rec.StartedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// SetLogFile records the server-assigned log file of a run.
func (r *RunRepository) SetLogFile(ctx context.Context, id, logFile string) error {
	return r.update(ctx, `UPDATE runs SET log_file = ? WHERE id = ?`, logFile, id)
}

// Finish records the outcome of a run.
func (r *RunRepository) Finish(ctx context.Context, id string, outcome models.RunOutcome, runErr error) error {
	var message any
	if runErr != nil {
		message = runErr.Error()
	}
	finished := r.now().UTC().Format(timeLayout)
	return r.update(ctx, `UPDATE runs SET outcome = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(outcome), message, finished, id)
}

func (r *RunRepository) update(ctx context.Context, query string, args ...any) error {
	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrRunNotFound
		}
		return nil
	})
}

const runColumns = `id, log_file, server_url, jobs_json, device, batch, verbosity, outcome, error, started_at, finished_at`

// Get returns a run by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// Latest returns the most recent run that announced a log file.
func (r *RunRepository) Latest(ctx context.Context) (*RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE log_file IS NOT NULL AND log_file != ''
		ORDER BY started_at DESC LIMIT 1
	`)
	return scanRun(row)
}

// List returns up to limit runs, newest first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var (
		rec                       RunRecord
		logFile, outcome, errText sql.NullString
		jobsJSON, started         string
		finished                  sql.NullString
	)
	err := s.Scan(&rec.ID, &logFile, &rec.ServerURL, &jobsJSON, &rec.Request.Device, &rec.Request.Batch,
		&rec.Request.Verbosity, &outcome, &errText, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	rec.LogFile = logFile.String
	rec.Outcome = models.RunOutcome(outcome.String)
	rec.Error = errText.String
	if err := json.Unmarshal([]byte(jobsJSON), &rec.Request.Jobs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		ts, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		rec.FinishedAt = &ts
	}
	return &rec, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
