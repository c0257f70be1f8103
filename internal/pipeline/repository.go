package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fortuna/mvp/internal/store"
)

const runColumns = `run_id, stage, season, status, status_message, progress_current, progress_total,
	artifacts, last_error, created_at, updated_at, started_at, completed_at`

// Repository handles persistence for pipeline runs and events.
type Repository struct {
	db *store.Database
}

// NewRepository constructs a Repository.
func NewRepository(db *store.Database) *Repository {
	return &Repository{db: db}
}

var _ RunStore = (*Repository)(nil)

// CreateRun inserts a new run row and returns the stored record.
func (r *Repository) CreateRun(ctx context.Context, run *Run) (*Run, error) {
	query := `
		INSERT INTO pipeline_runs (stage, season, status, status_message, progress_current, progress_total)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING ` + runColumns

	row := r.db.DB().QueryRowContext(ctx, query,
		string(run.Stage), run.Season, string(run.Status), run.StatusMessage,
		run.ProgressCurrent, run.ProgressTotal,
	)

	stored, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return stored, nil
}

// UpdateStatus updates status, message and optional error.
func (r *Repository) UpdateStatus(ctx context.Context, runID string, status RunStatus, message string, lastErr error) error {
	query := `
		UPDATE pipeline_runs
		SET status = $2::varchar,
			status_message = $3,
			last_error = $4,
			updated_at = NOW(),
			completed_at = CASE WHEN $2::varchar IN ('completed','failed','cancelled') THEN NOW() ELSE completed_at END
		WHERE run_id = $1
	`

	var errText sql.NullString
	if lastErr != nil {
		errText = sql.NullString{String: lastErr.Error(), Valid: true}
	}

	if _, err := r.db.DB().ExecContext(ctx, query, runID, string(status), message, errText); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

// UpdateProgress updates the progress counters and message.
func (r *Repository) UpdateProgress(ctx context.Context, runID string, current, total int, message string) error {
	query := `
		UPDATE pipeline_runs
		SET progress_current = $2,
			progress_total = $3,
			status_message = $4,
			updated_at = NOW()
		WHERE run_id = $1
	`

	if _, err := r.db.DB().ExecContext(ctx, query, runID, current, total, message); err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

// AddArtifact records a file written by the run.
func (r *Repository) AddArtifact(ctx context.Context, runID, path string) error {
	query := `
		UPDATE pipeline_runs
		SET artifacts = array_append(artifacts, $2),
			updated_at = NOW()
		WHERE run_id = $1
	`

	if _, err := r.db.DB().ExecContext(ctx, query, runID, path); err != nil {
		return fmt.Errorf("add run artifact: %w", err)
	}
	return nil
}

// AppendEvent stores a log entry for a run.
func (r *Repository) AppendEvent(ctx context.Context, runID string, eventType, message string, current, total *int) error {
	query := `
		INSERT INTO pipeline_run_events (run_id, event_type, message, progress_current, progress_total)
		VALUES ($1,$2,$3,$4,$5)
	`

	var currentVal interface{}
	if current != nil {
		currentVal = *current
	}
	var totalVal interface{}
	if total != nil {
		totalVal = *total
	}

	if _, err := r.db.DB().ExecContext(ctx, query, runID, eventType, message, currentVal, totalVal); err != nil {
		return fmt.Errorf("insert run event: %w", err)
	}
	return nil
}

// ResetStuckRuns moves running runs back to queued (used during service restarts).
func (r *Repository) ResetStuckRuns(ctx context.Context) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = 'queued',
			status_message = 'Reset after service restart',
			updated_at = NOW()
		WHERE status = 'running'
	`)
	if err != nil {
		return fmt.Errorf("reset stuck runs: %w", err)
	}
	return nil
}

// MarkNextRunRunning atomically claims the next queued run.
func (r *Repository) MarkNextRunRunning(ctx context.Context) (*Run, error) {
	query := `
		WITH next_run AS (
			SELECT run_id
			FROM pipeline_runs
			WHERE status = 'queued'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE pipeline_runs
		SET status = 'running',
			status_message = 'Starting run...',
			started_at = COALESCE(started_at, NOW()),
			updated_at = NOW()
		FROM next_run
		WHERE pipeline_runs.run_id = next_run.run_id
		RETURNING pipeline_runs.run_id, pipeline_runs.stage, pipeline_runs.season,
			pipeline_runs.status, pipeline_runs.status_message,
			pipeline_runs.progress_current, pipeline_runs.progress_total,
			pipeline_runs.artifacts, pipeline_runs.last_error,
			pipeline_runs.created_at, pipeline_runs.updated_at,
			pipeline_runs.started_at, pipeline_runs.completed_at
	`

	row := r.db.DB().QueryRowContext(ctx, query)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim run: %w", err)
	}
	return run, nil
}

// GetActiveRun returns the currently running run, if any.
func (r *Repository) GetActiveRun(ctx context.Context) (*Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE status = 'running'
		ORDER BY started_at DESC
		LIMIT 1
	`

	row := r.db.DB().QueryRowContext(ctx, query)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active run: %w", err)
	}
	return run, nil
}

// ListRecentRuns returns the most recently created runs.
func (r *Repository) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.DB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func scanRun(scanner interface {
	Scan(dest ...interface{}) error
}) (*Run, error) {
	run := &Run{}
	var stage, status string
	err := scanner.Scan(
		&run.RunID,
		&stage,
		&run.Season,
		&status,
		&run.StatusMessage,
		&run.ProgressCurrent,
		&run.ProgressTotal,
		&run.Artifacts,
		&run.LastError,
		&run.CreatedAt,
		&run.UpdatedAt,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Stage, run.Status = Stage(stage), RunStatus(status)
	return run, nil
}
