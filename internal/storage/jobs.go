package storage

import (
	"context"
	"fmt"

	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

const jobColumns = `id, project_id, status, progress, error_message, created_at, updated_at`

func scanJob(row rowScanner) (*types.Job, error) {
	var j types.Job
	if err := row.Scan(&j.ID, &j.ProjectID, &j.Status, &j.Progress, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateJob inserts a pending job. A project may hold only one active job.
func (t *Tx) CreateJob(ctx context.Context, j *types.Job) error {
	active, err := t.ActiveJob(ctx, j.ProjectID)
	if err != nil {
		return err
	}
	if active != nil {
		return fmt.Errorf("project %s already has job %s (%s): %w",
			j.ProjectID, active.ID, active.Status, types.ErrInvalidOperation)
	}

	j.CreatedAt = now()
	j.UpdatedAt = j.CreatedAt
	_, err = t.tx.ExecContext(ctx, `
	INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.ProjectID, j.Status, j.Progress, j.ErrorMessage, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", j.ID, err)
	}
	return nil
}

// GetJob retrieves a job by id.
func (t *Tx) GetJob(ctx context.Context, id string) (*types.Job, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err != nil {
		return nil, notFound(err, "job %s", id)
	}
	return j, nil
}

// ActiveJob returns the pending or processing job of a project, or nil.
func (t *Tx) ActiveJob(ctx context.Context, projectID string) (*types.Job, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs
	WHERE project_id = ? AND status IN (?, ?) LIMIT 1`,
		projectID, types.StatusPending, types.StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to query active job: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanJob(rows)
}

// SetJobState updates a job and mirrors the state onto its project.
func (t *Tx) SetJobState(ctx context.Context, jobID, status, progress, errMsg string) error {
	j, err := t.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `
	UPDATE jobs SET status = ?, progress = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, progress, errMsg, now(), jobID); err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	return t.UpdateProjectStatus(ctx, j.ProjectID, status, progress, errMsg)
}

// FailInterruptedJobs marks every job left active by a previous process as failed.
func (t *Tx) FailInterruptedJobs(ctx context.Context, msg string) (int, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id FROM jobs WHERE status IN (?, ?)`,
		types.StatusPending, types.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to query interrupted jobs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if err := t.SetJobState(ctx, id, types.StatusError, "", msg); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
