package storage

import (
	"context"
	"fmt"

	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

const projectColumns = `id, source_ref, source_type, title, status, error_message, progress,
	speaker_hint, created_at, updated_at`

func scanProject(row rowScanner) (*types.Project, error) {
	var p types.Project
	err := row.Scan(&p.ID, &p.SourceRef, &p.SourceType, &p.Title, &p.Status, &p.ErrorMessage,
		&p.Progress, &p.SpeakerHint, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject inserts a new project. Timestamps are set here.
func (t *Tx) CreateProject(ctx context.Context, p *types.Project) error {
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	_, err := t.tx.ExecContext(ctx, `
	INSERT INTO projects (`+projectColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SourceRef, p.SourceType, p.Title, p.Status, p.ErrorMessage, p.Progress,
		p.SpeakerHint, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save project %s: %w", p.ID, err)
	}
	return nil
}

// GetProject retrieves a project by id.
func (t *Tx) GetProject(ctx context.Context, id string) (*types.Project, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound(err, "project %s", id)
	}
	return p, nil
}

// ListProjects returns projects newest first.
func (t *Tx) ListProjects(ctx context.Context, limit int) ([]types.Project, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []types.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// ListProjectIDs returns every project id.
func (t *Tx) ListProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id FROM projects`)
	if err != nil {
		return nil, fmt.Errorf("failed to list project ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateProjectStatus sets status, progress and error message.
func (t *Tx) UpdateProjectStatus(ctx context.Context, id, status, progress, errMsg string) error {
	res, err := t.tx.ExecContext(ctx, `
	UPDATE projects SET status = ?, progress = ?, error_message = ?, updated_at = ?
	WHERE id = ?`, status, progress, errMsg, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", id, err)
	}
	return requireRow(res, "project %s", id)
}

// TouchProject bumps updated_at.
func (t *Tx) TouchProject(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch project %s: %w", id, err)
	}
	return requireRow(res, "project %s", id)
}

// ClearProjectResults removes speakers, segments and trash of a project,
// keeping the project and its job history.
func (t *Tx) ClearProjectResults(ctx context.Context, id string) error {
	for _, stmt := range []string{
		`DELETE FROM trash_segments WHERE project_id = ?`,
		`DELETE FROM segments WHERE project_id = ?`,
		`DELETE FROM speakers WHERE project_id = ?`,
	} {
		if _, err := t.tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to clear project %s: %w", id, err)
		}
	}
	return nil
}

// DeleteProject removes a project and everything it owns.
func (t *Tx) DeleteProject(ctx context.Context, id string) error {
	if err := t.ClearProjectResults(ctx, id); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM jobs WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete jobs of project %s: %w", id, err)
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	return requireRow(res, "project %s", id)
}

// requireRow returns NotFound when an UPDATE/DELETE touched nothing.
func requireRow(res interface{ RowsAffected() (int64, error) }, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf(format+": %w", append(args, types.ErrNotFound)...)
	}
	return nil
}
