package storage

import (
	"context"
	"fmt"

	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// speakerSelect derives segment_count and total_duration from live segments.
const speakerSelect = `
	SELECT s.id, s.project_id, s.original_label, s.display_name, s.folder,
		COUNT(g.id), COALESCE(SUM(g.duration), 0)
	FROM speakers s
	LEFT JOIN segments g ON g.speaker_id = s.id`

func scanSpeaker(row rowScanner) (*types.Speaker, error) {
	var s types.Speaker
	if err := row.Scan(&s.ID, &s.ProjectID, &s.OriginalLabel, &s.DisplayName, &s.Folder,
		&s.SegmentCount, &s.TotalDuration); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSpeaker inserts a speaker with an empty order sequence.
func (t *Tx) CreateSpeaker(ctx context.Context, s *types.Speaker) error {
	_, err := t.tx.ExecContext(ctx, `
	INSERT INTO speakers (id, project_id, original_label, display_name, folder, next_order, created_at)
	VALUES (?, ?, ?, ?, ?, 1, ?)`,
		s.ID, s.ProjectID, s.OriginalLabel, s.DisplayName, s.Folder, now())
	if err != nil {
		return fmt.Errorf("failed to save speaker %s: %w", s.OriginalLabel, err)
	}
	return nil
}

// GetSpeaker retrieves a speaker of the given project.
func (t *Tx) GetSpeaker(ctx context.Context, projectID, id string) (*types.Speaker, error) {
	row := t.tx.QueryRowContext(ctx, speakerSelect+`
	WHERE s.project_id = ? AND s.id = ?
	GROUP BY s.id`, projectID, id)
	s, err := scanSpeaker(row)
	if err != nil {
		return nil, notFound(err, "speaker %s", id)
	}
	return s, nil
}

// ListSpeakers returns the speakers of a project in insertion order.
func (t *Tx) ListSpeakers(ctx context.Context, projectID string) ([]types.Speaker, error) {
	rows, err := t.tx.QueryContext(ctx, speakerSelect+`
	WHERE s.project_id = ?
	GROUP BY s.id
	ORDER BY s.rowid`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list speakers: %w", err)
	}
	defer rows.Close()

	speakers := []types.Speaker{}
	for rows.Next() {
		s, err := scanSpeaker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan speaker: %w", err)
		}
		speakers = append(speakers, *s)
	}
	return speakers, rows.Err()
}

// ListSpeakersWithSegments returns every live speaker with its live segments.
func (t *Tx) ListSpeakersWithSegments(ctx context.Context, projectID string) ([]types.SpeakerWithSegments, error) {
	speakers, err := t.ListSpeakers(ctx, projectID)
	if err != nil {
		return nil, err
	}

	result := make([]types.SpeakerWithSegments, 0, len(speakers))
	for _, s := range speakers {
		segs, err := t.ListSegmentsBySpeaker(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, types.SpeakerWithSegments{Speaker: s, Segments: segs})
	}
	return result, nil
}

// SpeakerWithSegments loads one speaker aggregate.
func (t *Tx) SpeakerWithSegments(ctx context.Context, projectID, id string) (*types.SpeakerWithSegments, error) {
	s, err := t.GetSpeaker(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	segs, err := t.ListSegmentsBySpeaker(ctx, id)
	if err != nil {
		return nil, err
	}
	return &types.SpeakerWithSegments{Speaker: *s, Segments: segs}, nil
}

// RenameSpeaker updates the display name.
func (t *Tx) RenameSpeaker(ctx context.Context, projectID, id, displayName string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE speakers SET display_name = ? WHERE project_id = ? AND id = ?`, displayName, projectID, id)
	if err != nil {
		return fmt.Errorf("failed to rename speaker %s: %w", id, err)
	}
	return requireRow(res, "speaker %s", id)
}

// DeleteSpeaker removes a speaker row. The speaker must have no live segments.
func (t *Tx) DeleteSpeaker(ctx context.Context, projectID, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM speakers WHERE project_id = ? AND id = ?`, projectID, id)
	if err != nil {
		return fmt.Errorf("failed to delete speaker %s: %w", id, err)
	}
	return requireRow(res, "speaker %s", id)
}

// NextOrderIndex reserves the next order_index of a speaker. Indexes are
// never reused, so the sequence stays monotonic across moves and deletes.
func (t *Tx) NextOrderIndex(ctx context.Context, speakerID string) (int, error) {
	var next int
	err := t.tx.QueryRowContext(ctx, `SELECT next_order FROM speakers WHERE id = ?`, speakerID).Scan(&next)
	if err != nil {
		return 0, notFound(err, "speaker %s", speakerID)
	}
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE speakers SET next_order = ? WHERE id = ?`, next+1, speakerID); err != nil {
		return 0, fmt.Errorf("failed to reserve order index: %w", err)
	}
	return next, nil
}
