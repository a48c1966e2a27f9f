package storage

import (
	"context"
	"fmt"

	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

const segmentColumns = `id, project_id, speaker_id, original_speaker_id, audio_filename, audio_path,
	start_time, end_time, duration, start_time_formatted, transcription, order_index`

const trashColumns = `id, project_id, original_speaker_id, audio_filename, audio_path,
	start_time, end_time, duration, start_time_formatted, transcription, order_index,
	deleted_from_speaker_id, deleted_from_speaker_name, deleted_at`

func scanSegment(row rowScanner) (*types.Segment, error) {
	var s types.Segment
	if err := row.Scan(&s.ID, &s.ProjectID, &s.SpeakerID, &s.OriginalSpeakerID, &s.AudioFilename,
		&s.AudioPath, &s.StartTime, &s.EndTime, &s.Duration, &s.StartTimeFormatted,
		&s.Transcription, &s.OrderIndex); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanTrash(row rowScanner) (*types.TrashSegment, error) {
	var s types.TrashSegment
	if err := row.Scan(&s.ID, &s.ProjectID, &s.OriginalSpeakerID, &s.AudioFilename, &s.AudioPath,
		&s.StartTime, &s.EndTime, &s.Duration, &s.StartTimeFormatted, &s.Transcription,
		&s.OrderIndex, &s.DeletedFromSpeakerID, &s.DeletedFromSpeakerName, &s.DeletedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSegment inserts an active segment.
func (t *Tx) CreateSegment(ctx context.Context, s *types.Segment) error {
	_, err := t.tx.ExecContext(ctx, `
	INSERT INTO segments (`+segmentColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ProjectID, s.SpeakerID, s.OriginalSpeakerID, s.AudioFilename, s.AudioPath,
		s.StartTime, s.EndTime, s.Duration, s.StartTimeFormatted, s.Transcription, s.OrderIndex)
	if err != nil {
		return fmt.Errorf("failed to save segment %s: %w", s.ID, err)
	}
	return nil
}

// GetSegment retrieves an active segment of a project.
func (t *Tx) GetSegment(ctx context.Context, projectID, id string) (*types.Segment, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE project_id = ? AND id = ?`, projectID, id)
	s, err := scanSegment(row)
	if err != nil {
		return nil, notFound(err, "segment %s", id)
	}
	return s, nil
}

// ListSegmentsBySpeaker returns the live segments of a speaker by order_index.
func (t *Tx) ListSegmentsBySpeaker(ctx context.Context, speakerID string) ([]types.Segment, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE speaker_id = ? ORDER BY order_index`, speakerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()

	segments := []types.Segment{}
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, *s)
	}
	return segments, rows.Err()
}

// PlaceSegment moves a segment under a speaker at the given order index and audio location.
func (t *Tx) PlaceSegment(ctx context.Context, id, speakerID string, orderIndex int, filename, audioPath string) error {
	res, err := t.tx.ExecContext(ctx, `
	UPDATE segments SET speaker_id = ?, order_index = ?, audio_filename = ?, audio_path = ?
	WHERE id = ?`, speakerID, orderIndex, filename, audioPath, id)
	if err != nil {
		return fmt.Errorf("failed to move segment %s: %w", id, err)
	}
	return requireRow(res, "segment %s", id)
}

// UpdateTranscription sets the transcription text of an active segment.
func (t *Tx) UpdateTranscription(ctx context.Context, projectID, id, text string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE segments SET transcription = ? WHERE project_id = ? AND id = ?`, text, projectID, id)
	if err != nil {
		return fmt.Errorf("failed to update segment %s: %w", id, err)
	}
	return requireRow(res, "segment %s", id)
}

// DeleteSegment removes an active segment row.
func (t *Tx) DeleteSegment(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM segments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete segment %s: %w", id, err)
	}
	return requireRow(res, "segment %s", id)
}

// CountSegments returns live and trashed segment counts of a project.
func (t *Tx) CountSegments(ctx context.Context, projectID string) (live, trashed int, err error) {
	err = t.tx.QueryRowContext(ctx, `
	SELECT (SELECT COUNT(*) FROM segments WHERE project_id = ?),
		(SELECT COUNT(*) FROM trash_segments WHERE project_id = ?)`, projectID, projectID).Scan(&live, &trashed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count segments: %w", err)
	}
	return live, trashed, nil
}

// CreateTrashSegment inserts a trash entry.
func (t *Tx) CreateTrashSegment(ctx context.Context, s *types.TrashSegment) error {
	if s.DeletedAt.IsZero() {
		s.DeletedAt = now()
	}
	_, err := t.tx.ExecContext(ctx, `
	INSERT INTO trash_segments (`+trashColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ProjectID, s.OriginalSpeakerID, s.AudioFilename, s.AudioPath,
		s.StartTime, s.EndTime, s.Duration, s.StartTimeFormatted, s.Transcription, s.OrderIndex,
		s.DeletedFromSpeakerID, s.DeletedFromSpeakerName, s.DeletedAt)
	if err != nil {
		return fmt.Errorf("failed to save trash entry %s: %w", s.ID, err)
	}
	return nil
}

// GetTrashSegment retrieves a trash entry of a project.
func (t *Tx) GetTrashSegment(ctx context.Context, projectID, id string) (*types.TrashSegment, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+trashColumns+` FROM trash_segments WHERE project_id = ? AND id = ?`, projectID, id)
	s, err := scanTrash(row)
	if err != nil {
		return nil, notFound(err, "trash entry %s", id)
	}
	return s, nil
}

// ListTrash returns the trash entries of a project by start time.
func (t *Tx) ListTrash(ctx context.Context, projectID string) ([]types.TrashSegment, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+trashColumns+` FROM trash_segments WHERE project_id = ? ORDER BY start_time, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trash: %w", err)
	}
	defer rows.Close()

	trash := []types.TrashSegment{}
	for rows.Next() {
		s, err := scanTrash(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trash entry: %w", err)
		}
		trash = append(trash, *s)
	}
	return trash, rows.Err()
}

// DeleteTrashSegment removes a trash entry.
func (t *Tx) DeleteTrashSegment(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM trash_segments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trash entry %s: %w", id, err)
	}
	return requireRow(res, "trash entry %s", id)
}

// FindAudioPath resolves the stored audio path of a segment file, matching either
// an active segment of the speaker or a trash entry deleted from it.
func (t *Tx) FindAudioPath(ctx context.Context, projectID, speakerID, filename string) (string, error) {
	var audioPath string
	err := t.tx.QueryRowContext(ctx, `
	SELECT audio_path FROM segments
		WHERE project_id = ? AND speaker_id = ? AND audio_filename = ?
	UNION ALL
	SELECT audio_path FROM trash_segments
		WHERE project_id = ? AND deleted_from_speaker_id = ? AND audio_filename = ?
	LIMIT 1`, projectID, speakerID, filename, projectID, speakerID, filename).Scan(&audioPath)
	if err != nil {
		return "", notFound(err, "audio file %s", filename)
	}
	return audioPath, nil
}

// ReferencedAudioPaths returns every audio path referenced by a project's rows.
func (t *Tx) ReferencedAudioPaths(ctx context.Context, projectID string) (map[string]struct{}, error) {
	rows, err := t.tx.QueryContext(ctx, `
	SELECT audio_path FROM segments WHERE project_id = ?
	UNION ALL
	SELECT audio_path FROM trash_segments WHERE project_id = ?`, projectID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audio paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths[p] = struct{}{}
	}
	return paths, rows.Err()
}
