package engine

import (
	"context"
	"fmt"
	"path"

	"github.com/codebuildervaibhav/diarization-studio/internal/storage"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// ReassignResult is the updated state after moving a segment between speakers.
type ReassignResult struct {
	Segment types.Segment             `json:"segment"`
	From    types.SpeakerWithSegments `json:"from_speaker"`
	To      types.SpeakerWithSegments `json:"to_speaker"`
}

// Reassign moves an active segment to another speaker of the same project,
// appending it to the end of that speaker's order.
func (e *Engine) Reassign(ctx context.Context, projectID, segmentID, newSpeakerID string) (*ReassignResult, error) {
	var result ReassignResult

	err := e.mutate(ctx, projectID, "reassign segment "+segmentID, func(tx *storage.Tx, ops *fileOps) error {
		seg, err := tx.GetSegment(ctx, projectID, segmentID)
		if err != nil {
			return err
		}
		target, err := tx.GetSpeaker(ctx, projectID, newSpeakerID)
		if err != nil {
			return err
		}
		if seg.SpeakerID == target.ID {
			return fmt.Errorf("segment %s already belongs to speaker %s: %w",
				segmentID, target.ID, types.ErrInvalidOperation)
		}

		fromID := seg.SpeakerID
		if err := appendToSpeaker(ctx, tx, ops, seg, target); err != nil {
			return err
		}

		moved, err := tx.GetSegment(ctx, projectID, segmentID)
		if err != nil {
			return err
		}
		from, err := tx.SpeakerWithSegments(ctx, projectID, fromID)
		if err != nil {
			return err
		}
		to, err := tx.SpeakerWithSegments(ctx, projectID, target.ID)
		if err != nil {
			return err
		}
		result = ReassignResult{Segment: *moved, From: *from, To: *to}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteSegment soft-deletes an active segment, moving its audio to the trash area.
func (e *Engine) DeleteSegment(ctx context.Context, projectID, segmentID string) (*types.TrashSegment, error) {
	var entry *types.TrashSegment

	err := e.mutate(ctx, projectID, "delete segment "+segmentID, func(tx *storage.Tx, ops *fileOps) error {
		seg, err := tx.GetSegment(ctx, projectID, segmentID)
		if err != nil {
			return err
		}
		speaker, err := tx.GetSpeaker(ctx, projectID, seg.SpeakerID)
		if err != nil {
			return err
		}
		entry, err = trashSegment(ctx, tx, ops, seg, speaker)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// BatchDeleteResult is the state after trashing every segment of a speaker.
type BatchDeleteResult struct {
	Speaker types.SpeakerWithSegments `json:"speaker"`
	Trashed []types.TrashSegment      `json:"trashed"`
}

// DeleteAllSegmentsForSpeaker trashes every active segment of a speaker as one
// batch. On failure nothing is moved and a *types.BatchError lists the segments.
func (e *Engine) DeleteAllSegmentsForSpeaker(ctx context.Context, projectID, speakerID string) (*BatchDeleteResult, error) {
	var result BatchDeleteResult

	err := e.mutate(ctx, projectID, "delete segments of speaker "+speakerID, func(tx *storage.Tx, ops *fileOps) error {
		speaker, err := tx.GetSpeaker(ctx, projectID, speakerID)
		if err != nil {
			return err
		}
		segs, err := tx.ListSegmentsBySpeaker(ctx, speakerID)
		if err != nil {
			return err
		}

		result.Trashed = make([]types.TrashSegment, 0, len(segs))
		for i := range segs {
			entry, err := trashSegment(ctx, tx, ops, &segs[i], speaker)
			if err != nil {
				failed := make([]string, len(segs))
				for j := range segs {
					failed[j] = segs[j].ID
				}
				return &types.BatchError{Failed: failed, Err: err}
			}
			result.Trashed = append(result.Trashed, *entry)
		}

		after, err := tx.SpeakerWithSegments(ctx, projectID, speakerID)
		if err != nil {
			return err
		}
		result.Speaker = *after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RestoreResult is the state after bringing a segment back from the trash.
type RestoreResult struct {
	Segment types.Segment             `json:"segment"`
	Speaker types.SpeakerWithSegments `json:"speaker"`
}

// RestoreSegment moves a trash entry back under the speaker it was deleted
// from, appended at the end. If that speaker is gone the call fails with
// ErrInvalidOperation and the trash entry is left as is.
func (e *Engine) RestoreSegment(ctx context.Context, projectID, segmentID string) (*RestoreResult, error) {
	var result RestoreResult

	err := e.mutate(ctx, projectID, "restore segment "+segmentID, func(tx *storage.Tx, ops *fileOps) error {
		entry, err := tx.GetTrashSegment(ctx, projectID, segmentID)
		if err != nil {
			return err
		}

		speaker, err := tx.GetSpeaker(ctx, projectID, entry.DeletedFromSpeakerID)
		if isNotFound(err) {
			return fmt.Errorf("cannot restore segment %s: original speaker %s (%s) no longer exists: %w",
				segmentID, entry.DeletedFromSpeakerID, entry.DeletedFromSpeakerName, types.ErrInvalidOperation)
		}
		if err != nil {
			return err
		}

		idx, err := tx.NextOrderIndex(ctx, speaker.ID)
		if err != nil {
			return err
		}
		dst, err := ops.move(entry.AudioPath, storage.SpeakerPath(projectID, speaker.Folder, entry.AudioFilename))
		if err != nil {
			return err
		}

		seg := entry.Segment
		seg.SpeakerID = speaker.ID
		seg.OrderIndex = idx
		seg.AudioPath = dst
		seg.AudioFilename = path.Base(dst)

		if err := tx.DeleteTrashSegment(ctx, entry.ID); err != nil {
			return err
		}
		if err := tx.CreateSegment(ctx, &seg); err != nil {
			return err
		}

		after, err := tx.SpeakerWithSegments(ctx, projectID, speaker.ID)
		if err != nil {
			return err
		}
		result = RestoreResult{Segment: seg, Speaker: *after}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateTranscription sets the transcription of an active segment.
func (e *Engine) UpdateTranscription(ctx context.Context, projectID, segmentID, text string) (*types.Segment, error) {
	var seg *types.Segment

	err := e.mutate(ctx, projectID, "update segment "+segmentID, func(tx *storage.Tx, _ *fileOps) error {
		if err := tx.UpdateTranscription(ctx, projectID, segmentID, text); err != nil {
			return err
		}
		var err error
		seg, err = tx.GetSegment(ctx, projectID, segmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return seg, nil
}
