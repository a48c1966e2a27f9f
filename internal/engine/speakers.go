package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/codebuildervaibhav/diarization-studio/internal/storage"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// MergeSpeakers moves every active segment of source onto target, in source
// order, and removes source. Trash entries that point at source stay as they
// are and can no longer be restored.
func (e *Engine) MergeSpeakers(ctx context.Context, projectID, sourceID, targetID string) (*types.SpeakerWithSegments, error) {
	if sourceID == targetID {
		return nil, fmt.Errorf("cannot merge speaker %s into itself: %w", sourceID, types.ErrInvalidOperation)
	}

	var merged *types.SpeakerWithSegments
	err := e.mutate(ctx, projectID, "merge speaker "+sourceID+" into "+targetID, func(tx *storage.Tx, ops *fileOps) error {
		if _, err := tx.GetSpeaker(ctx, projectID, sourceID); err != nil {
			return mergeOperand(err)
		}
		target, err := tx.GetSpeaker(ctx, projectID, targetID)
		if err != nil {
			return mergeOperand(err)
		}

		segs, err := tx.ListSegmentsBySpeaker(ctx, sourceID)
		if err != nil {
			return err
		}
		for i := range segs {
			if err := appendToSpeaker(ctx, tx, ops, &segs[i], target); err != nil {
				return err
			}
		}

		if err := tx.DeleteSpeaker(ctx, projectID, sourceID); err != nil {
			return err
		}
		merged, err = tx.SpeakerWithSegments(ctx, projectID, targetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// mergeOperand marks a missing merge speaker as an invalid operation while
// keeping NotFound in the chain.
func mergeOperand(err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %w", types.ErrInvalidOperation, err)
	}
	return err
}

// RenameSpeaker changes a speaker's display name. Folders keep their name.
func (e *Engine) RenameSpeaker(ctx context.Context, projectID, speakerID, name string) (*types.Speaker, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("display name must not be empty: %w", types.ErrInvalidOperation)
	}
	var speaker *types.Speaker

	err := e.mutate(ctx, projectID, "rename speaker "+speakerID, func(tx *storage.Tx, _ *fileOps) error {
		if err := tx.RenameSpeaker(ctx, projectID, speakerID, name); err != nil {
			return err
		}
		var err error
		speaker, err = tx.GetSpeaker(ctx, projectID, speakerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return speaker, nil
}
