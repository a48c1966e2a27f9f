// Package engine applies compound edits to a diarized project. Every mutation
// holds the project's exclusive lock and keeps the record store and the audio
// store in step: files are staged at their new location, the transaction is
// committed, and only then are the old copies discarded.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"

	"github.com/codebuildervaibhav/diarization-studio/internal/projectlock"
	"github.com/codebuildervaibhav/diarization-studio/internal/storage"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// Engine is the segment mutation engine.
type Engine struct {
	db    *storage.MetadataDB
	audio *storage.AudioStore
	locks *projectlock.Registry
}

// New creates an engine over the given stores.
func New(db *storage.MetadataDB, audio *storage.AudioStore, locks *projectlock.Registry) *Engine {
	return &Engine{
		db:    db,
		audio: audio,
		locks: locks,
	}
}

// fileOps records file moves made inside one mutation so they can be undone
// before commit or finalized after it.
type fileOps struct {
	audio   *storage.AudioStore
	staged  []string
	sources []string
}

// move stages src at dst and schedules src for removal after commit.
func (f *fileOps) move(src, dst string) (string, error) {
	got, err := f.audio.Stage(src, dst)
	if err != nil {
		return "", fmt.Errorf("move %s -> %s: %v: %w", src, dst, err, types.ErrStorage)
	}
	f.staged = append(f.staged, got)
	f.sources = append(f.sources, src)
	return got, nil
}

// undo removes staged copies; sources were never touched.
func (f *fileOps) undo() {
	for _, rel := range f.staged {
		if err := f.audio.Discard(rel); err != nil {
			log.Printf("Engine: failed to undo staged file %s: %v", rel, err)
		}
	}
}

// finish drops the old copies. A failure leaves an unreferenced file that the
// reconciler removes later; the committed state is already consistent.
func (f *fileOps) finish() {
	for _, rel := range f.sources {
		if err := f.audio.Discard(rel); err != nil {
			log.Printf("Engine: failed to discard old file %s: %v", rel, err)
		}
	}
}

// mutate runs fn under the project's exclusive lock inside one transaction.
func (e *Engine) mutate(ctx context.Context, projectID, op string, fn func(tx *storage.Tx, ops *fileOps) error) error {
	release, err := e.locks.Exclusive(ctx, projectID)
	if err != nil {
		log.Printf("Engine: %s on project %s: %v", op, projectID, err)
		return err
	}
	defer release()

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", op, err, types.ErrStorage)
	}
	defer tx.Rollback()

	if _, err := tx.GetProject(ctx, projectID); err != nil {
		return err
	}

	ops := &fileOps{audio: e.audio}
	if err := fn(tx, ops); err != nil {
		ops.undo()
		log.Printf("Engine: %s on project %s failed: %v", op, projectID, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		ops.undo()
		log.Printf("Engine: %s on project %s failed to commit: %v", op, projectID, err)
		return fmt.Errorf("%s: %v: %w", op, err, types.ErrStorage)
	}

	ops.finish()
	return nil
}

// appendToSpeaker moves an active segment to the end of target's order sequence.
func appendToSpeaker(ctx context.Context, tx *storage.Tx, ops *fileOps, seg *types.Segment, target *types.Speaker) error {
	idx, err := tx.NextOrderIndex(ctx, target.ID)
	if err != nil {
		return err
	}
	dst, err := ops.move(seg.AudioPath, storage.SpeakerPath(seg.ProjectID, target.Folder, seg.AudioFilename))
	if err != nil {
		return err
	}
	return tx.PlaceSegment(ctx, seg.ID, target.ID, idx, path.Base(dst), dst)
}

// trashSegment moves an active segment and its file into the trash.
func trashSegment(ctx context.Context, tx *storage.Tx, ops *fileOps, seg *types.Segment, from *types.Speaker) (*types.TrashSegment, error) {
	dst, err := ops.move(seg.AudioPath, storage.TrashPath(seg.ProjectID, from.Folder, seg.AudioFilename))
	if err != nil {
		return nil, err
	}

	entry := &types.TrashSegment{
		Segment:                *seg,
		DeletedFromSpeakerID:   from.ID,
		DeletedFromSpeakerName: from.DisplayName,
	}
	entry.SpeakerID = ""
	entry.AudioPath = dst
	entry.AudioFilename = path.Base(dst)

	if err := tx.DeleteSegment(ctx, seg.ID); err != nil {
		return nil, err
	}
	if err := tx.CreateTrashSegment(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// isNotFound reports whether err is the store's NotFound.
func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}

func isInvalid(err error) bool {
	return errors.Is(err, types.ErrInvalidOperation)
}
