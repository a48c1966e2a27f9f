package engine

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/codebuildervaibhav/diarization-studio/internal/storage"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// GetProject returns a project by id.
func (e *Engine) GetProject(ctx context.Context, projectID string) (*types.Project, error) {
	var p *types.Project
	err := e.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		p, err = tx.GetProject(ctx, projectID)
		return err
	})
	return p, err
}

// ListProjects returns projects, newest first.
func (e *Engine) ListProjects(ctx context.Context, limit int) ([]types.Project, error) {
	var projects []types.Project
	err := e.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		projects, err = tx.ListProjects(ctx, limit)
		return err
	})
	return projects, err
}

// ListSpeakers returns the live speakers of a project with their segments.
func (e *Engine) ListSpeakers(ctx context.Context, projectID string) ([]types.SpeakerWithSegments, error) {
	var speakers []types.SpeakerWithSegments
	err := e.db.WithTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return err
		}
		var err error
		speakers, err = tx.ListSpeakersWithSegments(ctx, projectID)
		return err
	})
	return speakers, err
}

// ListTrash returns the soft-deleted segments of a project.
func (e *Engine) ListTrash(ctx context.Context, projectID string) ([]types.TrashSegment, error) {
	var trash []types.TrashSegment
	err := e.db.WithTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return err
		}
		var err error
		trash, err = tx.ListTrash(ctx, projectID)
		return err
	})
	return trash, err
}

// ReadAudio returns the bytes of a segment file, active or trashed, under the
// project's shared lock so a concurrent move cannot be observed half way.
func (e *Engine) ReadAudio(ctx context.Context, projectID, speakerID, filename string) ([]byte, error) {
	release, err := e.locks.Shared(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	var rel string
	err = e.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		rel, err = tx.FindAudioPath(ctx, projectID, speakerID, filename)
		return err
	})
	if err != nil {
		return nil, err
	}

	return e.readFile(projectID, rel)
}

// SegmentAudio returns an active segment with the bytes of its audio file,
// read under the project's shared lock.
func (e *Engine) SegmentAudio(ctx context.Context, projectID, segmentID string) (*types.Segment, []byte, error) {
	release, err := e.locks.Shared(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	var seg *types.Segment
	err = e.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		seg, err = tx.GetSegment(ctx, projectID, segmentID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	data, err := e.readFile(projectID, seg.AudioPath)
	if err != nil {
		return nil, nil, err
	}
	return seg, data, nil
}

func (e *Engine) readFile(projectID, rel string) ([]byte, error) {
	f, err := e.audio.Open(rel)
	if err != nil {
		log.Printf("Engine: audio %s referenced by project %s is unreadable: %v", rel, projectID, err)
		return nil, fmt.Errorf("open audio %s: %v: %w", rel, err, types.ErrStorage)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read audio %s: %v: %w", rel, err, types.ErrStorage)
	}
	return data, nil
}

// DeleteProject removes a project, its records and its directory tree. A
// project with an active job cannot be deleted.
func (e *Engine) DeleteProject(ctx context.Context, projectID string) error {
	release, err := e.locks.Exclusive(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()

	return e.deleteLocked(ctx, projectID)
}

func (e *Engine) deleteLocked(ctx context.Context, projectID string) error {
	err := e.db.WithTx(ctx, func(tx *storage.Tx) error {
		job, err := tx.ActiveJob(ctx, projectID)
		if err != nil {
			return err
		}
		if job != nil {
			return fmt.Errorf("project %s has active job %s: %w", projectID, job.ID, types.ErrInvalidOperation)
		}
		return tx.DeleteProject(ctx, projectID)
	})
	if err != nil {
		log.Printf("Engine: delete project %s failed: %v", projectID, err)
		return err
	}

	// Rows are gone; a leftover directory is reaped by the reconciler.
	if err := e.audio.RemoveProject(projectID); err != nil {
		log.Printf("Engine: failed to remove files of project %s: %v", projectID, err)
	}
	log.Printf("Engine: deleted project %s", projectID)
	return nil
}

// DeleteAllResult reports a bulk project deletion.
type DeleteAllResult struct {
	Deleted []string `json:"deleted"`
	Skipped []string `json:"skipped"`
}

// DeleteAllProjects deletes every project that is not busy. Projects with an
// active job or a held lock are skipped and reported.
func (e *Engine) DeleteAllProjects(ctx context.Context) (*DeleteAllResult, error) {
	var ids []string
	err := e.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		ids, err = tx.ListProjectIDs(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &DeleteAllResult{Deleted: []string{}, Skipped: []string{}}
	for _, id := range ids {
		release, ok := e.locks.TryExclusive(id)
		if !ok {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		err := e.deleteLocked(ctx, id)
		release()

		switch {
		case err == nil:
			result.Deleted = append(result.Deleted, id)
		case isInvalid(err), isNotFound(err):
			result.Skipped = append(result.Skipped, id)
		default:
			return result, err
		}
	}
	return result, nil
}
