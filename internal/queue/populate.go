package queue

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/diarization-studio/internal/storage"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

const defaultClipExt = ".wav"

// populate writes speakers, segments and clip files for a finished job and
// marks it completed, all in one transaction under the project's exclusive
// lock. If anything fails the rows are rolled back and the files removed, so
// an errored project is empty rather than half filled.
func (wp *WorkerPool) populate(job *Job, result *types.RawDiarizationResult) (err error) {
	ctx := wp.ctx
	release, err := wp.locks.Exclusive(ctx, job.ProjectID)
	if err != nil {
		return err
	}
	defer release()

	tx, err := wp.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%v: %w", err, types.ErrStorage)
	}
	defer tx.Rollback()

	defer func() {
		if err == nil {
			return
		}
		if rmErr := wp.audio.RemoveProject(job.ProjectID); rmErr != nil {
			log.Printf("Failed to remove partial files of project %s: %v", job.ProjectID, rmErr)
		}
	}()

	speakers := make(map[string]*types.Speaker)
	for _, label := range speakerLabels(result) {
		sp := &types.Speaker{
			ID:            uuid.New().String(),
			ProjectID:     job.ProjectID,
			OriginalLabel: label,
			DisplayName:   label,
			Folder:        uniqueFolder(speakers, label),
		}
		if err := tx.CreateSpeaker(ctx, sp); err != nil {
			return fmt.Errorf("%v: %w", err, types.ErrStorage)
		}
		speakers[label] = sp
	}

	written := 0
	for i, raw := range result.Segments {
		if raw.End <= raw.Start {
			log.Printf("Job %s: skipping segment %d with empty interval %.3f-%.3f", job.ID, i, raw.Start, raw.End)
			continue
		}
		sp := speakers[raw.SpeakerLabel]

		idx, err := tx.NextOrderIndex(ctx, sp.ID)
		if err != nil {
			return fmt.Errorf("%v: %w", err, types.ErrStorage)
		}

		ext := defaultClipExt
		if raw.AudioPath != "" && filepath.Ext(raw.AudioPath) != "" {
			ext = strings.ToLower(filepath.Ext(raw.AudioPath))
		}
		filename := fmt.Sprintf("%03d_%s%s", idx, types.FilenameTimestamp(raw.Start), ext)
		rel := storage.SpeakerPath(job.ProjectID, sp.Folder, filename)

		if raw.AudioPath != "" {
			err = wp.audio.ImportFile(rel, raw.AudioPath)
		} else {
			err = wp.audio.WriteFile(rel, raw.Audio)
		}
		if err != nil {
			return fmt.Errorf("write clip %s: %v: %w", rel, err, types.ErrStorage)
		}

		seg := &types.Segment{
			ID:                 uuid.New().String(),
			ProjectID:          job.ProjectID,
			SpeakerID:          sp.ID,
			OriginalSpeakerID:  sp.ID,
			AudioFilename:      filename,
			AudioPath:          rel,
			StartTime:          raw.Start,
			EndTime:            raw.End,
			Duration:           raw.End - raw.Start,
			StartTimeFormatted: types.FormatTimestamp(raw.Start),
			OrderIndex:         idx,
		}
		if err := tx.CreateSegment(ctx, seg); err != nil {
			return fmt.Errorf("%v: %w", err, types.ErrStorage)
		}
		written++
	}

	if err := tx.SetJobState(ctx, job.ID, types.StatusCompleted,
		fmt.Sprintf("Completed: %d speakers, %d segments", len(speakers), written), ""); err != nil {
		return fmt.Errorf("%v: %w", err, types.ErrStorage)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%v: %w", err, types.ErrStorage)
	}
	return nil
}

// speakerLabels returns the distinct labels of a result, sorted.
func speakerLabels(result *types.RawDiarizationResult) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, s := range result.Segments {
		if !seen[s.SpeakerLabel] {
			seen[s.SpeakerLabel] = true
			labels = append(labels, s.SpeakerLabel)
		}
	}
	sort.Strings(labels)
	return labels
}

// uniqueFolder derives a directory name from a label, lower-cased and
// de-duplicated among the speakers created so far.
func uniqueFolder(existing map[string]*types.Speaker, label string) string {
	base := storage.SanitizeFilename(strings.ToLower(label))
	taken := make(map[string]bool, len(existing))
	for _, sp := range existing {
		taken[sp.Folder] = true
	}
	if base == storage.TrashDir {
		base += "_speaker"
	}
	folder := base
	for n := 2; taken[folder]; n++ {
		folder = fmt.Sprintf("%s_%d", base, n)
	}
	return folder
}
