// Package export renders project snapshots: structured JSON, a plain-text
// transcript, and a zip of audio per speaker. Exports read under the project's
// shared lock so they never observe a half-applied mutation.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/codebuildervaibhav/diarization-studio/internal/projectlock"
	"github.com/codebuildervaibhav/diarization-studio/internal/storage"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// Publisher uploads export artifacts to remote storage.
type Publisher interface {
	UploadExport(ctx context.Context, folderName string, files []storage.DriveFile) (string, error)
}

// Service is the export service.
type Service struct {
	db        *storage.MetadataDB
	audio     *storage.AudioStore
	locks     *projectlock.Registry
	publisher Publisher
}

// NewService creates an export service. publisher may be nil.
func NewService(db *storage.MetadataDB, audio *storage.AudioStore, locks *projectlock.Registry, publisher Publisher) *Service {
	return &Service{
		db:        db,
		audio:     audio,
		locks:     locks,
		publisher: publisher,
	}
}

// Snapshot is the structured export of a project. Trash is not included.
type Snapshot struct {
	Project  types.Project               `json:"project"`
	Speakers []types.SpeakerWithSegments `json:"speakers"`
}

// snapshot reads a consistent project view. Callers hold the shared lock.
func (s *Service) snapshot(ctx context.Context, projectID string) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.WithTx(ctx, func(tx *storage.Tx) error {
		p, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		speakers, err := tx.ListSpeakersWithSegments(ctx, projectID)
		if err != nil {
			return err
		}
		snap = Snapshot{Project: *p, Speakers: speakers}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if snap.Speakers == nil {
		snap.Speakers = []types.SpeakerWithSegments{}
	}
	return &snap, nil
}

func (s *Service) withSnapshot(ctx context.Context, projectID string, fn func(*Snapshot) error) error {
	release, err := s.locks.Shared(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()

	snap, err := s.snapshot(ctx, projectID)
	if err != nil {
		return err
	}
	return fn(snap)
}

// JSON returns the full structured snapshot of a project.
func (s *Service) JSON(ctx context.Context, projectID string) (*Snapshot, error) {
	var out *Snapshot
	err := s.withSnapshot(ctx, projectID, func(snap *Snapshot) error {
		out = snap
		return nil
	})
	return out, err
}

// Transcript returns the plain-text transcript of a project.
func (s *Service) Transcript(ctx context.Context, projectID string) (string, error) {
	var text string
	err := s.withSnapshot(ctx, projectID, func(snap *Snapshot) error {
		text = RenderTranscript(snap)
		return nil
	})
	return text, err
}

// RenderTranscript renders one block per speaker, headed by its display name,
// with one "[start] text" line per segment in order. Untranscribed segments
// keep their line so timings stay aligned.
func RenderTranscript(snap *Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", snap.Project.Title)
	fmt.Fprintf(&b, "# Source: %s\n", snap.Project.SourceRef)

	for _, sp := range snap.Speakers {
		fmt.Fprintf(&b, "\n## %s\n", sp.DisplayName)
		for _, seg := range sp.Segments {
			fmt.Fprintf(&b, "[%s] %s\n", seg.StartTimeFormatted, seg.Transcription)
		}
	}
	return b.String()
}

// Audio writes a zip of the selected speakers' audio to w, one folder per
// speaker named after its display name. An empty selection, or one naming
// every speaker, exports all speakers and yields the same bytes.
func (s *Service) Audio(ctx context.Context, projectID string, speakerIDs []string, w io.Writer) error {
	return s.withSnapshot(ctx, projectID, func(snap *Snapshot) error {
		selected, err := selectSpeakers(snap.Speakers, speakerIDs)
		if err != nil {
			return err
		}
		entries := archiveEntries(selected)
		if len(entries) == 0 {
			return fmt.Errorf("project %s has no audio to export: %w", projectID, types.ErrNotFound)
		}

		if err := s.audio.WriteArchive(w, entries, snap.Project.CreatedAt); err != nil {
			log.Printf("Export: audio archive for project %s failed: %v", projectID, err)
			return fmt.Errorf("%v: %w", err, types.ErrStorage)
		}
		return nil
	})
}

// selectSpeakers filters speakers by id, keeping list order. Unknown ids are
// an error rather than silently ignored.
func selectSpeakers(speakers []types.SpeakerWithSegments, ids []string) ([]types.SpeakerWithSegments, error) {
	if len(ids) == 0 {
		return speakers, nil
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var selected []types.SpeakerWithSegments
	for _, sp := range speakers {
		if want[sp.ID] {
			selected = append(selected, sp)
			delete(want, sp.ID)
		}
	}
	for id := range want {
		return nil, fmt.Errorf("speaker %s: %w", id, types.ErrNotFound)
	}
	return selected, nil
}

// archiveEntries lays out speaker folders, de-duplicating equal display names.
func archiveEntries(speakers []types.SpeakerWithSegments) []storage.ArchiveEntry {
	used := make(map[string]int)
	var entries []storage.ArchiveEntry
	for _, sp := range speakers {
		folder := storage.SanitizeFilename(sp.DisplayName)
		used[folder]++
		if n := used[folder]; n > 1 {
			folder = fmt.Sprintf("%s (%d)", folder, n)
		}
		for _, seg := range sp.Segments {
			entries = append(entries, storage.ArchiveEntry{
				Name: folder + "/" + seg.AudioFilename,
				Rel:  seg.AudioPath,
			})
		}
	}
	return entries
}

// Save marks the project as saved by bumping its updated_at.
func (s *Service) Save(ctx context.Context, projectID string) (*types.Project, error) {
	release, err := s.locks.Exclusive(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	var p *types.Project
	err = s.db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.TouchProject(ctx, projectID); err != nil {
			return err
		}
		var err error
		p, err = tx.GetProject(ctx, projectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Project %s saved", projectID)
	return p, nil
}

// PublishToDrive uploads the JSON snapshot and transcript to Google Drive and
// returns the folder link. The project lock is released before uploading.
func (s *Service) PublishToDrive(ctx context.Context, projectID string) (string, error) {
	if s.publisher == nil {
		return "", fmt.Errorf("google drive is not configured: %w", types.ErrInvalidOperation)
	}

	var files []storage.DriveFile
	var folder string
	err := s.withSnapshot(ctx, projectID, func(snap *Snapshot) error {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		base := storage.SanitizeFilename(snap.Project.Title)
		folder = fmt.Sprintf("%s (%s)", base, snap.Project.ID)
		files = []storage.DriveFile{
			{Name: base + ".json", MimeType: "application/json", Data: data},
			{Name: base + "_transcript.txt", MimeType: "text/plain", Data: []byte(RenderTranscript(snap))},
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	var link string
	for attempt := 1; attempt <= 3; attempt++ {
		link, err = s.publisher.UploadExport(ctx, folder, files)
		if err == nil {
			break
		}
		log.Printf("Export: Google Drive upload attempt %d/3 for project %s failed: %v", attempt, projectID, err)
		if attempt < 3 {
			if werr := sleepCtx(ctx, attempt); werr != nil {
				return "", werr
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("google drive upload failed: %v: %w", err, types.ErrStorage)
	}
	log.Printf("Export: project %s published to %s", projectID, link)
	return link, nil
}
