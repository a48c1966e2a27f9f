package cleanup

import (
	"context"
	"fmt"
	"io/fs"
	"log"

	"github.com/codebuildervaibhav/diarization-studio/internal/projectlock"
	"github.com/codebuildervaibhav/diarization-studio/internal/storage"
)

// Reconciler removes audio files that no record references: leftovers of a
// crash between staging and discarding, and directories of deleted projects.
// Busy projects are skipped and picked up on a later run.
type Reconciler struct {
	db    *storage.MetadataDB
	audio *storage.AudioStore
	locks *projectlock.Registry
}

// NewReconciler creates a reconciler over the given stores.
func NewReconciler(db *storage.MetadataDB, audio *storage.AudioStore, locks *projectlock.Registry) *Reconciler {
	return &Reconciler{db: db, audio: audio, locks: locks}
}

// Report summarizes one reconcile pass.
type Report struct {
	OrphanFiles    int
	OrphanProjects int
	Skipped        int
}

// Run performs one reconcile pass.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	dirs, err := r.audio.ProjectDirs()
	if err != nil {
		return nil, err
	}

	var ids []string
	err = r.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		ids, err = tx.ListProjectIDs(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	report := &Report{}
	for _, dir := range dirs {
		release, ok := r.locks.TryExclusive(dir)
		if !ok {
			report.Skipped++
			continue
		}
		err := r.reconcileProject(ctx, dir, known[dir], report)
		release()
		if err != nil {
			log.Printf("Reconcile: project %s: %v", dir, err)
			report.Skipped++
		}
	}

	if report.OrphanFiles > 0 || report.OrphanProjects > 0 {
		log.Printf("Reconcile complete: %d orphan files, %d orphan project dirs removed",
			report.OrphanFiles, report.OrphanProjects)
	}
	return report, nil
}

func (r *Reconciler) reconcileProject(ctx context.Context, projectID string, known bool, report *Report) error {
	if !known {
		// The row may have been created since the listing.
		exists, err := r.projectExists(ctx, projectID)
		if err != nil || exists {
			return err
		}
		if err := r.audio.RemoveProject(projectID); err != nil {
			return err
		}
		report.OrphanProjects++
		log.Printf("Reconcile: removed directory of deleted project %s", projectID)
		return nil
	}

	var refs map[string]struct{}
	busy := false
	err := r.db.WithTx(ctx, func(tx *storage.Tx) error {
		job, err := tx.ActiveJob(ctx, projectID)
		if err != nil {
			return err
		}
		if job != nil {
			busy = true
			return nil
		}
		refs, err = tx.ReferencedAudioPaths(ctx, projectID)
		return err
	})
	if err != nil {
		return err
	}
	if busy {
		report.Skipped++
		return nil
	}

	var orphans []string
	err = r.audio.WalkProject(projectID, func(rel string, _ fs.FileInfo) error {
		if _, ok := refs[rel]; !ok {
			orphans = append(orphans, rel)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk: %w", err)
	}

	for _, rel := range orphans {
		if err := r.audio.Discard(rel); err != nil {
			log.Printf("Reconcile: failed to remove %s: %v", rel, err)
			continue
		}
		report.OrphanFiles++
		log.Printf("Reconcile: removed unreferenced file %s", rel)
	}
	return nil
}

func (r *Reconciler) projectExists(ctx context.Context, projectID string) (bool, error) {
	var ids []string
	err := r.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		ids, err = tx.ListProjectIDs(ctx)
		return err
	})
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == projectID {
			return true, nil
		}
	}
	return false, nil
}
