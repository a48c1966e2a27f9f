package cleanup

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Scheduler periodically removes stale temp files and reconciles the audio
// store against the record store.
type Scheduler struct {
	tempDir         string
	intervalMinutes int
	maxAgeHours     int
	reconciler      *Reconciler
	stopChan        chan struct{}
}

// NewScheduler creates a new cleanup scheduler. reconciler may be nil.
func NewScheduler(tempDir string, intervalMinutes, maxAgeHours int, reconciler *Reconciler) *Scheduler {
	if intervalMinutes < 1 {
		intervalMinutes = 60
	}
	if maxAgeHours < 1 {
		maxAgeHours = 24
	}
	return &Scheduler{
		tempDir:         tempDir,
		intervalMinutes: intervalMinutes,
		maxAgeHours:     maxAgeHours,
		reconciler:      reconciler,
		stopChan:        make(chan struct{}),
	}
}

// Start begins the cleanup scheduler
func (s *Scheduler) Start() {
	// Run initial cleanup on startup
	log.Println("Running initial cleanup...")
	s.runOnce()

	ticker := time.NewTicker(time.Duration(s.intervalMinutes) * time.Minute)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	log.Printf("Cleanup scheduler started (interval: %dm, max age: %dh)",
		s.intervalMinutes, s.maxAgeHours)
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	log.Println("Cleanup scheduler stopped")
}

func (s *Scheduler) runOnce() {
	s.cleanOldFiles(time.Now())
	if s.reconciler == nil {
		return
	}
	if _, err := s.reconciler.Run(context.Background()); err != nil {
		log.Printf("Reconcile failed: %v", err)
	}
}

// cleanOldFiles removes files older than maxAgeHours from temp directory,
// then any directories left empty.
func (s *Scheduler) cleanOldFiles(now time.Time) {
	maxAge := time.Duration(s.maxAgeHours) * time.Hour

	var deletedCount int
	var deletedSize int64
	var dirs []string

	err := filepath.Walk(s.tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}

		if info.IsDir() {
			if path != s.tempDir {
				dirs = append(dirs, path)
			}
			return nil
		}

		age := now.Sub(info.ModTime())
		if age > maxAge {
			size := info.Size()
			if err := os.Remove(path); err != nil {
				log.Printf("Failed to delete old file %s: %v", path, err)
			} else {
				deletedCount++
				deletedSize += size
				log.Printf("Deleted old temp file: %s (age: %s, size: %dKB)",
					filepath.Base(path), age.Round(time.Hour), size/1024)
			}
		}

		return nil
	})

	if err != nil {
		log.Printf("Error during cleanup: %v", err)
	}

	// Deepest first so parents empty out before they are tried.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		os.Remove(dir) // fails harmlessly when not empty
	}

	if deletedCount > 0 {
		log.Printf("Cleanup complete: %d files deleted, %.2fMB freed",
			deletedCount, float64(deletedSize)/(1024*1024))
	}
}

// EnsureDirExists creates a directory if it doesn't exist
func EnsureDirExists(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	log.Printf("Directory ready: %s", dir)
	return nil
}
