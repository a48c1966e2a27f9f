package storage

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"time"
)

// ArchiveEntry maps a stored file to its name inside an archive.
type ArchiveEntry struct {
	Name string // slash-separated path inside the archive
	Rel  string // store-relative source path
}

// WriteArchive zips entries in the given order. Every entry is stamped with
// the same modification time, so equal inputs produce byte-identical archives.
func (as *AudioStore) WriteArchive(w io.Writer, entries []ArchiveEntry, modified time.Time) error {
	zw := zip.NewWriter(w)

	for _, e := range entries {
		if err := as.addToArchive(zw, e, modified); err != nil {
			zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

func (as *AudioStore) addToArchive(zw *zip.Writer, e ArchiveEntry, modified time.Time) error {
	f, err := as.Open(e.Rel)
	if err != nil {
		log.Printf("Archive: skipping %s: %v", e.Rel, err)
		return nil
	}
	defer f.Close()

	hdr := &zip.FileHeader{
		Name:     e.Name,
		Method:   zip.Deflate,
		Modified: modified.UTC(),
	}
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", e.Name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", e.Name, err)
	}
	return nil
}
