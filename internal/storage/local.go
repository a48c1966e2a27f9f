package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// TrashDir is the per-project folder holding soft-deleted audio.
const TrashDir = "_trash"

// AudioStore manages per-speaker segment files under <root>/<project>/.
// Paths handed in and out are slash-separated and relative to root, which is
// what the record store persists.
type AudioStore struct {
	root string
}

// NewAudioStore creates a new audio store rooted at dir
func NewAudioStore(dir string) *AudioStore {
	return &AudioStore{root: dir}
}

// Root returns the store's base directory.
func (as *AudioStore) Root() string {
	return as.root
}

// SpeakerPath builds the relative path of a file in a speaker folder.
func SpeakerPath(projectID, folder, filename string) string {
	return path.Join(projectID, folder, filename)
}

// TrashPath builds the relative path of a soft-deleted file.
func TrashPath(projectID, folder, filename string) string {
	return path.Join(projectID, TrashDir, folder, filename)
}

// Abs resolves a relative store path, refusing paths that escape the root.
func (as *AudioStore) Abs(rel string) (string, error) {
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", fmt.Errorf("empty audio path")
	}
	return filepath.Join(as.root, filepath.FromSlash(clean[1:])), nil
}

// ProjectDir returns the absolute directory of a project.
func (as *AudioStore) ProjectDir(projectID string) string {
	return filepath.Join(as.root, projectID)
}

// Exists reports whether a relative path is a regular file.
func (as *AudioStore) Exists(rel string) bool {
	abs, err := as.Abs(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

// Open opens a stored file for reading.
func (as *AudioStore) Open(rel string) (*os.File, error) {
	abs, err := as.Abs(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(abs)
}

// WriteFile durably writes data at rel, failing if the file already exists.
func (as *AudioStore) WriteFile(rel string, data []byte) error {
	abs, err := as.Abs(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return writeDurable(abs, int64(len(data)), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// ImportFile copies an external file (for example a freshly cut clip) to rel.
func (as *AudioStore) ImportFile(rel, src string) error {
	abs, err := as.Abs(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return copyFile(src, abs)
}

// Stage places a second copy of srcRel at dstRel without touching the source.
// A hard link is used when possible, otherwise copy, fsync and size check.
// If dstRel is taken a numbered variant is chosen; the final path is returned.
func (as *AudioStore) Stage(srcRel, dstRel string) (string, error) {
	src, err := as.Abs(srcRel)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("source %s: %w", srcRel, err)
	}

	dstRel, err = as.freePath(dstRel)
	if err != nil {
		return "", err
	}
	dst, _ := as.Abs(dstRel)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.Link(src, dst); err == nil {
		return dstRel, nil
	}
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	return dstRel, nil
}

// Discard removes a file. A missing file is not an error.
func (as *AudioStore) Discard(rel string) error {
	abs, err := as.Abs(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	return nil
}

// RemoveProject deletes the whole directory tree of a project.
func (as *AudioStore) RemoveProject(projectID string) error {
	if projectID == "" || strings.ContainsAny(projectID, `/\`) || projectID == ".." {
		return fmt.Errorf("invalid project id %q", projectID)
	}
	if err := os.RemoveAll(as.ProjectDir(projectID)); err != nil {
		return fmt.Errorf("failed to remove project directory: %w", err)
	}
	return nil
}

// ProjectDirs lists the project directories present on disk.
func (as *AudioStore) ProjectDirs() ([]string, error) {
	entries, err := os.ReadDir(as.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading audio root: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// WalkProject calls fn with the relative path of every file in a project.
func (as *AudioStore) WalkProject(projectID string, fn func(rel string, info fs.FileInfo) error) error {
	dir := as.ProjectDir(projectID)
	return filepath.Walk(dir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(as.root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), info)
	})
}

// freePath returns rel, or rel with a numeric suffix when rel is already taken.
func (as *AudioStore) freePath(rel string) (string, error) {
	ext := path.Ext(rel)
	base := strings.TrimSuffix(rel, ext)
	candidate := rel
	for i := 1; i < 1000; i++ {
		abs, err := as.Abs(candidate)
		if err != nil {
			return "", err
		}
		if _, err := os.Lstat(abs); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
	return "", fmt.Errorf("no free file name for %s", rel)
}

// copyFile copies src to dst through a temp file, verifying the copied size.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	return writeDurable(dst, info.Size(), func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// writeDurable writes through a temp file in the target directory, fsyncs,
// checks the size and links it into place so dst never holds partial content.
func writeDurable(dst string, wantSize int64, write func(w io.Writer) error) error {
	tmp := filepath.Join(filepath.Dir(dst), fmt.Sprintf(".tmp-%s", uuid.New().String()))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp)

	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if info.Size() != wantSize {
		return fmt.Errorf("size mismatch for %s: wrote %d, want %d", dst, info.Size(), wantSize)
	}

	// Link rather than rename so an existing dst is never overwritten.
	if err := os.Link(tmp, dst); err != nil {
		return fmt.Errorf("failed to place %s: %w", dst, err)
	}
	return nil
}

// SanitizeFilename makes a display string safe to use as a single path element.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-",
		"\"", "-", "<", "-", ">", "-", "|", "-",
	)
	result := strings.TrimSpace(replacer.Replace(name))
	result = strings.Trim(result, ".")
	if result == "" {
		result = "untitled"
	}
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}
