package storage

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStageKeepsSourceAndAvoidsCollisions(t *testing.T) {
	as := NewAudioStore(t.TempDir())
	src := SpeakerPath("p1", "speaker_00", "001.mp3")
	if err := as.WriteFile(src, []byte("audio-1")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	taken := SpeakerPath("p1", "speaker_01", "001.mp3")
	if err := as.WriteFile(taken, []byte("other")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := as.Stage(src, taken)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if got != "p1/speaker_01/001_1.mp3" {
		t.Fatalf("staged path = %q", got)
	}
	if !as.Exists(src) {
		t.Fatal("stage must not remove the source")
	}

	f, err := as.Open(got)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "audio-1" {
		t.Fatalf("staged content = %q", data)
	}

	if err := as.Discard(src); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if err := as.Discard(src); err != nil {
		t.Fatalf("second Discard should be a no-op: %v", err)
	}
	if as.Exists(src) {
		t.Fatal("source still exists after discard")
	}
}

func TestWriteFileRefusesOverwrite(t *testing.T) {
	as := NewAudioStore(t.TempDir())
	rel := SpeakerPath("p1", "speaker_00", "001.mp3")
	if err := as.WriteFile(rel, []byte("a")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := as.WriteFile(rel, []byte("b")); err == nil {
		t.Fatal("expected overwrite to fail")
	}
	entries, _ := os.ReadDir(filepath.Join(as.Root(), "p1", "speaker_00"))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestAbsRejectsEscapes(t *testing.T) {
	as := NewAudioStore("/data/audio")
	got, err := as.Abs("../../etc/passwd")
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	if got != filepath.Join("/data/audio", "etc", "passwd") {
		t.Fatalf("Abs escaped root: %q", got)
	}
	if _, err := as.Abs(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRemoveProjectAndProjectDirs(t *testing.T) {
	as := NewAudioStore(t.TempDir())
	for _, rel := range []string{
		SpeakerPath("p1", "speaker_00", "001.mp3"),
		TrashPath("p1", "speaker_00", "002.mp3"),
		SpeakerPath("p2", "speaker_00", "001.mp3"),
	} {
		if err := as.WriteFile(rel, []byte("x")); err != nil {
			t.Fatalf("WriteFile %s: %v", rel, err)
		}
	}

	var files []string
	if err := as.WalkProject("p1", func(rel string, _ os.FileInfo) error {
		files = append(files, rel)
		return nil
	}); err != nil {
		t.Fatalf("WalkProject: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("p1 files = %v", files)
	}

	if err := as.RemoveProject("p1"); err != nil {
		t.Fatalf("RemoveProject: %v", err)
	}
	dirs, err := as.ProjectDirs()
	if err != nil {
		t.Fatalf("ProjectDirs: %v", err)
	}
	if len(dirs) != 1 || dirs[0] != "p2" {
		t.Fatalf("project dirs = %v", dirs)
	}
	if err := as.RemoveProject("../x"); err == nil {
		t.Fatal("expected invalid project id error")
	}
}

func TestWriteArchiveIsDeterministic(t *testing.T) {
	as := NewAudioStore(t.TempDir())
	if err := as.WriteFile("p1/a/001.mp3", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := as.WriteFile("p1/b/001.mp3", []byte("two")); err != nil {
		t.Fatal(err)
	}
	entries := []ArchiveEntry{
		{Name: "Alice/001.mp3", Rel: "p1/a/001.mp3"},
		{Name: "Bob/001.mp3", Rel: "p1/b/001.mp3"},
		{Name: "Bob/missing.mp3", Rel: "p1/b/missing.mp3"},
	}
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var first, second bytes.Buffer
	if err := as.WriteArchive(&first, entries, stamp); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}
	if err := as.WriteArchive(&second, entries, stamp); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Fatal("archives differ for identical input")
	}

	zr, err := zip.NewReader(bytes.NewReader(first.Bytes()), int64(first.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("archive entries = %d, want 2 (missing file skipped)", len(zr.File))
	}
	if zr.File[0].Name != "Alice/001.mp3" {
		t.Fatalf("first entry = %q", zr.File[0].Name)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Alice":        "Alice",
		"a/b\\c":       "a-b-c",
		"  ..  ":       "untitled",
		"What? <Now>":  "What- -Now-",
		"":             "untitled",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
