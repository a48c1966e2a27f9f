// Package acquire brings source media onto local disk: yt-dlp for web
// videos, direct download for Google Drive share links, and validation of
// files that are already local.
package acquire

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

const defaultDriveBase = "https://drive.google.com"

// Fetcher downloads remote sources into a job's work directory.
type Fetcher struct {
	ytdlpPath string
	driveBase string
	client    *http.Client
}

// NewFetcher creates a fetcher using the given yt-dlp binary ("yt-dlp" if empty).
func NewFetcher(ytdlpPath string) *Fetcher {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	return &Fetcher{
		ytdlpPath: ytdlpPath,
		driveBase: defaultDriveBase,
		client:    &http.Client{Timeout: 30 * time.Minute},
	}
}

// Fetch implements transcription.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, src types.Source, workDir string) (string, error) {
	switch src.Type {
	case types.SourceURL:
		return f.downloadWithYtDlp(ctx, src.Ref, workDir)
	case types.SourceGDrive:
		fileID := ExtractDriveFileID(src.Ref)
		if fileID == "" {
			return "", fmt.Errorf("invalid Google Drive URL: %s", src.Ref)
		}
		return f.downloadDriveFile(ctx, fileID, workDir)
	default:
		return "", fmt.Errorf("source type %q cannot be downloaded", src.Type)
	}
}

// downloadWithYtDlp extracts the audio of a web video as MP3.
func (f *Fetcher) downloadWithYtDlp(ctx context.Context, url, workDir string) (string, error) {
	log.Printf("Using yt-dlp to download: %s", url)

	template := filepath.Join(workDir, "source.%(ext)s")
	cmd := exec.CommandContext(ctx, f.ytdlpPath,
		"-x",                    // Extract audio
		"--audio-format", "mp3", // MP3 like the stored clips
		"--no-playlist",
		"-o", template,
		url,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp failed: %v\nOutput: %s", err, string(output))
	}

	path := filepath.Join(workDir, "source.mp3")
	if _, err := os.Stat(path); err != nil {
		matches, _ := filepath.Glob(filepath.Join(workDir, "source.*"))
		if len(matches) == 0 {
			return "", fmt.Errorf("yt-dlp produced no output file")
		}
		path = matches[0]
	}

	log.Printf("Audio downloaded successfully: %s", filepath.Base(path))
	return path, nil
}

// FileTitle derives a project title from a file name.
func FileTitle(name string) string {
	base := filepath.Base(name)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	if title == "" || title == "." {
		return "untitled"
	}
	return title
}
