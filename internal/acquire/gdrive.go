package acquire

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/codebuildervaibhav/diarization-studio/internal/storage"
)

var (
	// https://drive.google.com/file/d/{ID}/view
	driveFilePattern = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	// https://drive.google.com/open?id={ID}
	driveQueryPattern = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	// bare ID (25-40 characters)
	driveIDPattern = regexp.MustCompile(`^([a-zA-Z0-9_-]{25,40})$`)
)

// ExtractDriveFileID extracts the file ID from various Google Drive URL formats
func ExtractDriveFileID(url string) string {
	for _, re := range []*regexp.Regexp{driveFilePattern, driveQueryPattern, driveIDPattern} {
		if matches := re.FindStringSubmatch(url); len(matches) > 1 {
			return matches[1]
		}
	}
	return ""
}

// downloadDriveFile fetches a publicly shared Drive file.
func (f *Fetcher) downloadDriveFile(ctx context.Context, fileID, workDir string) (string, error) {
	downloadURL := fmt.Sprintf("%s/uc?export=download&id=%s", f.driveBase, fileID)
	log.Printf("Downloading from Google Drive: %s", fileID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download file from Google Drive: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("file not accessible (status %d, may be private or doesn't exist)", resp.StatusCode)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		return "", fmt.Errorf("file not accessible: Drive returned a web page instead of the file")
	}

	name := driveFileName(resp.Header.Get("Content-Disposition"), fileID)
	path := filepath.Join(workDir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to save downloaded file: %v", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("failed to write downloaded file: %v", err)
	}
	return path, nil
}

// driveFileName picks a local name, keeping the extension Drive reports.
func driveFileName(disposition, fileID string) string {
	ext := ".mp3"
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if e := strings.ToLower(filepath.Ext(params["filename"])); e != "" {
			ext = e
		}
	}
	return storage.SanitizeFilename("gdrive_"+fileID) + ext
}
