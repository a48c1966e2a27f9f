package acquire

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/codebuildervaibhav/diarization-studio/internal/transcription"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// ResolveLocalFile validates a server-side path and returns it absolute.
func ResolveLocalFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file path is required: %w", types.ErrInvalidOperation)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", path, types.ErrInvalidOperation)
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("file %s: %w", path, types.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("file %s: %v: %w", path, err, types.ErrInvalidOperation)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file: %w", path, types.ErrInvalidOperation)
	}
	if !transcription.ValidateMediaFormat(abs) {
		return "", fmt.Errorf("unsupported format %q, supported: %s: %w",
			filepath.Ext(abs), transcription.SupportedFormats(), types.ErrInvalidOperation)
	}
	return abs, nil
}
