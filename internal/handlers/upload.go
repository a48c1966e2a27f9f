package handlers

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/diarization-studio/internal/acquire"
	"github.com/codebuildervaibhav/diarization-studio/internal/queue"
	"github.com/codebuildervaibhav/diarization-studio/internal/transcription"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// Upload handles POST /api/diarization/upload (multipart field "file")
func (h *DiarizationHandler) Upload(c *fiber.Ctx) error {
	// Get uploaded file
	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file uploaded")
	}

	numSpeakers := 0
	if v := c.FormValue("num_speakers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "num_speakers must be a non-negative integer")
		}
		numSpeakers = n
	}

	// Validate file size
	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return badRequest(c, fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB))
	}

	// Validate file format
	if !transcription.ValidateMediaFormat(file.Filename) {
		return badRequest(c, fmt.Sprintf("Unsupported format, supported: %s", transcription.SupportedFormats()))
	}

	tempPath := filepath.Join(h.tempDir, fmt.Sprintf("upload-%s%s", uuid.New().String(), filepath.Ext(file.Filename)))
	if err := c.SaveFile(file, tempPath); err != nil {
		log.Printf("Failed to save uploaded file: %v", err)
		os.Remove(tempPath)
		return respondError(c, fmt.Errorf("failed to save upload: %v: %w", err, types.ErrStorage))
	}

	name := filepath.Base(file.Filename)
	return h.start(c, queue.Request{
		Source:      types.Source{Type: types.SourceUpload, Ref: name, Title: acquire.FileTitle(name)},
		LocalPath:   tempPath,
		Temporary:   true,
		SpeakerHint: numSpeakers,
	})
}
