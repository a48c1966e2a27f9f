package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/diarization-studio/internal/acquire"
	"github.com/codebuildervaibhav/diarization-studio/internal/queue"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// GDriveRequest represents the Google Drive link request
type GDriveRequest struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	NumSpeakers int    `json:"num_speakers"`
}

// GDrive handles POST /api/diarization/gdrive
func (h *DiarizationHandler) GDrive(c *fiber.Ctx) error {
	var req GDriveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	// Validate Google Drive URL
	url := strings.TrimSpace(req.URL)
	if acquire.ExtractDriveFileID(url) == "" {
		return badRequest(c, "Invalid Google Drive URL")
	}
	if req.NumSpeakers < 0 {
		return badRequest(c, "num_speakers must not be negative")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "gdrive_file"
	}

	return h.start(c, queue.Request{
		Source:      types.Source{Type: types.SourceGDrive, Ref: url, Title: name},
		SpeakerHint: req.NumSpeakers,
	})
}
