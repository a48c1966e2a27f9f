package handlers

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/diarization-studio/internal/export"
	"github.com/codebuildervaibhav/diarization-studio/internal/storage"
)

// ExportHandler serves project exports.
type ExportHandler struct {
	service *export.Service
}

// NewExportHandler creates a new export handler
func NewExportHandler(service *export.Service) *ExportHandler {
	return &ExportHandler{service: service}
}

// JSON handles GET /api/export/:id/json
func (h *ExportHandler) JSON(c *fiber.Ctx) error {
	snap, err := h.service.JSON(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}

// Transcript handles GET /api/export/:id/transcript
func (h *ExportHandler) Transcript(c *fiber.Ctx) error {
	id := c.Params("id")
	text, err := h.service.Transcript(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s_transcript.txt"`, storage.SanitizeFilename(id)))
	c.Type("txt", "utf-8")
	return c.SendString(text)
}

// Audio handles GET /api/export/:id/audio?speaker_ids=a,b
func (h *ExportHandler) Audio(c *fiber.Ctx) error {
	id := c.Params("id")
	var buf bytes.Buffer
	if err := h.service.Audio(c.UserContext(), id, splitIDs(c.Query("speaker_ids")), &buf); err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s_audio.zip"`, storage.SanitizeFilename(id)))
	c.Type("zip")
	return c.Send(buf.Bytes())
}

// Save handles POST /api/export/:id/save
func (h *ExportHandler) Save(c *fiber.Ctx) error {
	project, err := h.service.Save(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(project)
}

// GDrive handles POST /api/export/:id/gdrive
func (h *ExportHandler) GDrive(c *fiber.Ctx) error {
	link, err := h.service.PublishToDrive(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"folder_link": link})
}

// splitIDs parses a comma-separated id list, dropping blanks.
func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
