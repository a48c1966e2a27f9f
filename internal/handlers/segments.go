package handlers

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/diarization-studio/internal/engine"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// Transcriber turns one audio clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// SegmentHandler serves segment mutations and audio bytes.
type SegmentHandler struct {
	engine      *engine.Engine
	transcriber Transcriber
	tempDir     string
}

// NewSegmentHandler creates a new segment handler. transcriber may be nil,
// which disables automatic transcription.
func NewSegmentHandler(eng *engine.Engine, transcriber Transcriber, tempDir string) *SegmentHandler {
	return &SegmentHandler{
		engine:      eng,
		transcriber: transcriber,
		tempDir:     tempDir,
	}
}

type transcriptionRequest struct {
	Transcription *string `json:"transcription"`
}

// UpdateTranscription handles PUT /api/projects/:id/segments/:segId
func (h *SegmentHandler) UpdateTranscription(c *fiber.Ctx) error {
	var req transcriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Transcription == nil {
		return badRequest(c, "transcription is required")
	}
	seg, err := h.engine.UpdateTranscription(c.UserContext(), c.Params("id"), c.Params("segId"), *req.Transcription)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(seg)
}

type reassignRequest struct {
	NewSpeakerID string `json:"new_speaker_id"`
}

// Reassign handles PUT /api/projects/:id/segments/:segId/reassign
func (h *SegmentHandler) Reassign(c *fiber.Ctx) error {
	var req reassignRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.NewSpeakerID == "" {
		return badRequest(c, "new_speaker_id is required")
	}
	result, err := h.engine.Reassign(c.UserContext(), c.Params("id"), c.Params("segId"), req.NewSpeakerID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// Delete handles DELETE /api/projects/:id/segments/:segId
func (h *SegmentHandler) Delete(c *fiber.Ctx) error {
	entry, err := h.engine.DeleteSegment(c.UserContext(), c.Params("id"), c.Params("segId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(entry)
}

// Restore handles POST /api/projects/:id/segments/:segId/restore
func (h *SegmentHandler) Restore(c *fiber.Ctx) error {
	result, err := h.engine.RestoreSegment(c.UserContext(), c.Params("id"), c.Params("segId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// Transcribe handles POST /api/projects/:id/segments/:segId/transcribe. The
// clip is copied out under the shared lock so the model runs unlocked; the
// result is then written like a manual edit.
func (h *SegmentHandler) Transcribe(c *fiber.Ctx) error {
	if h.transcriber == nil {
		return respondError(c, fmt.Errorf("automatic transcription is disabled: %w", types.ErrInvalidOperation))
	}
	ctx := c.UserContext()
	projectID, segmentID := c.Params("id"), c.Params("segId")

	seg, data, err := h.engine.SegmentAudio(ctx, projectID, segmentID)
	if err != nil {
		return respondError(c, err)
	}

	clip := filepath.Join(h.tempDir, fmt.Sprintf("transcribe-%s%s", uuid.New().String(), filepath.Ext(seg.AudioFilename)))
	if err := os.WriteFile(clip, data, 0644); err != nil {
		return respondError(c, fmt.Errorf("failed to stage clip: %v: %w", err, types.ErrStorage))
	}
	defer os.Remove(clip)

	text, err := h.transcriber.Transcribe(ctx, clip)
	if err != nil {
		log.Printf("Transcription of segment %s (project %s) failed: %v", segmentID, projectID, err)
		return respondError(c, &types.JobError{Stage: "transcription", Message: "whisper failed", Err: err})
	}

	updated, err := h.engine.UpdateTranscription(ctx, projectID, segmentID, strings.TrimSpace(text))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(updated)
}

// Audio handles GET /api/audio/:projectId/:speakerId/:filename
func (h *SegmentHandler) Audio(c *fiber.Ctx) error {
	filename := c.Params("filename")
	data, err := h.engine.ReadAudio(c.UserContext(), c.Params("projectId"), c.Params("speakerId"), filename)
	if err != nil {
		return respondError(c, err)
	}
	c.Type(strings.TrimPrefix(filepath.Ext(filename), "."))
	return c.Send(data)
}
