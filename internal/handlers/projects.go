package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/diarization-studio/internal/engine"
)

// ProjectHandler serves projects, speakers and trash.
type ProjectHandler struct {
	engine *engine.Engine
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(eng *engine.Engine) *ProjectHandler {
	return &ProjectHandler{engine: eng}
}

// List handles GET /api/projects
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 {
		limit = 50
	}
	projects, err := h.engine.ListProjects(c.UserContext(), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(projects)
}

// Get handles GET /api/projects/:id
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	project, err := h.engine.GetProject(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(project)
}

// Delete handles DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.engine.DeleteProject(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": id})
}

// DeleteAll handles DELETE /api/projects
func (h *ProjectHandler) DeleteAll(c *fiber.Ctx) error {
	result, err := h.engine.DeleteAllProjects(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// Speakers handles GET /api/projects/:id/speakers
func (h *ProjectHandler) Speakers(c *fiber.Ctx) error {
	speakers, err := h.engine.ListSpeakers(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(speakers)
}

// Trash handles GET /api/projects/:id/trash
func (h *ProjectHandler) Trash(c *fiber.Ctx) error {
	trash, err := h.engine.ListTrash(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(trash)
}

type renameRequest struct {
	DisplayName string `json:"display_name"`
}

// RenameSpeaker handles PUT /api/projects/:id/speakers/:sid
func (h *ProjectHandler) RenameSpeaker(c *fiber.Ctx) error {
	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	speaker, err := h.engine.RenameSpeaker(c.UserContext(), c.Params("id"), c.Params("sid"), req.DisplayName)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(speaker)
}

type mergeRequest struct {
	SourceSpeakerID string `json:"source_speaker_id"`
	TargetSpeakerID string `json:"target_speaker_id"`
}

// MergeSpeakers handles POST /api/projects/:id/speakers/merge
func (h *ProjectHandler) MergeSpeakers(c *fiber.Ctx) error {
	var req mergeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.SourceSpeakerID == "" || req.TargetSpeakerID == "" {
		return badRequest(c, "source_speaker_id and target_speaker_id are required")
	}
	merged, err := h.engine.MergeSpeakers(c.UserContext(), c.Params("id"), req.SourceSpeakerID, req.TargetSpeakerID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(merged)
}

// DeleteSpeakerSegments handles DELETE /api/projects/:id/speakers/:sid/segments
func (h *ProjectHandler) DeleteSpeakerSegments(c *fiber.Ctx) error {
	result, err := h.engine.DeleteAllSegmentsForSpeaker(c.UserContext(), c.Params("id"), c.Params("sid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}
