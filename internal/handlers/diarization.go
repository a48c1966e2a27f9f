package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/diarization-studio/internal/acquire"
	"github.com/codebuildervaibhav/diarization-studio/internal/queue"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// TitleResolver looks up a display title for a URL source.
type TitleResolver interface {
	TitleOrFallback(ctx context.Context, url, fallback string) string
}

// DiarizationHandler starts, polls and retries diarization jobs.
type DiarizationHandler struct {
	workerPool *queue.WorkerPool
	titles     TitleResolver
	tempDir    string
	maxSizeMB  int
}

// NewDiarizationHandler creates a new diarization handler. titles may be nil.
func NewDiarizationHandler(workerPool *queue.WorkerPool, titles TitleResolver, tempDir string, maxSizeMB int) *DiarizationHandler {
	return &DiarizationHandler{
		workerPool: workerPool,
		titles:     titles,
		tempDir:    tempDir,
		maxSizeMB:  maxSizeMB,
	}
}

type startRequest struct {
	SourceURL   string `json:"source_url"`
	NumSpeakers int    `json:"num_speakers"`
}

// Start handles POST /api/diarization/start
func (h *DiarizationHandler) Start(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	url := strings.TrimSpace(req.SourceURL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return badRequest(c, "source_url must be an http(s) URL")
	}
	if req.NumSpeakers < 0 {
		return badRequest(c, "num_speakers must not be negative")
	}

	title := url
	if h.titles != nil {
		title = h.titles.TitleOrFallback(c.UserContext(), url, url)
	}

	return h.start(c, queue.Request{
		Source:      types.Source{Type: types.SourceURL, Ref: url, Title: title},
		SpeakerHint: req.NumSpeakers,
	})
}

type localRequest struct {
	FilePath    string `json:"file_path"`
	NumSpeakers int    `json:"num_speakers"`
}

// Local handles POST /api/diarization/local
func (h *DiarizationHandler) Local(c *fiber.Ctx) error {
	var req localRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.NumSpeakers < 0 {
		return badRequest(c, "num_speakers must not be negative")
	}

	path, err := acquire.ResolveLocalFile(strings.TrimSpace(req.FilePath))
	if err != nil {
		return respondError(c, err)
	}

	return h.start(c, queue.Request{
		Source:      types.Source{Type: types.SourceLocal, Ref: path, Title: acquire.FileTitle(path)},
		LocalPath:   path,
		SpeakerHint: req.NumSpeakers,
	})
}

// Status handles GET /api/diarization/:jobId/status
func (h *DiarizationHandler) Status(c *fiber.Ctx) error {
	status, err := h.workerPool.GetStatus(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

// Retry handles POST /api/diarization/:projectId/retry
func (h *DiarizationHandler) Retry(c *fiber.Ctx) error {
	handle, err := h.workerPool.Retry(c.UserContext(), c.Params("projectId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(handle)
}

func (h *DiarizationHandler) start(c *fiber.Ctx, req queue.Request) error {
	handle, err := h.workerPool.StartJob(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}

	// Return job ID immediately
	return c.Status(fiber.StatusAccepted).JSON(handle)
}
