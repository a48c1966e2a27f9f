package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Handlers groups every route handler of the API.
type Handlers struct {
	Diarization *DiarizationHandler
	Projects    *ProjectHandler
	Segments    *SegmentHandler
	Export      *ExportHandler
	Stream      *StreamHandler
}

// Register mounts the REST API under /api and the stream under /ws/stream.
func (h *Handlers) Register(app *fiber.App) {
	api := app.Group("/api")

	diarization := api.Group("/diarization")
	diarization.Post("/start", h.Diarization.Start)
	diarization.Post("/upload", h.Diarization.Upload)
	diarization.Post("/local", h.Diarization.Local)
	diarization.Post("/gdrive", h.Diarization.GDrive)
	diarization.Get("/:jobId/status", h.Diarization.Status)
	diarization.Post("/:projectId/retry", h.Diarization.Retry)

	projects := api.Group("/projects")
	projects.Get("/", h.Projects.List)
	projects.Delete("/", h.Projects.DeleteAll)
	projects.Get("/:id", h.Projects.Get)
	projects.Delete("/:id", h.Projects.Delete)
	projects.Get("/:id/trash", h.Projects.Trash)

	projects.Get("/:id/speakers", h.Projects.Speakers)
	projects.Post("/:id/speakers/merge", h.Projects.MergeSpeakers)
	projects.Put("/:id/speakers/:sid", h.Projects.RenameSpeaker)
	projects.Delete("/:id/speakers/:sid/segments", h.Projects.DeleteSpeakerSegments)

	projects.Put("/:id/segments/:segId", h.Segments.UpdateTranscription)
	projects.Put("/:id/segments/:segId/reassign", h.Segments.Reassign)
	projects.Delete("/:id/segments/:segId", h.Segments.Delete)
	projects.Post("/:id/segments/:segId/restore", h.Segments.Restore)
	projects.Post("/:id/segments/:segId/transcribe", h.Segments.Transcribe)

	api.Get("/audio/:projectId/:speakerId/:filename", h.Segments.Audio)

	exports := api.Group("/export")
	exports.Get("/:id/json", h.Export.JSON)
	exports.Get("/:id/transcript", h.Export.Transcript)
	exports.Get("/:id/audio", h.Export.Audio)
	exports.Post("/:id/save", h.Export.Save)
	exports.Post("/:id/gdrive", h.Export.GDrive)

	if h.Stream != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/stream", websocket.New(h.Stream.Handle))
	}
}
