package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeInvalidOperation = "ERR_INVALID_OPERATION"
	CodeNotFound         = "ERR_NOT_FOUND"
	CodeConflict         = "ERR_CONFLICT"
	CodeStorage          = "ERR_STORAGE"
	CodeJobFailed        = "ERR_JOB_FAILED"
	CodeInternal         = "ERR_INTERNAL"
)

// classify maps an error to its HTTP status and code. InvalidOperation is
// checked first: a merge naming a missing speaker carries both.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrInvalidOperation):
		return fiber.StatusBadRequest, CodeInvalidOperation
	case errors.Is(err, types.ErrNotFound):
		return fiber.StatusNotFound, CodeNotFound
	case errors.Is(err, types.ErrConcurrencyConflict):
		return fiber.StatusConflict, CodeConflict
	case errors.Is(err, types.ErrStorage):
		return fiber.StatusInternalServerError, CodeStorage
	case errors.Is(err, types.ErrJobFailure):
		return fiber.StatusInternalServerError, CodeJobFailed
	default:
		return fiber.StatusInternalServerError, CodeInternal
	}
}

// respondError writes the JSON error body for err.
func respondError(c *fiber.Ctx, err error) error {
	status, code := classify(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Method(), c.Path(), err)
	}

	body := fiber.Map{
		"error": err.Error(),
		"code":  code,
	}
	var batch *types.BatchError
	if errors.As(err, &batch) {
		body["failed_segment_ids"] = batch.Failed
	}
	return c.Status(status).JSON(body)
}

// badRequest rejects malformed input before it reaches a service.
func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"code":  CodeInvalidOperation,
	})
}
