package queue

import (
	"context"
	"time"

	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// Request describes a diarization run: where the audio comes from and how
// many speakers to expect (0 lets the diarizer decide).
type Request struct {
	Source      types.Source
	LocalPath   string // file already on this machine (upload, stream, local path)
	Temporary   bool   // LocalPath is owned by the job and removed when it ends
	SpeakerHint int
}

// Producer turns a request into a raw diarization result. It stands for the
// acquisition and diarization collaborators; workDir is scratch space removed
// after the job.
type Producer interface {
	Produce(ctx context.Context, req Request, workDir string, progress func(string)) (*types.RawDiarizationResult, error)
}

// Job is a queued diarization run for one project.
type Job struct {
	ID        string
	ProjectID string
	Request   Request
	CreatedAt time.Time
}

// NewJob creates a new job with default values
func NewJob(id, projectID string, req Request) *Job {
	return &Job{
		ID:        id,
		ProjectID: projectID,
		Request:   req,
		CreatedAt: time.Now(),
	}
}

// Handle is returned when a job is accepted.
type Handle struct {
	JobID     string `json:"job_id"`
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
}

// Status is the polling view of a job.
type Status struct {
	JobID        string `json:"job_id"`
	ProjectID    string `json:"project_id"`
	Status       string `json:"status"`
	Progress     string `json:"progress"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Terminal reports whether the job has stopped.
func (s *Status) Terminal() bool {
	return !types.IsActiveStatus(s.Status)
}
