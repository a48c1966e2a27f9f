package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means a referenced project, speaker, segment, trash entry or job does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation means the operation is illegal given the current state.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrJobFailure marks a terminal acquisition or diarization failure.
	ErrJobFailure = errors.New("job failed")

	// ErrStorage means a file-system or database step failed and the operation was rolled back.
	ErrStorage = errors.New("storage failure")

	// ErrConcurrencyConflict means the project lock could not be acquired in time.
	ErrConcurrencyConflict = errors.New("project is busy")
)

// JobError is a stage-aware collaborator failure recorded on the job.
type JobError struct {
	Stage   string
	Message string
	Err     error
}

func (e *JobError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrJobFailure) match any JobError.
func (e *JobError) Is(target error) bool { return target == ErrJobFailure }

// BatchError reports a batch mutation that was rolled back as a whole.
// Failed lists the segment ids that were not moved.
type BatchError struct {
	Failed []string
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch failed, %d segment(s) not moved [%s]: %v",
		len(e.Failed), strings.Join(e.Failed, ", "), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
