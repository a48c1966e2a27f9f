package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/diarization-studio/internal/projectlock"
	"github.com/codebuildervaibhav/diarization-studio/internal/storage"
	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// InterruptedMessage is recorded on jobs that were running when the process stopped.
const InterruptedMessage = "interrupted by server restart"

// WorkerPool is the job orchestrator: it records projects and jobs, runs the
// producer in background workers and populates the stores from the result.
type WorkerPool struct {
	jobQueue    chan *Job
	workerCount int
	producer    Producer
	db          *storage.MetadataDB
	audio       *storage.AudioStore
	locks       *projectlock.Registry
	tempDir     string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(
	workerCount int,
	queueSize int,
	producer Producer,
	db *storage.MetadataDB,
	audio *storage.AudioStore,
	locks *projectlock.Registry,
	tempDir string,
) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobQueue:    make(chan *Job, queueSize),
		workerCount: workerCount,
		producer:    producer,
		db:          db,
		audio:       audio,
		locks:       locks,
		tempDir:     tempDir,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start initializes all workers
func (wp *WorkerPool) Start() {
	log.Printf("Starting worker pool with %d workers", wp.workerCount)
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels running jobs and waits for the workers to exit. Jobs still
// queued stay pending and are failed by RecoverInterrupted on the next start.
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
	log.Println("Worker pool stopped")
}

// RecoverInterrupted fails jobs left pending or processing by a previous run.
func (wp *WorkerPool) RecoverInterrupted(ctx context.Context) (int, error) {
	var n int
	err := wp.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		n, err = tx.FailInterruptedJobs(ctx, InterruptedMessage)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if n > 0 {
		log.Printf("Marked %d interrupted job(s) as failed", n)
	}
	return n, nil
}

// StartJob creates a pending project and job for req and queues it. It
// returns immediately; progress is observed through GetStatus.
func (wp *WorkerPool) StartJob(ctx context.Context, req Request) (*Handle, error) {
	title := req.Source.Title
	if title == "" {
		title = req.Source.Ref
	}
	project := &types.Project{
		ID:          uuid.New().String(),
		SourceRef:   req.Source.Ref,
		SourceType:  req.Source.Type,
		Title:       title,
		Status:      types.StatusPending,
		Progress:    "Queued",
		SpeakerHint: req.SpeakerHint,
	}
	job := NewJob(uuid.New().String(), project.ID, req)

	err := wp.db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.CreateProject(ctx, project); err != nil {
			return err
		}
		return tx.CreateJob(ctx, &types.Job{
			ID: job.ID, ProjectID: project.ID, Status: types.StatusPending, Progress: "Queued",
		})
	})
	if err != nil {
		wp.releaseInput(job)
		return nil, fmt.Errorf("failed to record job: %v: %w", err, types.ErrStorage)
	}

	if err := wp.enqueue(job); err != nil {
		return nil, err
	}
	return &Handle{JobID: job.ID, ProjectID: project.ID, Status: types.StatusPending}, nil
}

// Retry runs diarization again on an existing project, replacing its previous
// results. It is rejected while the project has an active job, and for
// sources whose input file did not outlive the first run.
func (wp *WorkerPool) Retry(ctx context.Context, projectID string) (*Handle, error) {
	release, err := wp.locks.Exclusive(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	var job *Job
	err = wp.db.WithTx(ctx, func(tx *storage.Tx) error {
		p, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if p.SourceType == types.SourceUpload || p.SourceType == types.SourceStream {
			return fmt.Errorf("project %s: %s source is no longer available: %w",
				projectID, p.SourceType, types.ErrInvalidOperation)
		}

		req := Request{
			Source:      types.Source{Type: p.SourceType, Ref: p.SourceRef, Title: p.Title},
			SpeakerHint: p.SpeakerHint,
		}
		if p.SourceType == types.SourceLocal {
			req.LocalPath = p.SourceRef
		}
		job = NewJob(uuid.New().String(), projectID, req)

		if err := tx.CreateJob(ctx, &types.Job{
			ID: job.ID, ProjectID: projectID, Status: types.StatusPending, Progress: "Queued",
		}); err != nil {
			return err
		}
		if err := tx.ClearProjectResults(ctx, projectID); err != nil {
			return err
		}
		return tx.UpdateProjectStatus(ctx, projectID, types.StatusPending, "Queued", "")
	})
	if err != nil {
		log.Printf("Retry of project %s rejected: %v", projectID, err)
		return nil, err
	}

	if err := wp.audio.RemoveProject(projectID); err != nil {
		log.Printf("Retry: failed to clear files of project %s: %v", projectID, err)
	}

	if err := wp.enqueue(job); err != nil {
		return nil, err
	}
	return &Handle{JobID: job.ID, ProjectID: projectID, Status: types.StatusPending}, nil
}

// GetStatus returns the latest persisted state of a job. It never waits on
// the job itself.
func (wp *WorkerPool) GetStatus(ctx context.Context, jobID string) (*Status, error) {
	var j *types.Job
	err := wp.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		j, err = tx.GetJob(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Status{
		JobID:        j.ID,
		ProjectID:    j.ProjectID,
		Status:       j.Status,
		Progress:     j.Progress,
		ErrorMessage: j.ErrorMessage,
	}, nil
}

// enqueue adds a job without blocking. A full queue fails the job.
func (wp *WorkerPool) enqueue(job *Job) error {
	select {
	case wp.jobQueue <- job:
		log.Printf("Job %s enqueued (project: %s, source: %s)", job.ID, job.ProjectID, job.Request.Source.Type)
		return nil
	default:
		wp.fail(job, errors.New("job queue is full"))
		wp.releaseInput(job)
		return fmt.Errorf("job queue is full: %w", types.ErrConcurrencyConflict)
	}
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case <-wp.ctx.Done():
			return
		case job := <-wp.jobQueue:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("Worker %d: PANIC processing job %s: %v\n%s",
							id, job.ID, r, string(debug.Stack()))
						wp.fail(job, fmt.Errorf("worker panic: %v", r))
					}
				}()

				wp.processJob(id, job)
			}()
		}
	}
}

// processJob runs the producer and populates the project from its result.
func (wp *WorkerPool) processJob(workerID int, job *Job) {
	log.Printf("Worker %d: Processing job %s (project %s)", workerID, job.ID, job.ProjectID)
	defer wp.releaseInput(job)

	if err := wp.setState(job, types.StatusProcessing, "Starting"); err != nil {
		log.Printf("Worker %d: cannot start job %s: %v", workerID, job.ID, err)
		return
	}

	workDir := filepath.Join(wp.tempDir, "job-"+job.ID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		wp.fail(job, &types.JobError{Stage: "setup", Message: "cannot create work directory", Err: err})
		return
	}
	defer os.RemoveAll(workDir)

	progress := func(msg string) {
		if err := wp.setState(job, types.StatusProcessing, msg); err != nil {
			log.Printf("Worker %d: progress update for job %s failed: %v", workerID, job.ID, err)
		}
	}

	result, err := wp.producer.Produce(wp.ctx, job.Request, workDir, progress)
	if err != nil {
		log.Printf("Worker %d: Diarization failed for job %s: %v", workerID, job.ID, err)
		wp.fail(job, err)
		return
	}

	progress("Saving segments")
	if err := wp.populate(job, result); err != nil {
		log.Printf("Worker %d: Saving results failed for job %s: %v", workerID, job.ID, err)
		wp.fail(job, err)
		return
	}

	log.Printf("Worker %d: Job %s completed (%d segments)", workerID, job.ID, len(result.Segments))
}

// setState persists job status and progress, mirrored onto the project.
func (wp *WorkerPool) setState(job *Job, status, progress string) error {
	return wp.db.WithTx(context.Background(), func(tx *storage.Tx) error {
		return tx.SetJobState(context.Background(), job.ID, status, progress, "")
	})
}

// fail records a terminal error on the job and its project.
func (wp *WorkerPool) fail(job *Job, err error) {
	var jobErr *types.JobError
	switch {
	case wp.ctx.Err() != nil:
		err = &types.JobError{Stage: "shutdown", Message: InterruptedMessage, Err: err}
	case !errors.As(err, &jobErr) && !errors.Is(err, types.ErrStorage):
		err = &types.JobError{Stage: "diarization", Message: "job failed", Err: err}
	}
	msg := err.Error()

	werr := wp.db.WithTx(context.Background(), func(tx *storage.Tx) error {
		return tx.SetJobState(context.Background(), job.ID, types.StatusError, "Failed", msg)
	})
	if werr != nil {
		log.Printf("Failed to record error for job %s (project %s): %v", job.ID, job.ProjectID, werr)
		return
	}
	log.Printf("Job %s (project %s) failed: %s", job.ID, job.ProjectID, msg)
}

// releaseInput removes a temporary input file owned by the job.
func (wp *WorkerPool) releaseInput(job *Job) {
	if !job.Request.Temporary || job.Request.LocalPath == "" {
		return
	}
	if err := os.Remove(job.Request.LocalPath); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to cleanup temp file %s: %v", job.Request.LocalPath, err)
	}
}
