// Package projectlock provides per-project shared/exclusive locks with a
// bounded wait. Mutations take the exclusive side; exports and file reads take
// the shared side. Different projects never contend.
package projectlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// maxReaders bounds concurrent shared holders; an exclusive holder takes all of it.
const maxReaders = 1 << 20

// Registry hands out per-project locks.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
	wait  time.Duration
}

// NewRegistry creates a registry whose acquisitions give up after wait.
func NewRegistry(wait time.Duration) *Registry {
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &Registry{
		locks: make(map[string]*semaphore.Weighted),
		wait:  wait,
	}
}

func (r *Registry) get(projectID string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()

	sem, ok := r.locks[projectID]
	if !ok {
		sem = semaphore.NewWeighted(maxReaders)
		r.locks[projectID] = sem
	}
	return sem
}

// Exclusive locks a project for mutation. The returned func releases it.
func (r *Registry) Exclusive(ctx context.Context, projectID string) (func(), error) {
	return r.acquire(ctx, projectID, maxReaders, "exclusive")
}

// Shared locks a project for reading alongside other readers.
func (r *Registry) Shared(ctx context.Context, projectID string) (func(), error) {
	return r.acquire(ctx, projectID, 1, "shared")
}

// TryExclusive takes the exclusive lock only if it is free right now.
func (r *Registry) TryExclusive(projectID string) (func(), bool) {
	sem := r.get(projectID)
	if !sem.TryAcquire(maxReaders) {
		return nil, false
	}
	return func() { sem.Release(maxReaders) }, true
}

func (r *Registry) acquire(ctx context.Context, projectID string, weight int64, kind string) (func(), error) {
	sem := r.get(projectID)

	waitCtx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	if err := sem.Acquire(waitCtx, weight); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%s lock on project %s not acquired within %s: %w",
				kind, projectID, r.wait, types.ErrConcurrencyConflict)
		}
		return nil, fmt.Errorf("%s lock on project %s: %w", kind, projectID, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(weight) })
	}, nil
}
