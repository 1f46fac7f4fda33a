package job

import (
	"context"
	"sync"
	"time"
)

// Tracker applies lifecycle updates to a job and persists each change.
// It is owned by the build that started the job.
type Tracker struct {
	store Store
	job   *Job
	mux   sync.Mutex
	now   func() time.Time
}

// Snapshot returns a copy of the tracked job.
func (t *Tracker) Snapshot() *Job {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.job.Clone()
}

// Advance transitions the job and saves it.
func (t *Tracker) Advance(ctx context.Context, status Status, percent int, message string) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	if err := t.job.Transition(status, percent, message, t.now()); err != nil {
		return err
	}
	return t.store.SaveJob(ctx, t.job.Clone())
}

// Progress records insert progress, saving only when the reported percent moves.
func (t *Tracker) Progress(ctx context.Context, current, total int) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	if !t.job.Progress(current, total, t.now()) {
		return nil
	}
	return t.store.SaveJob(ctx, t.job.Clone())
}

// Fail marks the job FAILED. It is a no-op when the job is already terminal.
func (t *Tracker) Fail(ctx context.Context, cause error) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.job.Status.Terminal() {
		return nil
	}
	message := "build failed"
	if cause != nil {
		message = cause.Error()
	}
	if err := t.job.Fail(message, t.now()); err != nil {
		return err
	}
	return t.store.SaveJob(ctx, t.job.Clone())
}

// NewTracker tracks job, persisting through store.
func NewTracker(store Store, job *Job) *Tracker {
	return &Tracker{store: store, job: job, now: time.Now}
}
