package job

import (
	"context"
	"sync"
)

// Store persists the job record.
type Store interface {
	// GetJob returns the job stored under id, or nil when none was recorded.
	GetJob(ctx context.Context, id string) (*Job, error)
	// SaveJob replaces the stored job.
	SaveJob(ctx context.Context, job *Job) error
	// StartJob stores candidate unless an active job exists, returning the job now on record.
	StartJob(ctx context.Context, candidate *Job) (*Job, bool, error)
}

// Gate serialises build admission within a process; the store's StartJob
// provides the same guarantee across processes sharing a store.
type Gate struct {
	store Store
	mux   sync.Mutex
}

// Acquire records candidate as the current job when no active job exists.
// When a build is already running it returns that job and false.
func (g *Gate) Acquire(ctx context.Context, candidate *Job) (*Job, bool, error) {
	g.mux.Lock()
	defer g.mux.Unlock()
	existing, err := g.store.GetJob(ctx, candidate.ID)
	if err != nil {
		return nil, false, err
	}
	if existing.Active() {
		return existing, false, nil
	}
	return g.store.StartJob(ctx, candidate)
}

// NewGate creates a gate over store.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}
