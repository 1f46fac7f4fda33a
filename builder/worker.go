package builder

import (
	"context"
	"errors"
	"sync"

	"github.com/viant/seqindex/job"
)

// Worker runs builds one at a time off the request path.
type Worker struct {
	builder *Builder
	queue   chan Request
	mux     sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// Submit queues req without blocking.
func (w *Worker) Submit(req Request) error {
	w.mux.Lock()
	defer w.mux.Unlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- req:
		return nil
	default:
		return ErrBusy
	}
}

// Start launches the worker goroutine. It stops when ctx is done or Close is called.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				w.drain(context.WithoutCancel(ctx), ctx.Err())
				return
			case req, ok := <-w.queue:
				if !ok {
					return
				}
				w.builder.Build(ctx, req)
			}
		}
	}()
}

// drain fails builds accepted but never started.
func (w *Worker) drain(ctx context.Context, cause error) {
	if cause == nil {
		cause = errors.New("worker stopped")
	}
	for {
		select {
		case req, ok := <-w.queue:
			if !ok {
				return
			}
			if err := job.NewTracker(w.builder.jobs, req.Job).Fail(ctx, cause); err != nil {
				w.builder.printf("builder: failed to cancel run %s: %v", req.Job.Run, err)
			}
		default:
			return
		}
	}
}

// Close stops accepting builds and waits for the running one to finish.
func (w *Worker) Close() {
	w.mux.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mux.Unlock()
	w.wg.Wait()
}

// NewWorker creates a worker with a single pending slot.
func NewWorker(builder *Builder) *Worker {
	return &Worker{builder: builder, queue: make(chan Request, 1)}
}
