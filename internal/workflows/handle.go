package workflows

import (
	"context"
	"sync"
)

// Handle resolves once when its job finishes, with nil on success or the stage error
type Handle struct {
	jobID string
	done  chan struct{}
	once  sync.Once
	err   error
}

func newHandle(jobID string) *Handle {
	return &Handle{
		jobID: jobID,
		done:  make(chan struct{}),
	}
}

// JobID returns the job this handle tracks
func (h *Handle) JobID() string {
	return h.jobID
}

// Done is closed when the job has finished
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the job's outcome. It is nil while the job is still running.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the job finishes or ctx is done.
// Giving up on ctx does not stop the job.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) resolve(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}
