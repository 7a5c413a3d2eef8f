// Package workerpool bounds how much stage work runs at once across all jobs.
//
// A Pool hands out a fixed number of execution permits. Long-lived job drivers
// are started with Go and take a permit through Do for each unit of work, so a
// job holds a permit only while one of its stages is running.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Go after Shutdown has been called
var ErrPoolClosed = errors.New("worker pool is closed")

// Pool is a bounded set of execution permits
type Pool struct {
	size int64
	sem  *semaphore.Weighted
	busy atomic.Int64

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// New creates a pool with size permits. A size below 1 is treated as 1.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Go runs task on its own goroutine and tracks it until it returns.
// It does not consume a permit.
func (p *Pool) Go(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		task()
	}()
	return nil
}

// Do waits for a free permit, runs fn on the calling goroutine and releases the permit.
// It returns ctx.Err() if ctx is done before a permit frees up.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.busy.Add(1)
	defer func() {
		p.busy.Add(-1)
		p.sem.Release(1)
	}()

	return fn(ctx)
}

// Size returns the number of permits
func (p *Pool) Size() int {
	return int(p.size)
}

// Busy returns the number of permits currently held
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// Shutdown stops accepting new tasks and waits for tracked tasks to return.
// Running tasks are not interrupted; if ctx ends first its error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
