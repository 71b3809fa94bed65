// Package workerpool bounds the concurrency of CPU-bound fan-out work (CAS
// hashing, per-step job dispatch) to a fixed number of
// slots, the way a semaphore-gated walker or scheduler cycle would.
package workerpool

import (
	"context"
	"runtime"
	"sync"
)

// DefaultTaskFanOut is the default bound on intra-step concurrent work
// (hashing files within one Identifier chunk).
const DefaultTaskFanOut = 16

// DefaultJobSlots is the default number of jobs the runtime may run at once.
func DefaultJobSlots() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// Pool bounds concurrent execution to a fixed number of slots.
type Pool struct {
	sem chan struct{}
}

// New creates a Pool with the given number of slots. size <= 0 is treated
// as 1 (no concurrency, but still functions).
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Acquire blocks until a slot is free or ctx is canceled, returning a
// release function to call when the work is done.
func (p *Pool) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run calls fn(item) for every item, bounded to the pool's size, and
// collects any errors. It stops launching new work once ctx is canceled but
// still waits for in-flight work to finish. The returned slice has one
// entry per item, in the same order, nil where fn succeeded.
func Run[T any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) error) []error {
	errs := make([]error, len(items))
	var wg sync.WaitGroup

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		release, err := p.Acquire(ctx)
		if err != nil {
			errs[i] = err
			continue
		}

		wg.Add(1)
		go func(i int, item T, release func()) {
			defer wg.Done()
			defer release()
			errs[i] = fn(ctx, item)
		}(i, item, release)
	}

	wg.Wait()
	return errs
}
