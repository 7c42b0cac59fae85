package colorize

import (
	"context"
	"sync"
)

// Registry owns the goroutine handle of every in-flight job driver. Handles
// are reaped when a driver returns; Wait blocks shutdown until all drivers
// finish or the context expires.
type Registry struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	inflight map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{inflight: map[string]struct{}{}}
}

// Go launches fn on its own goroutine and tracks it under id until it
// returns.
func (r *Registry) Go(id string, fn func()) {
	r.mu.Lock()
	r.inflight[id] = struct{}{}
	r.mu.Unlock()
	r.wg.Add(1)
	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.inflight, id)
			r.mu.Unlock()
			r.wg.Done()
		}()
		fn()
	}()
}

// Len returns the number of drivers currently in flight.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// Wait blocks until every tracked driver has finished or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
