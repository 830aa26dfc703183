// Package dedup coalesces concurrent operations on the same key.
package dedup

import (
	"context"
	"sync"
)

type call[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// Loader provides deduplication for concurrent load operations by key
type Loader[K comparable, T any] struct {
	loader func(context.Context, K) (T, error)
	mu     sync.Mutex
	calls  map[K]*call[T]
}

// NewLoader creates a new deduplicated loader with the specified worker function
func NewLoader[K comparable, T any](loader func(context.Context, K) (T, error)) *Loader[K, T] {
	return &Loader[K, T]{
		loader: loader,
		calls:  make(map[K]*call[T]),
	}
}

// Load executes the loader function for the given key, deduplicating concurrent calls.
// If another goroutine is already loading the same key, this call waits for
// that result instead of executing the loader again. The load runs detached
// from any caller's cancellation; each caller stops waiting when its own ctx
// ends and then returns ctx.Err(). Loaders bound their own duration.
func (d *Loader[K, T]) Load(ctx context.Context, key K) (T, error) {
	d.mu.Lock()
	c, ok := d.calls[key]
	if !ok {
		c = &call[T]{done: make(chan struct{})}
		d.calls[key] = c
		go d.run(context.WithoutCancel(ctx), key, c)
	}
	d.mu.Unlock()

	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (d *Loader[K, T]) run(ctx context.Context, key K, c *call[T]) {
	c.result, c.err = d.loader(ctx, key)

	d.mu.Lock()
	delete(d.calls, key)
	d.mu.Unlock()
	close(c.done)
}

// InFlight reports the number of keys currently loading.
func (d *Loader[K, T]) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}
