package dedup

import (
	"context"
	"sync"
)

type batch struct {
	done chan struct{}
	err  error
}

type saveState[T any] struct {
	next      *T
	nextBatch *batch
}

// Saver coalesces concurrent saves by key. While a save for a key is running,
// later calls replace each other and the newest value is written once the
// running save returns. Every caller gets the error of the save that covered
// its value.
type Saver[K comparable, T any] struct {
	save  func(context.Context, K, T) error
	mu    sync.Mutex
	state map[K]*saveState[T]
}

// NewSaver creates a new deduplicated saver with the specified worker function
func NewSaver[K comparable, T any](save func(context.Context, K, T) error) *Saver[K, T] {
	return &Saver[K, T]{
		save:  save,
		state: make(map[K]*saveState[T]),
	}
}

func (d *Saver[K, T]) Save(ctx context.Context, key K, data T) error {
	d.mu.Lock()
	if st, ok := d.state[key]; ok {
		if st.nextBatch == nil {
			st.nextBatch = &batch{done: make(chan struct{})}
		}
		st.next = &data
		b := st.nextBatch
		d.mu.Unlock()
		select {
		case <-b.done:
			return b.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	st := &saveState[T]{}
	d.state[key] = st
	d.mu.Unlock()

	err := d.save(ctx, key, data)
	for {
		d.mu.Lock()
		if st.next == nil {
			delete(d.state, key)
			d.mu.Unlock()
			return err
		}
		next, b := *st.next, st.nextBatch
		st.next, st.nextBatch = nil, nil
		d.mu.Unlock()

		b.err = d.save(ctx, key, next)
		close(b.done)
	}
}
