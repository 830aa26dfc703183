// Package queries binds fixed SQL reads against the indexer to result holders
// that report data, loading state and the last error. Nothing here touches the
// in-memory stores.
package queries

import (
	"context"
	"sync"

	"github.com/b-open-io/gamedata/dedup"
	"github.com/b-open-io/gamedata/internal/notify"
)

// Result is the state of a query after its latest fetch.
type Result[T any] struct {
	Data    T
	Loading bool
	Error   error
}

// Query holds the result of one fetch function. A failed refetch keeps the
// previous Data and only sets Error.
type Query[T any] struct {
	loader *dedup.Loader[struct{}, T]

	mu        sync.RWMutex
	result    Result[T]
	listeners notify.Listeners[Result[T]]
}

// NewQuery wraps fetch. initial is reported as Data until the first fetch succeeds.
func NewQuery[T any](initial T, fetch func(ctx context.Context) (T, error)) *Query[T] {
	return &Query[T]{
		loader: dedup.NewLoader(func(ctx context.Context, _ struct{}) (T, error) {
			return fetch(ctx)
		}),
		result: Result[T]{Data: initial},
	}
}

func (q *Query[T]) Result() Result[T] {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.result
}

// Refetch runs the fetch function and records its outcome. Concurrent calls
// share one fetch.
func (q *Query[T]) Refetch(ctx context.Context) error {
	q.update(func(r *Result[T]) { r.Loading = true })

	data, err := q.loader.Load(ctx, struct{}{})
	q.update(func(r *Result[T]) {
		r.Loading = false
		r.Error = err
		if err == nil {
			r.Data = data
		}
	})
	return err
}

// OnChange registers fn to be called with every new result.
func (q *Query[T]) OnChange(fn func(Result[T])) func() {
	return q.listeners.Add(func(rs []Result[T]) {
		fn(rs[0])
	})
}

func (q *Query[T]) update(mutate func(*Result[T])) {
	q.mu.Lock()
	mutate(&q.result)
	r := q.result
	q.mu.Unlock()
	q.listeners.Notify([]Result[T]{r})
}
