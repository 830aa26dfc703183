// Package notify is the change-listener registry shared by the in-memory stores.
package notify

import "sync"

// Listeners fans change notifications out to registered callbacks.
// The zero value is ready to use.
type Listeners[K any] struct {
	mu     sync.RWMutex
	nextID uint64
	fns    map[uint64]func([]K)
}

// Add registers fn and returns a function that removes it. Calling the returned
// function more than once is harmless.
func (l *Listeners[K]) Add(fn func([]K)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[uint64]func([]K))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

// Notify calls every listener with keys. It must not be called with a store lock held.
func (l *Listeners[K]) Notify(keys []K) {
	l.mu.RLock()
	fns := make([]func([]K), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(keys)
	}
}

// Len reports the number of registered listeners.
func (l *Listeners[K]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fns)
}
