// Package locker serialises work per key while letting distinct keys proceed
// in parallel.
package locker

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed hands out one exclusive lock per key. Idle entries are released, so
// the map only holds keys that are currently locked or waited on.
type Keyed[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

// New creates an empty keyed locker.
func New[K comparable]() *Keyed[K] {
	return &Keyed[K]{entries: make(map[K]*entry)}
}

// Lock blocks until key is free and returns the function that frees it.
func (l *Keyed[K]) Lock(key K) (unlock func()) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of keys currently locked or waited on.
func (l *Keyed[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
