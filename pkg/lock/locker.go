package lock

import (
	"context"
	"sync"
)

// Locker runs a function while holding a named mutual-exclusion lock
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// MemoryLocker is a process-local Locker for single instance deployments and tests
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*memoryEntry
}

type memoryEntry struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates a process-local Locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*memoryEntry)}
}

// WithLock runs fn while holding key. Waiting honours ctx cancellation.
func (ml *MemoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ml.mu.Lock()
	e, ok := ml.locks[key]
	if !ok {
		e = &memoryEntry{ch: make(chan struct{}, 1)}
		ml.locks[key] = e
	}
	e.refs++
	ml.mu.Unlock()

	defer ml.release(key, e)

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.ch }()

	return fn(ctx)
}

func (ml *MemoryLocker) release(key string, e *memoryEntry) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(ml.locks, key)
	}
}
