package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process keyed mutex. TTL is ignored: a lock is held
// until it is released.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*memoryEntry
}

type memoryEntry struct {
	held chan struct{}
	refs int
}

// NewMemory returns an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*memoryEntry)}
}

// acquire gets or creates the entry for key and counts the caller.
func (m *Memory) acquire(key string) *memoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[key]
	if !ok {
		entry = &memoryEntry{held: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release drops the caller's count and forgets idle keys.
func (m *Memory) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// Lock implements Locker.
func (m *Memory) Lock(ctx context.Context, key string, _ time.Duration) (UnlockFunc, error) {
	entry := m.acquire(key)
	select {
	case entry.held <- struct{}{}:
	case <-ctx.Done():
		m.release(key)
		return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-entry.held
			m.release(key)
		})
		return nil
	}, nil
}

// Len reports how many keys are held or awaited.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
