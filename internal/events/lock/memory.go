// Package lock provides per-event mutual exclusion for lifecycle operations.
package lock

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLocker serializes work per key inside one process. Entries are
// reference counted and removed once nobody holds or waits for them.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

// WithLock runs fn while holding key. Waiting stops when ctx is done.
func (l *MemoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	kl := l.ref(key)
	defer l.unref(key, kl)

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
	}
	defer func() { <-kl.sem }()

	return fn(ctx)
}

func (l *MemoryLocker) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *MemoryLocker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// held reports the number of keys currently tracked.
func (l *MemoryLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
