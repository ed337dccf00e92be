// Package lock provides the run locks that keep a tenant to one catalog
// sync at a time.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/erp/catalogsync/internal/application/catalogsync"
)

type holder struct {
	owner     string
	expiresAt time.Time
}

// InMemoryRunLock implements catalogsync.RunLock with a map.
// It only serializes runs inside one process.
type InMemoryRunLock struct {
	mu        sync.Mutex
	held      map[string]holder
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryRunLock creates an in-process lock and starts the goroutine
// that drops expired holders
func NewInMemoryRunLock() *InMemoryRunLock {
	l := &InMemoryRunLock{
		held:     make(map[string]holder),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.cleanupLoop()

	return l
}

// Acquire takes key for owner unless an unexpired holder exists
func (l *InMemoryRunLock) Acquire(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && now.Before(h.expiresAt) {
		return false, nil
	}
	l.held[key] = holder{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release frees key if owner holds it
func (l *InMemoryRunLock) Release(_ context.Context, key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[key]; ok && h.owner == owner {
		delete(l.held, key)
	}
	return nil
}

// Refresh extends key by ttl if owner still holds it unexpired
func (l *InMemoryRunLock) Refresh(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	h, ok := l.held[key]
	if !ok || h.owner != owner || !now.Before(h.expiresAt) {
		return false, nil
	}
	l.held[key] = holder{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (l *InMemoryRunLock) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
	})
	return nil
}

func (l *InMemoryRunLock) cleanupLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *InMemoryRunLock) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, h := range l.held {
		if !now.Before(h.expiresAt) {
			delete(l.held, key)
		}
	}
}

// Size returns the number of held keys
func (l *InMemoryRunLock) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

var _ catalogsync.RunLock = (*InMemoryRunLock)(nil)
