// Package lock provides per-key critical sections for catalog
// find-or-create operations.
//
// KeyedMutex serializes goroutines within one process. RedisLocker extends
// the same guarantee across processes sharing a Redis instance, for
// deployments that run several importers against one catalog.
package lock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock on key. The returned unlock function
// must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker. Keys that are not held cost nothing.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				m.release(key, s)
			})
		}, nil
	case <-ctx.Done():
		m.release(key, s)
		return nil, ctx.Err()
	}
}

func (m *KeyedMutex) release(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

// Held returns the number of keys currently locked or awaited.
func (m *KeyedMutex) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
