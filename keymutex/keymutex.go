// Package keymutex provides context-aware mutual exclusion scoped to keys.
//
// Locks for different keys never contend. Lock entries are created on demand
// and reclaimed as soon as no goroutine holds or waits for them, so the table
// does not grow with key churn.
package keymutex

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Mutex is a table of per-key locks. Use New to create one.
type Mutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*lock
}

type lock struct {
	sem  *semaphore.Weighted
	refs int
}

// New returns an empty lock table.
func New[K comparable]() *Mutex[K] {
	return &Mutex[K]{locks: make(map[K]*lock)}
}

// Lock acquires the lock for key, waiting until it is free or ctx is done.
// Waiting suspends only the calling goroutine. On success Lock returns an
// idempotent release function that the caller must invoke on every exit
// path, typically via defer.
func (m *Mutex[K]) Lock(ctx context.Context, key K) (release func(), err error) {
	l := m.ref(key)
	if err := l.sem.Acquire(ctx, 1); err != nil {
		m.unref(key)
		return nil, err
	}
	return m.releaser(key, l), nil
}

// TryLock acquires the lock for key without waiting. It returns a nil
// release function if the lock is already held.
func (m *Mutex[K]) TryLock(key K) (release func(), ok bool) {
	l := m.ref(key)
	if !l.sem.TryAcquire(1) {
		m.unref(key)
		return nil, false
	}
	return m.releaser(key, l), true
}

// Len returns the number of live lock entries. An entry is live while at
// least one goroutine holds or waits for it.
func (m *Mutex[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Mutex[K]) releaser(key K, l *lock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			m.unref(key)
		})
	}
}

func (m *Mutex[K]) ref(key K) *lock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &lock{sem: semaphore.NewWeighted(1)}
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *Mutex[K]) unref(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.locks[key]
	if l.refs--; l.refs == 0 {
		delete(m.locks, key)
	}
}
