package lazymap

import (
	"context"

	"github.com/probablyarth/lazymap-go/keymutex"
)

// LockedMap is the context-aware counterpart of Map. Callers supply
// suspendable factories; same-key operations serialize through a per-key
// lock, so each factory runs exactly once while operations on distinct keys
// never wait on each other.
//
// Every operation follows a double-checked-locking shape: a lock-free probe
// of the underlying store, then lock, re-validate, run the factory, publish.
// The lock is released on every exit path, including factory failure and
// context cancellation.
//
// Synchronous calls through Map are not coordinated with the per-key lock.
// Mixing both surfaces on the same key is allowed, but the two interleave
// like any pair of lock-free writers; LockedMap publishes through
// slot-identity compare-and-swap so an interleaved synchronous write makes
// the operation report failure or retry rather than get silently clobbered.
type LockedMap[K comparable, V any] struct {
	m     *Map[K, V]
	locks *keymutex.Mutex[K]
}

// NewLocked returns an empty LockedMap configured by opts.
func NewLocked[K comparable, V any](opts ...Option[K, V]) *LockedMap[K, V] {
	return &LockedMap[K, V]{
		m:     New(opts...),
		locks: keymutex.New[K](),
	}
}

// Map returns the synchronous surface of the same underlying store.
func (lm *LockedMap[K, V]) Map() *Map[K, V] {
	return lm.m
}

// Add publishes the result of fn for key if the key is absent, reporting
// whether a value was published. fn runs under the key's lock; if it fails,
// nothing is published and the failure is returned.
func (lm *LockedMap[K, V]) Add(ctx context.Context, key K, fn func(context.Context, K) (V, error)) (bool, error) {
	if fn == nil {
		panic("lazymap: nil function passed to Add")
	}
	if _, found := lm.m.slots.Load(key); found {
		return false, nil
	}

	unlock, err := lm.locks.Lock(ctx, key)
	if err != nil {
		return false, err
	}
	defer unlock()

	if _, found := lm.m.slots.Load(key); found {
		return false, nil
	}
	v, err := fn(ctx, key)
	if err != nil {
		return false, err
	}
	return lm.m.Add(key, v), nil
}

// CompareAndSwap replaces the value for key with the result of fn if the
// current materialized value equals old, re-validated under the key's lock.
// The swap can still be refused if a synchronous caller replaces the slot
// while fn runs.
func (lm *LockedMap[K, V]) CompareAndSwap(ctx context.Context, key K, old V, fn func(context.Context, K) (V, error)) (bool, error) {
	if fn == nil {
		panic("lazymap: nil function passed to CompareAndSwap")
	}
	cur, found := lm.m.slots.Load(key)
	if !found {
		return false, nil
	}
	v, err := cur.value()
	if err != nil {
		return false, err
	}
	if !lm.m.valueEq(v, old) {
		return false, nil
	}

	unlock, err := lm.locks.Lock(ctx, key)
	if err != nil {
		return false, err
	}
	defer unlock()

	// The slot may have been replaced between the probe and the lock.
	cur, found = lm.m.slots.Load(key)
	if !found {
		return false, nil
	}
	if v, err = cur.value(); err != nil {
		return false, err
	}
	if !lm.m.valueEq(v, old) {
		return false, nil
	}

	next, err := fn(ctx, key)
	if err != nil {
		return false, err
	}
	return lm.m.casCell(key, cur, resolved(next)), nil
}

// LoadOrCompute returns the existing value for key, or runs fn under the
// key's lock to produce one. Concurrent callers for the same key serialize
// on the lock and fn runs exactly once; callers for other keys proceed
// independently.
func (lm *LockedMap[K, V]) LoadOrCompute(ctx context.Context, key K, fn func(context.Context, K) (V, error)) (V, error) {
	if fn == nil {
		panic("lazymap: nil function passed to LoadOrCompute")
	}
	if c, found := lm.m.slots.Load(key); found {
		return c.value()
	}

	unlock, err := lm.locks.Lock(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	defer unlock()

	if c, found := lm.m.slots.Load(key); found {
		return c.value()
	}
	v, err := fn(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	// A synchronous caller may have published while fn ran; keep whichever
	// slot won.
	return lm.m.LoadOrStore(key, v)
}

// Upsert publishes add if key is absent, otherwise replaces the current
// value with update(ctx, key, current). The whole loop runs under the key's
// lock, so update for a given key is serialized against other LockedMap
// callers; it retries only if a synchronous caller mutates the slot
// concurrently.
func (lm *LockedMap[K, V]) Upsert(ctx context.Context, key K, add V, update func(context.Context, K, V) (V, error)) (V, error) {
	return lm.upsert(ctx, key, func(context.Context, K) (V, error) { return add, nil }, update)
}

// UpsertFunc is Upsert with a suspendable add computation, run only when the
// key is absent.
func (lm *LockedMap[K, V]) UpsertFunc(ctx context.Context, key K, addFn func(context.Context, K) (V, error), update func(context.Context, K, V) (V, error)) (V, error) {
	if addFn == nil {
		panic("lazymap: nil function passed to UpsertFunc")
	}
	return lm.upsert(ctx, key, addFn, update)
}

func (lm *LockedMap[K, V]) upsert(ctx context.Context, key K, addFn func(context.Context, K) (V, error), update func(context.Context, K, V) (V, error)) (V, error) {
	if update == nil {
		panic("lazymap: nil update function passed to Upsert")
	}
	var zero V

	unlock, err := lm.locks.Lock(ctx, key)
	if err != nil {
		return zero, err
	}
	defer unlock()

	for {
		cur, found := lm.m.slots.Load(key)
		if !found {
			v, err := addFn(ctx, key)
			if err != nil {
				return zero, err
			}
			if lm.m.Add(key, v) {
				return v, nil
			}
			continue // a synchronous caller got there first
		}
		curVal, err := cur.value()
		if err != nil {
			return zero, err
		}
		next, err := update(ctx, key, curVal)
		if err != nil {
			return zero, err
		}
		if lm.m.casCell(key, cur, resolved(next)) {
			return next, nil
		}
	}
}
