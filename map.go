package lazymap

import (
	"iter"

	"github.com/puzpuzpuz/xsync/v3"
)

// Entry is a key paired with its materialized value.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Map is a concurrent map whose slots are one-shot deferred cells. A deferred
// computation published for a key runs at most once per successful
// materialization, regardless of how many goroutines race on that key.
//
// Updates always publish a new immutable slot instead of mutating one in
// place, so a reader holding an old slot never sees its value change.
//
// A Map must not be copied after first use.
type Map[K comparable, V any] struct {
	slots    *xsync.MapOf[K, *cell[V]]
	valueEq  func(a, b V) bool
	observer Observer[K]
}

// New returns an empty Map configured by opts.
func New[K comparable, V any](opts ...Option[K, V]) *Map[K, V] {
	var s settings[K, V]
	for _, opt := range opts {
		opt(&s)
	}

	var mapOpts []func(*xsync.MapConfig)
	if s.presize > 0 {
		mapOpts = append(mapOpts, xsync.WithPresize(s.presize))
	}

	m := &Map[K, V]{
		slots:    xsync.NewMapOf[K, *cell[V]](mapOpts...),
		valueEq:  s.valueEq,
		observer: s.observer,
	}
	if m.valueEq == nil {
		m.valueEq = func(a, b V) bool { return any(a) == any(b) }
	}
	for k, v := range s.entries {
		m.slots.Store(k, resolved(v))
	}
	return m
}

func (m *Map[K, V]) emit(event Event, key K) {
	if m.observer == nil {
		return
	}
	m.observer.On(EventData[K]{Event: event, Key: key})
}

// deferredCell builds a candidate slot wrapping fn bound to key. If the
// computation fails, the cell removes its own entry before surfacing the
// error, so the next lookup retries instead of replaying a cached failure.
func (m *Map[K, V]) deferredCell(key K, fn func(K) (V, error)) *cell[V] {
	c := deferred(key, func(k K) (V, error) {
		m.emit(EventCompute, k)
		return fn(k)
	})
	c.evict = func() { m.dropCell(key, c) }
	return c
}

// dropCell removes key only while the slot still holds c, so a failing cell
// never evicts a successor published after it.
func (m *Map[K, V]) dropCell(key K, c *cell[V]) {
	var dropped bool
	m.slots.Compute(key, func(cur *cell[V], loaded bool) (*cell[V], bool) {
		if loaded && cur == c {
			dropped = true
			return nil, true
		}
		return cur, !loaded
	})
	if dropped {
		m.emit(EventEvict, key)
	}
}

// casCell publishes next for key only while the slot still holds prev.
func (m *Map[K, V]) casCell(key K, prev, next *cell[V]) bool {
	var swapped bool
	m.slots.Compute(key, func(cur *cell[V], loaded bool) (*cell[V], bool) {
		if loaded && cur == prev {
			swapped = true
			return next, false
		}
		return cur, !loaded
	})
	return swapped
}

// Store publishes value for key, replacing any existing slot without forcing
// it.
func (m *Map[K, V]) Store(key K, value V) {
	m.slots.Store(key, resolved(value))
}

// Add publishes value for key if the key is absent. It reports whether the
// value was published.
func (m *Map[K, V]) Add(key K, value V) bool {
	_, loaded := m.slots.LoadOrStore(key, resolved(value))
	return !loaded
}

// AddFunc publishes a deferred computation for key if the key is absent.
// AddFunc never invokes fn itself; it runs on first access to the value.
func (m *Map[K, V]) AddFunc(key K, fn func(K) (V, error)) bool {
	if fn == nil {
		panic("lazymap: nil function passed to AddFunc")
	}
	_, loaded := m.slots.LoadOrStore(key, m.deferredCell(key, fn))
	return !loaded
}

// Load returns the materialized value for key, forcing a pending computation
// if needed. ok reports whether a value was produced; if the slot's
// computation fails, the failure is returned and the slot evicts itself.
func (m *Map[K, V]) Load(key K) (value V, ok bool, err error) {
	c, found := m.slots.Load(key)
	if !found {
		m.emit(EventMiss, key)
		return value, false, nil
	}
	v, err := c.value()
	if err != nil {
		return value, false, err
	}
	m.emit(EventHit, key)
	return v, true, nil
}

// LoadOrStore returns the existing value for key, or publishes and returns
// value if the key is absent.
func (m *Map[K, V]) LoadOrStore(key K, value V) (V, error) {
	c, _ := m.slots.LoadOrStore(key, resolved(value))
	return c.value()
}

// LoadOrCompute returns the existing value for key, or publishes a slot
// wrapping fn and returns its result. Racing callers may each construct a
// candidate slot, but only the published winner is ever forced, so fn runs
// at most once per successful materialization no matter the contention.
func (m *Map[K, V]) LoadOrCompute(key K, fn func(K) (V, error)) (V, error) {
	if fn == nil {
		panic("lazymap: nil function passed to LoadOrCompute")
	}
	if c, found := m.slots.Load(key); found {
		m.emit(EventHit, key)
		return c.value()
	}
	c, loaded := m.slots.LoadOrStore(key, m.deferredCell(key, fn))
	if loaded {
		m.emit(EventHit, key)
	} else {
		m.emit(EventMiss, key)
	}
	return c.value()
}

// CompareAndSwap publishes new for key if the current materialized value
// equals old and the slot has not been replaced since that read. Forcing the
// current slot may run its pending computation even when the comparison then
// fails; that evaluation is not rolled back.
func (m *Map[K, V]) CompareAndSwap(key K, old, new V) (bool, error) {
	return m.compareAndSwap(key, old, func() *cell[V] { return resolved(new) })
}

// CompareAndSwapFunc is CompareAndSwap with a deferred replacement: fn is
// bound to key and runs on first access to the new value.
func (m *Map[K, V]) CompareAndSwapFunc(key K, old V, fn func(K) (V, error)) (bool, error) {
	if fn == nil {
		panic("lazymap: nil function passed to CompareAndSwapFunc")
	}
	return m.compareAndSwap(key, old, func() *cell[V] { return m.deferredCell(key, fn) })
}

func (m *Map[K, V]) compareAndSwap(key K, old V, next func() *cell[V]) (bool, error) {
	cur, found := m.slots.Load(key)
	if !found {
		return false, nil
	}
	v, err := cur.value()
	if err != nil {
		return false, err
	}
	if !m.valueEq(v, old) {
		return false, nil
	}
	return m.casCell(key, cur, next()), nil
}

// LoadAndDelete removes the slot for key, forcing and returning its value.
// ok reports whether a value was produced; a slot whose computation fails is
// removed all the same, with the failure returned.
func (m *Map[K, V]) LoadAndDelete(key K) (value V, ok bool, err error) {
	c, found := m.slots.LoadAndDelete(key)
	if !found {
		return value, false, nil
	}
	v, err := c.value()
	if err != nil {
		return value, false, err
	}
	return v, true, nil
}

// Delete removes the slot for key without forcing its computation.
func (m *Map[K, V]) Delete(key K) {
	m.slots.Delete(key)
}

// Upsert publishes add if key is absent, otherwise replaces the current
// value with update(key, current) through a compare-and-swap retry loop.
// Under contention update may run more than once in total, but exactly once
// per committed replacement.
func (m *Map[K, V]) Upsert(key K, add V, update func(K, V) (V, error)) (V, error) {
	return m.upsert(key, func() *cell[V] { return resolved(add) }, update)
}

// UpsertFunc is Upsert with a deferred add computation: addFn runs only if
// its candidate slot wins publication, on first access to the value.
func (m *Map[K, V]) UpsertFunc(key K, addFn func(K) (V, error), update func(K, V) (V, error)) (V, error) {
	if addFn == nil {
		panic("lazymap: nil function passed to UpsertFunc")
	}
	return m.upsert(key, func() *cell[V] { return m.deferredCell(key, addFn) }, update)
}

func (m *Map[K, V]) upsert(key K, add func() *cell[V], update func(K, V) (V, error)) (V, error) {
	if update == nil {
		panic("lazymap: nil update function passed to Upsert")
	}
	var zero V
	for {
		cur, found := m.slots.Load(key)
		if !found {
			c, loaded := m.slots.LoadOrStore(key, add())
			if !loaded {
				return c.value()
			}
			cur = c
		}
		v, err := cur.value()
		if err != nil {
			return zero, err
		}
		next, err := update(key, v)
		if err != nil {
			return zero, err
		}
		if m.casCell(key, cur, resolved(next)) {
			return next, nil
		}
	}
}

// Len returns the number of slots, counting ones whose computation has not
// run yet.
func (m *Map[K, V]) Len() int {
	return m.slots.Size()
}

// All iterates over the map, forcing each slot as it is visited. Slots whose
// computation fails are skipped; they evict themselves. The walk is weakly
// consistent: each pair reflects that entry at the moment it was visited,
// not a single instant across the whole map.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.slots.Range(func(key K, c *cell[V]) bool {
			v, err := c.value()
			if err != nil {
				return true
			}
			return yield(key, v)
		})
	}
}

// Keys iterates over the keys without forcing any pending computation.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		m.slots.Range(func(key K, _ *cell[V]) bool {
			return yield(key)
		})
	}
}

// Values iterates over the materialized values, forcing each slot as it is
// visited.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range m.All() {
			if !yield(v) {
				return
			}
		}
	}
}

// Snapshot returns the map's contents as a slice of entries, with the same
// weak consistency as All.
func (m *Map[K, V]) Snapshot() []Entry[K, V] {
	entries := make([]Entry[K, V], 0, m.slots.Size())
	for k, v := range m.All() {
		entries = append(entries, Entry[K, V]{Key: k, Value: v})
	}
	return entries
}
