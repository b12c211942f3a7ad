package lazymap

import "sync"

// cell is a one-shot computation holder. The first call to value runs the
// wrapped function; concurrent callers block in once.Do and then share the
// cached outcome. A cell is published into the map before it is ever forced,
// so losing candidates from a racing insert are discarded unevaluated.
type cell[V any] struct {
	once sync.Once
	fn   func() (V, error)

	// evict removes this cell's entry from the owning map. Set only on
	// cells that wrap a fallible computation; called exactly once, by the
	// goroutine that ran fn, when fn fails. Waiters sharing the failure do
	// not re-trigger it.
	evict func()

	val V
	err error
}

// resolved returns a cell that yields v without any computation.
func resolved[V any](v V) *cell[V] {
	return &cell[V]{fn: func() (V, error) { return v, nil }}
}

// deferred returns a cell wrapping fn bound to key. evict is invoked if fn
// fails, before the error is surfaced.
func deferred[K comparable, V any](key K, fn func(K) (V, error)) *cell[V] {
	return &cell[V]{fn: func() (V, error) { return fn(key) }}
}

// value forces the cell. It runs the wrapped function at most once per cell
// instance; every caller observes the same value or the same error.
func (c *cell[V]) value() (V, error) {
	c.once.Do(func() {
		c.val, c.err = c.fn()
		c.fn = nil
		if c.err != nil && c.evict != nil {
			c.evict()
		}
	})
	return c.val, c.err
}
