package lazymap

type settings[K comparable, V any] struct {
	presize  int
	entries  map[K]V
	valueEq  func(V, V) bool
	observer Observer[K]
}

// Option configures a Map created by New.
type Option[K comparable, V any] func(*settings[K, V])

// WithPresize sizes the underlying table for the expected number of entries,
// avoiding resizes while the map warms up.
func WithPresize[K comparable, V any](n int) Option[K, V] {
	return func(s *settings[K, V]) {
		s.presize = n
	}
}

// WithEntries seeds the map with already-materialized values.
func WithEntries[K comparable, V any](entries map[K]V) Option[K, V] {
	return func(s *settings[K, V]) {
		s.entries = entries
	}
}

// WithValueComparer sets the value equality used by CompareAndSwap and
// CompareAndSwapFunc. The default compares with ==, which panics for value
// types that are not comparable, the same way a map key would.
func WithValueComparer[K comparable, V any](eq func(a, b V) bool) Option[K, V] {
	return func(s *settings[K, V]) {
		s.valueEq = eq
	}
}

// WithObserver attaches an Observer that receives hit, miss, compute and
// evict events for the lifetime of the map.
func WithObserver[K comparable, V any](o Observer[K]) Option[K, V] {
	return func(s *settings[K, V]) {
		s.observer = o
	}
}
