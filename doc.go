// Package lazymap provides a concurrent map that memoizes expensive,
// fallible value computations, running each one at most once per key no
// matter how many goroutines race to populate it.
//
// Every slot in the map holds a one-shot deferred cell. Racing writers may
// each construct a candidate cell, but the map's atomic publish step picks a
// single winner, and only the winner's computation is ever run:
//
//	m := lazymap.New[string, *Conn]()
//
//	conn, err := m.LoadOrCompute("db-primary", func(key string) (*Conn, error) {
//	    return dial(key) // runs once, even under heavy contention
//	})
//
// Concurrent callers for the same key block until the first caller's
// computation finishes and then share its result. Failures propagate to every
// waiter but are not cached: a failing cell evicts its own entry, so the next
// lookup starts fresh.
//
// [LockedMap] is the counterpart for context-aware factories. It serializes
// same-key callers through a per-key lock
// ([github.com/probablyarth/lazymap-go/keymutex]) instead of racing cells, so
// a slow factory suspends only the goroutines that need its key.
//
// Key equality is Go's ==. To use a looser notion of equality (for example
// case-insensitive strings), canonicalize keys before they reach the map.
package lazymap
