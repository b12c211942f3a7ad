package lazymap

// Observer receives map lifecycle events. Implementations must be safe
// for concurrent use when the map is accessed from multiple goroutines.
type Observer[K comparable] interface {
	On(eventData EventData[K])
}

// Event represents a map event type.
type Event int

const (
	// EventHit is emitted when a read finds a published value.
	EventHit Event = iota
	// EventMiss is emitted when a read finds no entry for the key.
	EventMiss
	// EventCompute is emitted when a caller-supplied computation is about
	// to run for a key.
	EventCompute
	// EventEvict is emitted when a failing computation removes its own
	// entry from the map.
	EventEvict
)

// EventData carries the details of a map event.
type EventData[K comparable] struct {
	Event Event
	Key   K
}
