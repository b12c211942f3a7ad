package lazymap_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	lazymap "github.com/probablyarth/lazymap-go"
)

// ---------------------------------------------------------------------------
// Single-goroutine benchmarks: measure per-call latency.
// ---------------------------------------------------------------------------

// How fast is a hit (lock-free probe + forcing an already-forced cell)?
func BenchmarkLoadHit(b *testing.B) {
	m := lazymap.New[string, string]()
	m.Store("k", "v")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Load("k")
	}
}

// How fast is a miss (candidate cell + publish + force)?
func BenchmarkLoadOrComputeMiss(b *testing.B) {
	keys := make([]string, b.N)
	for i := range keys {
		keys[i] = fmt.Sprintf("%d", i)
	}

	m := lazymap.New[string, string]()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.LoadOrCompute(keys[i], func(string) (string, error) { return "v", nil })
	}
}

// The upsert retry loop on an uncontended key.
func BenchmarkUpsert(b *testing.B) {
	m := lazymap.New[string, int]()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Upsert("k", 1, func(_ string, v int) (int, error) { return v + 1, nil })
	}
}

// ---------------------------------------------------------------------------
// Concurrent benchmarks: measure throughput under contention.
// ---------------------------------------------------------------------------

// 1000 goroutines all populating the same key.
// Only one computation runs; the rest share its cell.
func BenchmarkConcurrent_SameKey(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m := lazymap.New[string, string]()
		var wg sync.WaitGroup
		wg.Add(1000)
		for j := 0; j < 1000; j++ {
			go func() {
				defer wg.Done()
				m.LoadOrCompute("k", func(string) (string, error) { return "v", nil })
			}()
		}
		wg.Wait()
	}
}

// Parallel hits on a warm map, the steady-state read path.
func BenchmarkConcurrent_WarmReads(b *testing.B) {
	m := lazymap.New[string, string]()
	m.Store("k", "v")

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Load("k")
		}
	})
}

// The locked variant's fast path: a warm key never touches the lock table.
func BenchmarkLockedLoadOrComputeHit(b *testing.B) {
	lm := lazymap.NewLocked[string, string]()
	ctx := context.Background()
	lm.Map().Store("k", "v")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lm.LoadOrCompute(ctx, "k", func(context.Context, string) (string, error) { return "v", nil })
	}
}
