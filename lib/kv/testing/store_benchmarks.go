package testing

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/cedar/lib/kv"
)

// RunStoreBenchmarks runs all benchmarks for an IStore implementation.
func RunStoreBenchmarks(b *testing.B, name string, factory StoreFactory) {
	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run("SetExisting", func(b *testing.B) {
		benchmarkSetExisting(b, factory())
	})

	b.Run("SetWithExpiry", func(b *testing.B) {
		benchmarkSetWithExpiry(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Exists", func(b *testing.B) {
		benchmarkExists(b, factory())
	})

	b.Run("Incr", func(b *testing.B) {
		benchmarkIncr(b, factory())
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkSet(b *testing.B, store kv.IStore) {
	b.Cleanup(func() {
		store.Close()
	})

	var counter atomic.Uint64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			_ = store.Set(fmt.Sprintf("bench-key-%d", i), "bench-value")
		}
	})
}

func benchmarkSetExisting(b *testing.B, store kv.IStore) {
	b.Cleanup(func() {
		store.Close()
	})

	_ = store.Set("bench-key", "initial")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = store.Set("bench-key", "bench-value")
		}
	})
}

func benchmarkSetWithExpiry(b *testing.B, store kv.IStore) {
	b.Cleanup(func() {
		store.Close()
	})

	var counter atomic.Uint64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			_ = store.SetEx(fmt.Sprintf("bench-key-%d", i), "bench-value", time.Minute)
		}
	})
}

func benchmarkGet(b *testing.B, store kv.IStore) {
	b.Cleanup(func() {
		store.Close()
	})

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		_ = store.Set(fmt.Sprintf("bench-key-%d", i), "bench-value")
	}

	var counter atomic.Uint64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			_, _ = store.Get(fmt.Sprintf("bench-key-%d", i%uint64(numKeys)))
		}
	})
}

func benchmarkExists(b *testing.B, store kv.IStore) {
	b.Cleanup(func() {
		store.Close()
	})

	_ = store.Set("bench-key", "bench-value")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = store.Exists("bench-key")
		}
	})
}

func benchmarkIncr(b *testing.B, store kv.IStore) {
	b.Cleanup(func() {
		store.Close()
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = store.Incr("bench-counter")
		}
	})
}

func benchmarkDelete(b *testing.B, store kv.IStore) {
	b.Cleanup(func() {
		store.Close()
	})

	var counter atomic.Uint64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			key := fmt.Sprintf("bench-key-%d", i)
			_ = store.Set(key, "bench-value")
			_ = store.Del(key)
		}
	})
}

func benchmarkMixedUsage(b *testing.B, store kv.IStore) {
	b.Cleanup(func() {
		store.Close()
	})

	var counter atomic.Uint64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			key := fmt.Sprintf("bench-key-%d", i%100)
			switch i % 4 {
			case 0:
				_ = store.Set(key, "bench-value")
			case 1:
				_, _ = store.Get(key)
			case 2:
				_ = store.Exists(key)
			case 3:
				_, _ = store.Append(key, "x")
			}
		}
	})
}
