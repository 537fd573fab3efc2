package testing

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/cedar/lib/kv"
)

// StoreFactory is a function that creates a new instance of an IStore
// implementation. Every invocation must yield a fresh, empty store.
type StoreFactory func() kv.IStore

// RunStoreTests runs a comprehensive test suite for an IStore
// implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Exists", func(t *testing.T) {
			testExists(t, factory())
		})

		t.Run("SetNX", func(t *testing.T) {
			testSetNX(t, factory())
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			testKeyExpiry(t, factory())
		})

		t.Run("Expire&Persist", func(t *testing.T) {
			testExpirePersist(t, factory())
		})

		t.Run("TTLReporting", func(t *testing.T) {
			testTTLReporting(t, factory())
		})

		t.Run("Append", func(t *testing.T) {
			testAppend(t, factory())
		})

		t.Run("IncrDecr", func(t *testing.T) {
			testIncrDecr(t, factory())
		})

		t.Run("MGet", func(t *testing.T) {
			testMGet(t, factory())
		})

		t.Run("GetSet", func(t *testing.T) {
			testGetSet(t, factory())
		})

		t.Run("Strlen", func(t *testing.T) {
			testStrlen(t, factory())
		})

		t.Run("GetRange", func(t *testing.T) {
			testGetRange(t, factory())
		})

		t.Run("SetRange", func(t *testing.T) {
			testSetRange(t, factory())
		})

		t.Run("RandomKey", func(t *testing.T) {
			testRandomKey(t, factory())
		})

		t.Run("Dump", func(t *testing.T) {
			testDump(t, factory())
		})

		t.Run("ManyExpiringKeys", func(t *testing.T) {
			testManyExpiringKeys(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, store kv.IStore) {
	defer store.Close()

	testKey := "test-key"

	if err := store.Set(testKey, "test-value1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, err := store.Get(testKey)
	if err != nil {
		t.Errorf("Expected key %s to exist after Set, got %v", testKey, err)
	}
	if value != "test-value1" {
		t.Errorf("Expected value test-value1, got %s", value)
	}

	// overwriting must replace the value
	if err := store.Set(testKey, "test-value2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, err = store.Get(testKey)
	if err != nil {
		t.Errorf("Expected key %s to exist after overwrite, got %v", testKey, err)
	}
	if value != "test-value2" {
		t.Errorf("Expected value test-value2, got %s", value)
	}

	// a missing key must yield a NotFound error
	_, err = store.Get("nonexistent-key")
	if !kv.IsNotFound(err) {
		t.Errorf("Expected NotFound for nonexistent key, got %v", err)
	}

	// empty values are legal
	if err := store.Set("empty-key", ""); err != nil {
		t.Fatalf("Set with empty value failed: %v", err)
	}
	value, err = store.Get("empty-key")
	if err != nil {
		t.Errorf("Expected empty-key to exist, got %v", err)
	}
	if value != "" {
		t.Errorf("Expected empty value, got %q", value)
	}
}

func testDelete(t *testing.T, store kv.IStore) {
	defer store.Close()

	testKey := "delete-key"

	if err := store.Set(testKey, "value"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.Del(testKey); err != nil {
		t.Errorf("Del of existing key failed: %v", err)
	}

	if store.Exists(testKey) {
		t.Errorf("Key %s should not exist after Del", testKey)
	}

	// deleting an absent key reports NotFound but must not corrupt state
	err := store.Del(testKey)
	if !kv.IsNotFound(err) {
		t.Errorf("Expected NotFound when deleting absent key, got %v", err)
	}

	if err := store.Set(testKey, "value2"); err != nil {
		t.Fatalf("Set after Del failed: %v", err)
	}
	value, err := store.Get(testKey)
	if err != nil || value != "value2" {
		t.Errorf("Expected value2 after re-set, got %q (%v)", value, err)
	}
}

func testExists(t *testing.T, store kv.IStore) {
	defer store.Close()

	if store.Exists("missing") {
		t.Error("Exists should report false for a missing key")
	}

	if err := store.Set("present", "x"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !store.Exists("present") {
		t.Error("Exists should report true for a present key")
	}
}

func testSetNX(t *testing.T, store kv.IStore) {
	defer store.Close()

	testKey := "nx-key"

	ok, err := store.SetNX(testKey, "first", 0)
	if err != nil {
		t.Fatalf("SetNX failed: %v", err)
	}
	if !ok {
		t.Error("SetNX on an absent key should win")
	}

	// a second SetNX must lose and leave the value untouched
	ok, err = store.SetNX(testKey, "second", 0)
	if err != nil {
		t.Fatalf("SetNX failed: %v", err)
	}
	if ok {
		t.Error("SetNX on a present key should lose")
	}
	value, err := store.Get(testKey)
	if err != nil || value != "first" {
		t.Errorf("Expected first, got %q (%v)", value, err)
	}

	// an expired record does not block SetNX
	if err := store.SetEx("nx-timed", "x", 100*time.Millisecond); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	ok, err = store.SetNX("nx-timed", "fresh", time.Minute)
	if err != nil {
		t.Fatalf("SetNX failed: %v", err)
	}
	if !ok {
		t.Error("SetNX should win over an expired record")
	}
	if ttl := store.TTL("nx-timed"); ttl <= 0 || ttl > 60 {
		t.Errorf("Expected remaining TTL in (0,60], got %d", ttl)
	}
}

func testKeyExpiry(t *testing.T, store kv.IStore) {
	defer store.Close()

	testKey := "expiring-key"

	if err := store.SetEx(testKey, "expiring-value", 150*time.Millisecond); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}

	// well before the deadline the key must be visible
	value, err := store.Get(testKey)
	if err != nil {
		t.Errorf("Key should exist before the deadline, got %v", err)
	}
	if value != "expiring-value" {
		t.Errorf("Expected expiring-value, got %s", value)
	}

	// after the deadline it must be gone for every reader
	time.Sleep(300 * time.Millisecond)

	if _, err := store.Get(testKey); !kv.IsNotFound(err) {
		t.Errorf("Key should be expired, Get returned %v", err)
	}
	if store.Exists(testKey) {
		t.Errorf("Key should be expired, Exists returned true")
	}
	if ttl := store.TTL(testKey); ttl != -2 {
		t.Errorf("Expected TTL -2 for expired key, got %d", ttl)
	}

	// overwriting a key with a TTL through Set must clear the TTL
	if err := store.SetEx(testKey, "short-lived", 100*time.Millisecond); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}
	if err := store.Set(testKey, "permanent"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	value, err = store.Get(testKey)
	if err != nil {
		t.Errorf("Key overwritten via Set should not expire, got %v", err)
	}
	if value != "permanent" {
		t.Errorf("Expected permanent, got %s", value)
	}
}

func testExpirePersist(t *testing.T, store kv.IStore) {
	defer store.Close()

	testKey := "ttl-key"

	// Expire on a missing key must fail
	if err := store.Expire(testKey, time.Second); !kv.IsNotFound(err) {
		t.Errorf("Expected NotFound for Expire on missing key, got %v", err)
	}

	if err := store.Set(testKey, "value"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.Expire(testKey, 150*time.Millisecond); err != nil {
		t.Errorf("Expire failed: %v", err)
	}

	// Persist before the deadline keeps the key alive forever
	if err := store.Persist(testKey); err != nil {
		t.Errorf("Persist failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	if !store.Exists(testKey) {
		t.Error("Persisted key should not have expired")
	}
	if ttl := store.TTL(testKey); ttl != -1 {
		t.Errorf("Expected TTL -1 after Persist, got %d", ttl)
	}

	// Persist on a key without a TTL is a safe no-op
	if err := store.Persist(testKey); err != nil {
		t.Errorf("Persist without active TTL should succeed, got %v", err)
	}

	// Expire must replace an earlier deadline
	if err := store.Expire(testKey, 50*time.Millisecond); err != nil {
		t.Errorf("Expire failed: %v", err)
	}
	if err := store.Expire(testKey, time.Minute); err != nil {
		t.Errorf("Expire failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	if !store.Exists(testKey) {
		t.Error("Key should survive, the later Expire replaced the 50ms deadline")
	}

	// Persist on a missing key must fail
	if err := store.Persist("missing"); !kv.IsNotFound(err) {
		t.Errorf("Expected NotFound for Persist on missing key, got %v", err)
	}
}

func testTTLReporting(t *testing.T, store kv.IStore) {
	defer store.Close()

	if ttl := store.TTL("missing"); ttl != -2 {
		t.Errorf("Expected TTL -2 for missing key, got %d", ttl)
	}
	if pttl := store.PTTL("missing"); pttl != -2 {
		t.Errorf("Expected PTTL -2 for missing key, got %d", pttl)
	}

	if err := store.Set("plain", "x"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if ttl := store.TTL("plain"); ttl != -1 {
		t.Errorf("Expected TTL -1 for key without expiry, got %d", ttl)
	}
	if pttl := store.PTTL("plain"); pttl != -1 {
		t.Errorf("Expected PTTL -1 for key without expiry, got %d", pttl)
	}

	// a fresh 10s TTL reports 10 seconds (rounded up) and a millisecond
	// remainder just below 10000
	if err := store.SetEx("timed", "x", 10*time.Second); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}

	if ttl := store.TTL("timed"); ttl != 10 {
		t.Errorf("Expected TTL 10 right after SetEx, got %d", ttl)
	}
	if pttl := store.PTTL("timed"); pttl <= 9000 || pttl > 10000 {
		t.Errorf("Expected PTTL in (9000,10000], got %d", pttl)
	}
}

func testAppend(t *testing.T, store kv.IStore) {
	defer store.Close()

	// appending to a missing key creates it
	length, err := store.Append("greeting", "Hello")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if length != 5 {
		t.Errorf("Expected length 5, got %d", length)
	}

	length, err = store.Append("greeting", " World")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if length != 11 {
		t.Errorf("Expected length 11, got %d", length)
	}

	value, err := store.Get("greeting")
	if err != nil || value != "Hello World" {
		t.Errorf("Expected Hello World, got %q (%v)", value, err)
	}

	// Append must preserve an active TTL
	if err := store.SetEx("timed", "a", time.Minute); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}
	if _, err := store.Append("timed", "b"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if ttl := store.TTL("timed"); ttl <= 0 {
		t.Errorf("Append should preserve the TTL, got %d", ttl)
	}
}

func testIncrDecr(t *testing.T, store kv.IStore) {
	defer store.Close()

	// an absent key counts as 0
	value, err := store.Incr("counter")
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if value != "1" {
		t.Errorf("Expected 1, got %s", value)
	}

	value, err = store.Incr("counter")
	if err != nil || value != "2" {
		t.Errorf("Expected 2, got %s (%v)", value, err)
	}

	value, err = store.Decr("counter")
	if err != nil || value != "1" {
		t.Errorf("Expected 1, got %s (%v)", value, err)
	}

	value, err = store.IncrBy("counter", 41)
	if err != nil || value != "42" {
		t.Errorf("Expected 42, got %s (%v)", value, err)
	}

	value, err = store.IncrBy("counter", -42)
	if err != nil || value != "0" {
		t.Errorf("Expected 0, got %s (%v)", value, err)
	}

	// decrementing below zero is fine
	value, err = store.Decr("counter")
	if err != nil || value != "-1" {
		t.Errorf("Expected -1, got %s (%v)", value, err)
	}

	// a non-numeric value must yield TypeMismatch and leave the value alone
	if err := store.Set("text", "not-a-number"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := store.Incr("text"); !kv.IsTypeMismatch(err) {
		t.Errorf("Expected TypeMismatch, got %v", err)
	}
	value, err = store.Get("text")
	if err != nil || value != "not-a-number" {
		t.Errorf("Failed Incr must not change the value, got %q (%v)", value, err)
	}

	// Incr stores through the plain set path and clears the TTL
	if err := store.SetEx("timed-counter", "7", time.Minute); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}
	if _, err := store.Incr("timed-counter"); err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if ttl := store.TTL("timed-counter"); ttl != -1 {
		t.Errorf("Incr should clear the TTL, got %d", ttl)
	}
}

func testMGet(t *testing.T, store kv.IStore) {
	defer store.Close()

	if err := store.Set("a", "1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set("c", "3"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	values := store.MGet("a", "b", "c")
	if len(values) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(values))
	}
	if values[0] == nil || *values[0] != "1" {
		t.Errorf("Expected a=1, got %v", values[0])
	}
	if values[1] != nil {
		t.Errorf("Expected nil for missing key b, got %q", *values[1])
	}
	if values[2] == nil || *values[2] != "3" {
		t.Errorf("Expected c=3, got %v", values[2])
	}
}

func testGetSet(t *testing.T, store kv.IStore) {
	defer store.Close()

	// on an absent key the new value is installed but NotFound is returned
	_, err := store.GetSet("gs", "first")
	if !kv.IsNotFound(err) {
		t.Errorf("Expected NotFound for GetSet on absent key, got %v", err)
	}
	value, err := store.Get("gs")
	if err != nil || value != "first" {
		t.Errorf("GetSet must install the value even when absent, got %q (%v)", value, err)
	}

	prior, err := store.GetSet("gs", "second")
	if err != nil {
		t.Fatalf("GetSet failed: %v", err)
	}
	if prior != "first" {
		t.Errorf("Expected prior value first, got %s", prior)
	}
	value, err = store.Get("gs")
	if err != nil || value != "second" {
		t.Errorf("Expected second, got %q (%v)", value, err)
	}

	// GetSet clears an active TTL
	if err := store.SetEx("timed", "x", time.Minute); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}
	if _, err := store.GetSet("timed", "y"); err != nil {
		t.Fatalf("GetSet failed: %v", err)
	}
	if ttl := store.TTL("timed"); ttl != -1 {
		t.Errorf("GetSet should clear the TTL, got %d", ttl)
	}
}

func testStrlen(t *testing.T, store kv.IStore) {
	defer store.Close()

	if n := store.Strlen("missing"); n != 0 {
		t.Errorf("Expected 0 for missing key, got %d", n)
	}

	if err := store.Set("s", "hello"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if n := store.Strlen("s"); n != 5 {
		t.Errorf("Expected 5, got %d", n)
	}
}

func testGetRange(t *testing.T, store kv.IStore) {
	defer store.Close()

	if err := store.Set("s", "hello"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	cases := []struct {
		start, end int
		want       string
	}{
		{0, 4, "hello"},
		{0, 0, "h"},
		{1, 3, "ell"},
		{-3, -1, "llo"},
		{0, -1, "hello"},
		{0, 100, "hello"}, // end is clamped to the value length
		{-100, 1, "he"},   // start is clamped to 0
		{3, 1, ""},        // inverted range
		{10, 20, ""},      // past the end
	}

	for _, c := range cases {
		if got := store.GetRange("s", c.start, c.end); got != c.want {
			t.Errorf("GetRange(%d,%d) = %q, want %q", c.start, c.end, got, c.want)
		}
	}

	if got := store.GetRange("missing", 0, 10); got != "" {
		t.Errorf("Expected empty string for missing key, got %q", got)
	}
}

func testSetRange(t *testing.T, store kv.IStore) {
	defer store.Close()

	// writing past the end grows the value with NUL padding
	length, err := store.SetRange("padded", 5, "abc")
	if err != nil {
		t.Fatalf("SetRange failed: %v", err)
	}
	if length != 8 {
		t.Errorf("Expected length 8, got %d", length)
	}
	value, err := store.Get("padded")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "\x00\x00\x00\x00\x00abc" {
		t.Errorf("Expected NUL padding, got %q", value)
	}

	// a write inside an existing value preserves the trailing content
	if err := store.Set("s", "Hello World"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	length, err = store.SetRange("s", 6, "Redis")
	if err != nil {
		t.Fatalf("SetRange failed: %v", err)
	}
	if length != 11 {
		t.Errorf("Expected length 11, got %d", length)
	}
	value, _ = store.Get("s")
	if value != "Hello Redis" {
		t.Errorf("Expected Hello Redis, got %q", value)
	}

	// a shorter write keeps everything after the written window
	if _, err := store.SetRange("s", 0, "J"); err != nil {
		t.Fatalf("SetRange failed: %v", err)
	}
	value, _ = store.Get("s")
	if value != "Jello Redis" {
		t.Errorf("Expected Jello Redis, got %q", value)
	}

	// negative offsets count from the end
	if err := store.Set("neg", "abcdef"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := store.SetRange("neg", -2, "XY"); err != nil {
		t.Fatalf("SetRange failed: %v", err)
	}
	value, _ = store.Get("neg")
	if value != "abcdXY" {
		t.Errorf("Expected abcdXY, got %q", value)
	}

	// an empty value writes nothing and reports the current length
	length, err = store.SetRange("neg", 0, "")
	if err != nil {
		t.Fatalf("SetRange failed: %v", err)
	}
	if length != 6 {
		t.Errorf("Expected unchanged length 6, got %d", length)
	}

	// SetRange must preserve an active TTL
	if err := store.SetEx("timed", "abc", time.Minute); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}
	if _, err := store.SetRange("timed", 0, "x"); err != nil {
		t.Fatalf("SetRange failed: %v", err)
	}
	if ttl := store.TTL("timed"); ttl <= 0 {
		t.Errorf("SetRange should preserve the TTL, got %d", ttl)
	}
}

func testRandomKey(t *testing.T, store kv.IStore) {
	defer store.Close()

	if _, ok := store.RandomKey(); ok {
		t.Error("RandomKey on an empty store should report false")
	}

	keys := map[string]bool{"k1": true, "k2": true, "k3": true}
	for key := range keys {
		if err := store.Set(key, "v"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	key, ok := store.RandomKey()
	if !ok {
		t.Fatal("RandomKey should find a key")
	}
	if !keys[key] {
		t.Errorf("RandomKey returned unknown key %q", key)
	}
}

func testDump(t *testing.T, store kv.IStore) {
	defer store.Close()

	if _, err := store.Dump("missing"); !kv.IsNotFound(err) {
		t.Errorf("Expected NotFound for Dump on missing key, got %v", err)
	}

	if err := store.Set("plain", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	rec, err := store.Dump("plain")
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	if rec.Value != "v" || rec.ExpireAt != 0 {
		t.Errorf("Expected {v 0}, got %+v", rec)
	}

	if err := store.SetEx("timed", "w", time.Minute); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}
	rec, err = store.Dump("timed")
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	if rec.Value != "w" || rec.ExpireAt == 0 {
		t.Errorf("Expected a deadline on the dumped record, got %+v", rec)
	}
}

func testManyExpiringKeys(t *testing.T, store kv.IStore) {
	defer store.Close()

	numKeys := 500

	// half the keys expire quickly, half live long
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("expire-key-%d", i)
		ttl := time.Minute
		if i%2 == 0 {
			ttl = 100 * time.Millisecond
		}
		if err := store.SetEx(key, fmt.Sprintf("expire-value-%d", i), ttl); err != nil {
			t.Fatalf("SetEx failed: %v", err)
		}
	}

	time.Sleep(500 * time.Millisecond)

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("expire-key-%d", i)
		exists := store.Exists(key)
		if i%2 == 0 && exists {
			t.Errorf("Key %s should have expired", key)
		}
		if i%2 != 0 && !exists {
			t.Errorf("Key %s should still exist", key)
		}
	}
}

func testRealisticUsage(t *testing.T, store kv.IStore) {
	defer store.Close()

	numWorkers := 8
	opsPerWorker := 200

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", worker, i%20)
				switch i % 5 {
				case 0:
					_ = store.Set(key, fmt.Sprintf("value-%d", i))
				case 1:
					_, _ = store.Get(key)
				case 2:
					_, _ = store.Append(key, "x")
				case 3:
					_ = store.Exists(key)
				case 4:
					_ = store.Del(key)
				}
			}
		}(w)
	}

	// a shared counter hammered from every worker must end up exact
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				if _, err := store.Incr("shared-counter"); err != nil {
					t.Errorf("Incr failed: %v", err)
					return
				}
			}
		}()
	}

	wg.Wait()

	value, err := store.Get("shared-counter")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := fmt.Sprintf("%d", numWorkers*opsPerWorker)
	if value != want {
		t.Errorf("Expected counter %s, got %s", want, value)
	}
}
