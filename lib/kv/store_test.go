package kv_test

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/cedar/lib/kv"
	kvtesting "github.com/ValentinKolb/cedar/lib/kv/testing"
	"github.com/ValentinKolb/cedar/lib/logger"
)

// testOptions returns store options pointing at a fresh temp directory.
func testOptions(tb testing.TB) *kv.Options {
	opts := kv.DefaultOptions()
	opts.Dir = tb.TempDir()
	opts.Logger = logger.Suppressed()
	opts.SnapshotInterval = -1 // no background snapshots during tests
	return opts
}

func Test(t *testing.T) {
	kvtesting.RunStoreTests(t, "Store", func() kv.IStore {
		return mustOpen(testOptions(t))
	})
}

func Benchmark(b *testing.B) {
	kvtesting.RunStoreBenchmarks(b, "Store", func() kv.IStore {
		return mustOpen(testOptions(b))
	})
}

// mustOpen opens a store or panics. The factory runs inside subtests, so
// failing the outer test from here is not an option.
func mustOpen(opts *kv.Options) kv.IStore {
	store, err := kv.Open(opts)
	if err != nil {
		panic(err)
	}
	return store
}

// TestCloseIdempotent tests that closing a store twice is safe.
func TestCloseIdempotent(t *testing.T) {
	store, err := kv.Open(testOptions(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("First Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

// TestErrorCodes tests the error classification helpers.
func TestErrorCodes(t *testing.T) {
	store, err := kv.Open(testOptions(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	_, err = store.Get("missing")
	if !kv.IsNotFound(err) {
		t.Errorf("Expected NotFound, got %v", err)
	}
	if kv.IsTypeMismatch(err) {
		t.Errorf("NotFound error misclassified as TypeMismatch")
	}

	var storeErr *kv.Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("Expected *kv.Error, got %T", err)
	}
	if storeErr.Code != kv.RetCNotFound {
		t.Errorf("Expected code NotFound, got %s", storeErr.Code)
	}
}
