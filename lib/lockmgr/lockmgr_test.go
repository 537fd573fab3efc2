package lockmgr

import (
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/cedar/lib/kv"
	"github.com/ValentinKolb/cedar/lib/logger"
)

func newTestStore(t *testing.T) kv.IStore {
	t.Helper()

	opts := kv.DefaultOptions()
	opts.Dir = t.TempDir()
	opts.Logger = logger.Suppressed()
	opts.SnapshotInterval = -1

	store, err := kv.Open(opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestAcquireRelease tests the basic lock lifecycle.
func TestAcquireRelease(t *testing.T) {
	mgr := NewLockManager(newTestStore(t))

	ok, ownerID, err := mgr.AcquireLock("resource", 0)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected to acquire the free lock")
	}
	if ownerID == "" {
		t.Fatal("Expected a non-empty owner ID")
	}

	// a second acquire must fail while the lock is held
	ok, _, err = mgr.AcquireLock("resource", 0)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if ok {
		t.Error("Expected the held lock to be unavailable")
	}

	released, err := mgr.ReleaseLock("resource", ownerID)
	if err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	if !released {
		t.Error("Expected the owner to release the lock")
	}

	// after the release the lock is free again
	ok, _, err = mgr.AcquireLock("resource", 0)
	if err != nil || !ok {
		t.Errorf("Expected to re-acquire the released lock, got ok=%t err=%v", ok, err)
	}
}

// TestReleaseOwnership tests that only the owner can release a lock.
func TestReleaseOwnership(t *testing.T) {
	mgr := NewLockManager(newTestStore(t))

	ok, _, err := mgr.AcquireLock("resource", 0)
	if err != nil || !ok {
		t.Fatalf("AcquireLock failed: ok=%t err=%v", ok, err)
	}

	released, err := mgr.ReleaseLock("resource", "not-the-owner")
	if err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	if released {
		t.Error("A foreign owner ID must not release the lock")
	}
}

// TestReleaseMissing tests that releasing a nonexistent lock succeeds.
func TestReleaseMissing(t *testing.T) {
	mgr := NewLockManager(newTestStore(t))

	released, err := mgr.ReleaseLock("never-locked", "whatever")
	if err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	if !released {
		t.Error("Releasing a nonexistent lock should report success")
	}
}

// TestLockExpiry tests that a lock with a TTL frees itself.
func TestLockExpiry(t *testing.T) {
	mgr := NewLockManager(newTestStore(t))

	ok, _, err := mgr.AcquireLock("resource", 150*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("AcquireLock failed: ok=%t err=%v", ok, err)
	}

	time.Sleep(300 * time.Millisecond)

	ok, _, err = mgr.AcquireLock("resource", 0)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !ok {
		t.Error("Expected the expired lock to be acquirable")
	}
}

// TestConcurrentAcquire tests that exactly one contender wins a free lock.
func TestConcurrentAcquire(t *testing.T) {
	mgr := NewLockManager(newTestStore(t))

	numWorkers := 16
	winners := 0

	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			ok, _, err := mgr.AcquireLock("contested", 0)
			if err != nil {
				t.Errorf("AcquireLock failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", winners)
	}
}
