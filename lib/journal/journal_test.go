package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ValentinKolb/cedar/lib/logger"
	"github.com/ValentinKolb/cedar/lib/table"
)

func openTestJournal(t *testing.T, policy SyncPolicy) (*Journal, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.journal")
	j, err := Open(path, "test", policy, logger.Suppressed(), func(err error) {
		t.Errorf("unexpected background IO failure: %v", err)
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return j, path
}

// TestAppendAndRecover tests the basic append/flush/recover round trip.
func TestAppendAndRecover(t *testing.T) {
	j, path := openTestJournal(t, SyncEverySecond)

	j.Append("k1", &table.Record{Value: "v1"})
	j.Append("k2", &table.Record{Value: "v2", ExpireAt: 12345})
	j.Append("k1", &table.Record{Value: "v1-new"})

	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	state, err := Recover(path)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	if len(state) != 2 {
		t.Fatalf("Expected 2 keys, got %d", len(state))
	}
	if state["k1"].Value != "v1-new" {
		t.Errorf("Expected last write to win, got %q", state["k1"].Value)
	}
	if state["k2"].Value != "v2" || state["k2"].ExpireAt != 12345 {
		t.Errorf("Expected {v2 12345}, got %+v", state["k2"])
	}
}

// TestTombstone tests that a nil record removes the key on replay.
func TestTombstone(t *testing.T) {
	j, path := openTestJournal(t, SyncEverySecond)

	j.Append("k", &table.Record{Value: "v"})
	j.Append("k", nil)

	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	state, err := Recover(path)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if _, ok := state["k"]; ok {
		t.Error("Tombstoned key must not survive replay")
	}
}

// TestFlushDurability tests that Flush blocks until queued fragments are
// on disk.
func TestFlushDurability(t *testing.T) {
	j, path := openTestJournal(t, SyncEverySecond)
	defer j.Close()

	for i := 0; i < 100; i++ {
		j.Append(fmt.Sprintf("k%d", i), &table.Record{Value: "v"})
	}

	if err := j.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// the file must already contain every fragment, without Close
	state, err := Recover(path)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(state) != 100 {
		t.Errorf("Expected 100 keys after Flush, got %d", len(state))
	}
}

// TestSyncAlways tests the write-through fsync policy.
func TestSyncAlways(t *testing.T) {
	j, path := openTestJournal(t, SyncAlways)

	j.Append("k", &table.Record{Value: "v"})
	if err := j.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	state, err := Recover(path)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if state["k"].Value != "v" {
		t.Errorf("Expected v, got %q", state["k"].Value)
	}

	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

// TestConcurrentAppends tests that fragments from many producers are all
// applied.
func TestConcurrentAppends(t *testing.T) {
	j, path := openTestJournal(t, SyncEverySecond)

	numWorkers := 8
	keysPerWorker := 250

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < keysPerWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", worker, i)
				j.Append(key, &table.Record{Value: "v"})
			}
		}(w)
	}
	wg.Wait()

	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	state, err := Recover(path)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(state) != numWorkers*keysPerWorker {
		t.Errorf("Expected %d keys, got %d", numWorkers*keysPerWorker, len(state))
	}
}

// TestCompact tests that a rewrite collapses history and that appends
// continue to work on the rewritten file.
func TestCompact(t *testing.T) {
	j, path := openTestJournal(t, SyncEverySecond)

	for i := 0; i < 50; i++ {
		j.Append("hot", &table.Record{Value: fmt.Sprintf("v%d", i)})
	}
	j.Append("dead", &table.Record{Value: "x"})
	j.Append("dead", nil)

	live := map[string]table.Record{
		"hot": {Value: "v49"},
	}
	if err := j.Compact(func() map[string]table.Record { return live }); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	// the compacted file holds exactly the live state
	state, err := Recover(path)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(state) != 1 || state["hot"].Value != "v49" {
		t.Errorf("Expected exactly {hot: v49}, got %v", state)
	}

	// appends after the rewrite land in the new file
	j.Append("later", &table.Record{Value: "y"})
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	state, err = Recover(path)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if state["later"].Value != "y" {
		t.Errorf("Expected post-rewrite append to survive, got %v", state)
	}

	// no staging file may be left behind
	if _, err := os.Stat(path + ".rewrite"); !os.IsNotExist(err) {
		t.Errorf("Staging file should not survive a rewrite: %v", err)
	}
}

// TestEncodeFragment tests the on-disk fragment shape.
func TestEncodeFragment(t *testing.T) {
	frag := encodeFragment("key", &table.Record{Value: "v"})
	if string(frag) != `"key":{"value":"v"},` {
		t.Errorf("Unexpected fragment %s", frag)
	}

	frag = encodeFragment("key", &table.Record{Value: "v", ExpireAt: 7})
	if string(frag) != `"key":{"value":"v","expire_at":7},` {
		t.Errorf("Unexpected fragment %s", frag)
	}

	frag = encodeFragment("key", nil)
	if string(frag) != `"key":null,` {
		t.Errorf("Unexpected tombstone fragment %s", frag)
	}

	// keys with JSON metacharacters must be escaped, not framed raw
	frag = encodeFragment(`a"b`, nil)
	if string(frag) != `"a\"b":null,` {
		t.Errorf("Unexpected escaped fragment %s", frag)
	}
}
