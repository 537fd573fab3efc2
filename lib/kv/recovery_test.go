package kv_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/cedar/lib/kv"
)

func journalPath(opts *kv.Options) string {
	return filepath.Join(opts.Dir, opts.Name+".journal")
}

func snapshotPath(opts *kv.Options) string {
	return filepath.Join(opts.Dir, opts.Name+".snapshot")
}

// TestRecoverReplaysJournal tests that a reopened store reconstructs the
// exact state left behind by the previous instance.
func TestRecoverReplaysJournal(t *testing.T) {
	opts := testOptions(t)

	store := mustOpen(opts)

	if err := store.Set("plain", "value"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.SetEx("timed", "ticking", time.Minute); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}
	if err := store.Set("doomed", "gone"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Del("doomed"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if _, err := store.Append("log", "a"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := store.Append("log", "b"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Incr("counter"); err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// a second instance over the same directory replays the journal
	store = mustOpen(opts)
	defer store.Close()

	value, err := store.Get("plain")
	if err != nil || value != "value" {
		t.Errorf("Expected plain=value, got %q (%v)", value, err)
	}

	value, err = store.Get("timed")
	if err != nil || value != "ticking" {
		t.Errorf("Expected timed=ticking, got %q (%v)", value, err)
	}
	if ttl := store.TTL("timed"); ttl <= 0 || ttl > 60 {
		t.Errorf("Expected remaining TTL in (0,60], got %d", ttl)
	}

	if store.Exists("doomed") {
		t.Error("Deleted key must stay deleted after recovery")
	}

	value, err = store.Get("log")
	if err != nil || value != "ab" {
		t.Errorf("Expected log=ab, got %q (%v)", value, err)
	}

	value, err = store.Get("counter")
	if err != nil || value != "3" {
		t.Errorf("Expected counter=3, got %q (%v)", value, err)
	}
}

// TestRecoverDiscardsTruncatedTail tests that a crash mid-append loses at
// most the dangling fragment, never the valid prefix.
func TestRecoverDiscardsTruncatedTail(t *testing.T) {
	opts := testOptions(t)

	store := mustOpen(opts)
	if err := store.Set("k1", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set("k2", "v2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// simulate a crash mid-append: a fragment cut off before its comma
	f, err := os.OpenFile(journalPath(opts), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if _, err := f.WriteString(`"k3":{"value":"v3`); err != nil {
		t.Fatalf("write journal: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	store = mustOpen(opts)
	defer store.Close()

	for key, want := range map[string]string{"k1": "v1", "k2": "v2"} {
		value, err := store.Get(key)
		if err != nil || value != want {
			t.Errorf("Expected %s=%s, got %q (%v)", key, want, value, err)
		}
	}
	if store.Exists("k3") {
		t.Error("The truncated fragment must be discarded")
	}
}

// TestRecoverFallsBackToSnapshot tests that an unparseable journal is
// replaced by the snapshot state and the degradation is signalled.
func TestRecoverFallsBackToSnapshot(t *testing.T) {
	opts := testOptions(t)

	store := mustOpen(opts)
	if err := store.Set("k1", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set("k2", "v2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// total journal corruption: not a single fragment parses
	if err := os.WriteFile(journalPath(opts), []byte("%%% this is not a journal %%%"), 0o644); err != nil {
		t.Fatalf("corrupt journal: %v", err)
	}

	store = mustOpen(opts)
	defer store.Close()

	for key, want := range map[string]string{"k1": "v1", "k2": "v2"} {
		value, err := store.Get(key)
		if err != nil || value != want {
			t.Errorf("Expected %s=%s from snapshot, got %q (%v)", key, want, value, err)
		}
	}

	select {
	case diag := <-store.Diagnostics():
		if diag.Kind != kv.DiagRecoveryDegraded {
			t.Errorf("Expected RecoveryDegraded diagnostic, got %s", diag.Kind)
		}
	default:
		t.Error("Expected a diagnostic signal for the degraded recovery")
	}
}

// TestRecoverStartsEmptyAsLastResort tests that a store with unreadable
// journal and snapshot still opens, empty but operational.
func TestRecoverStartsEmptyAsLastResort(t *testing.T) {
	opts := testOptions(t)

	if err := os.WriteFile(journalPath(opts), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write journal: %v", err)
	}
	if err := os.WriteFile(snapshotPath(opts), []byte("also garbage"), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	store := mustOpen(opts)

	if store.Exists("anything") {
		t.Error("Store should start empty")
	}

	select {
	case diag := <-store.Diagnostics():
		if diag.Kind != kv.DiagRecoveryDegraded {
			t.Errorf("Expected RecoveryDegraded diagnostic, got %s", diag.Kind)
		}
	default:
		t.Error("Expected a diagnostic signal for the degraded recovery")
	}

	// the store must be fully usable and durable from here on
	if err := store.Set("fresh", "start"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	store = mustOpen(opts)
	defer store.Close()

	value, err := store.Get("fresh")
	if err != nil || value != "start" {
		t.Errorf("Expected fresh=start after reopen, got %q (%v)", value, err)
	}
}

// TestRecoverDropsExpiredRecords tests that a TTL keeps running while the
// store is offline: records whose deadline passed are not revived.
func TestRecoverDropsExpiredRecords(t *testing.T) {
	opts := testOptions(t)

	store := mustOpen(opts)
	if err := store.SetEx("ephemeral", "x", 150*time.Millisecond); err != nil {
		t.Fatalf("SetEx failed: %v", err)
	}
	if err := store.Set("durable", "y"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	store = mustOpen(opts)
	defer store.Close()

	if store.Exists("ephemeral") {
		t.Error("Record expired while offline must not be revived")
	}
	if ttl := store.TTL("ephemeral"); ttl != -2 {
		t.Errorf("Expected TTL -2, got %d", ttl)
	}
	if !store.Exists("durable") {
		t.Error("Record without TTL must survive")
	}
}

// TestRewriteCompactsJournal tests that a journal rewrite collapses the
// history to one fragment per live key without losing state.
func TestRewriteCompactsJournal(t *testing.T) {
	opts := testOptions(t)

	store := mustOpen(opts)

	for i := 0; i < 100; i++ {
		if _, err := store.Incr("counter"); err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
	}
	if err := store.Set("doomed", "x"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Del("doomed"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}

	store.BgRewriteAOF()
	time.Sleep(500 * time.Millisecond)

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(journalPath(opts))
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if n := bytes.Count(data, []byte(`"counter"`)); n != 1 {
		t.Errorf("Expected exactly one fragment for counter, found %d", n)
	}
	if bytes.Contains(data, []byte(`"doomed"`)) {
		t.Error("Rewritten journal must not contain deleted keys")
	}

	store = mustOpen(opts)
	defer store.Close()

	value, err := store.Get("counter")
	if err != nil || value != "100" {
		t.Errorf("Expected counter=100 after rewrite and reopen, got %q (%v)", value, err)
	}
}

// TestSaveWritesSnapshot tests that a synchronous save produces a loadable
// snapshot file.
func TestSaveWritesSnapshot(t *testing.T) {
	opts := testOptions(t)

	store := mustOpen(opts)
	defer store.Close()

	if err := store.Set("k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(snapshotPath(opts))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if !bytes.Contains(data, []byte(`"k"`)) {
		t.Errorf("Snapshot should contain the stored key, got %s", data)
	}

	// no staging file may be left behind
	if _, err := os.Stat(snapshotPath(opts) + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Staging file should not survive a save: %v", err)
	}
}
