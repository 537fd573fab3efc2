package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/cedar/lib/table"
)

// TestParseFragments tests parsing of a complete fragment sequence.
func TestParseFragments(t *testing.T) {
	data := []byte(`"a":{"value":"1"},"b":{"value":"2","expire_at":99},"a":null,`)

	entries, consumed := parseFragments(data)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if consumed != len(data) {
		t.Errorf("Expected all %d bytes consumed, got %d", len(data), consumed)
	}

	if entries[0].Key != "a" || entries[0].Rec.Value != "1" {
		t.Errorf("Unexpected first entry %+v", entries[0])
	}
	if entries[1].Key != "b" || entries[1].Rec.ExpireAt != 99 {
		t.Errorf("Unexpected second entry %+v", entries[1])
	}
	if entries[2].Key != "a" || entries[2].Rec != nil {
		t.Errorf("Expected a tombstone, got %+v", entries[2])
	}

	state := Replay(entries)
	if _, ok := state["a"]; ok {
		t.Error("Replay must honor the tombstone")
	}
	if state["b"].Value != "2" {
		t.Errorf("Expected b=2, got %q", state["b"].Value)
	}
}

// TestParseFragmentsWhitespace tests that whitespace between fragments is
// tolerated.
func TestParseFragmentsWhitespace(t *testing.T) {
	data := []byte("\n\"a\":{\"value\":\"1\"},\n\t \"b\":{\"value\":\"2\"},\n")

	entries, _ := parseFragments(data)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
}

// TestParseFragmentsTruncation tests that truncation at any point inside
// the final fragment discards exactly that fragment.
func TestParseFragmentsTruncation(t *testing.T) {
	full := `"a":{"value":"1"},"b":{"value":"2"},`
	prefixLen := len(`"a":{"value":"1"},`)

	// cut the second fragment off at every possible position
	for cut := prefixLen; cut < len(full); cut++ {
		entries, consumed := parseFragments([]byte(full[:cut]))
		if len(entries) != 1 {
			t.Errorf("cut=%d: expected 1 entry, got %d", cut, len(entries))
			continue
		}
		if entries[0].Key != "a" {
			t.Errorf("cut=%d: expected the intact prefix, got %+v", cut, entries[0])
		}
		if consumed != prefixLen {
			t.Errorf("cut=%d: expected %d bytes consumed, got %d", cut, prefixLen, consumed)
		}
	}
}

// TestParseFragmentsGarbage tests that malformed input yields no entries.
func TestParseFragmentsGarbage(t *testing.T) {
	for _, input := range []string{
		"garbage",
		`{"not":"a fragment"}`,
		`"key"{"value":"v"},`, // missing colon
		`"key":[1,2,3],`,      // value is not an object
	} {
		entries, _ := parseFragments([]byte(input))
		if len(entries) != 0 {
			t.Errorf("input %q: expected no entries, got %d", input, len(entries))
		}
	}
}

// TestRecoverMissingFile tests that a missing journal is an empty journal.
func TestRecoverMissingFile(t *testing.T) {
	state, err := Recover(filepath.Join(t.TempDir(), "does-not-exist.journal"))
	if err != nil {
		t.Fatalf("Expected no error for a missing file, got %v", err)
	}
	if len(state) != 0 {
		t.Errorf("Expected empty state, got %d keys", len(state))
	}
}

// TestRecoverEmptyFile tests that an empty journal file is valid.
func TestRecoverEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.journal")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	state, err := Recover(path)
	if err != nil {
		t.Fatalf("Expected no error for an empty file, got %v", err)
	}
	if len(state) != 0 {
		t.Errorf("Expected empty state, got %d keys", len(state))
	}
}

// TestRecoverUnparseableFile tests that a non-empty file without a single
// parseable fragment is a parse failure.
func TestRecoverUnparseableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.journal")
	if err := os.WriteFile(path, []byte("%%% not a journal %%%"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Recover(path); err == nil {
		t.Error("Expected an error for unparseable content")
	}
}

// TestRecoverLargeHistory tests replay over a long history with repeated
// overwrites and deletions.
func TestRecoverLargeHistory(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		sb.Write(encodeFragment("k", &table.Record{Value: "old"}))
	}
	sb.Write(encodeFragment("k", &table.Record{Value: "final"}))
	sb.Write(encodeFragment("gone", &table.Record{Value: "x"}))
	sb.Write(encodeFragment("gone", nil))

	path := filepath.Join(t.TempDir(), "history.journal")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	state, err := Recover(path)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(state) != 1 || state["k"].Value != "final" {
		t.Errorf("Expected exactly {k: final}, got %v", state)
	}
}
