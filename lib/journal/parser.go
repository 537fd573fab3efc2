package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ValentinKolb/cedar/lib/table"
)

// Entry is one parsed journal fragment. A nil Rec is a tombstone.
type Entry struct {
	Key string
	Rec *table.Record
}

// Recover reads the journal file and replays it into the state it implies.
//
// The parser walks the fragment sequence and stops at the last complete
// fragment: a dangling, incomplete trailing fragment (crash mid-append) is
// discarded silently and the valid prefix wins. A missing file is an empty
// journal. An unreadable file, or a non-empty file from which not a single
// fragment parses, is a parse failure and returns an error so the caller
// can fall back to the snapshot.
func Recover(path string) (map[string]table.Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]table.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: read %s: %w", path, err)
	}

	entries, _ := parseFragments(data)
	if len(entries) == 0 && len(bytes.TrimSpace(data)) > 0 {
		return nil, fmt.Errorf("journal: no parseable fragment in %d bytes", len(data))
	}

	return Replay(entries), nil
}

// Replay applies a fragment sequence to an empty state: last entry per key
// wins, a tombstone removes the key.
func Replay(entries []Entry) map[string]table.Record {
	state := make(map[string]table.Record, len(entries))
	for _, e := range entries {
		if e.Rec == nil {
			delete(state, e.Key)
		} else {
			state[e.Key] = *e.Rec
		}
	}
	return state
}

// parseFragments scans fragments of the form `"<key>":<record-or-null>,`
// from data. It returns the parsed prefix and the number of bytes it
// consumed; scanning stops at the first incomplete or malformed fragment.
func parseFragments(data []byte) (entries []Entry, consumed int) {
	pos := 0

	for {
		pos = skipSpace(data, pos)
		if pos >= len(data) {
			return entries, pos
		}
		start := pos

		// key
		dec := json.NewDecoder(bytes.NewReader(data[pos:]))
		var key string
		if err := dec.Decode(&key); err != nil {
			return entries, start
		}
		pos += int(dec.InputOffset())

		// separator
		pos = skipSpace(data, pos)
		if pos >= len(data) || data[pos] != ':' {
			return entries, start
		}
		pos++

		// record or tombstone
		dec = json.NewDecoder(bytes.NewReader(data[pos:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return entries, start
		}
		pos += int(dec.InputOffset())

		var rec *table.Record
		if !bytes.Equal(raw, []byte("null")) {
			r := table.Record{}
			if err := json.Unmarshal(raw, &r); err != nil {
				return entries, start
			}
			rec = &r
		}

		// the trailing comma marks the fragment as complete
		pos = skipSpace(data, pos)
		if pos >= len(data) || data[pos] != ',' {
			return entries, start
		}
		pos++

		entries = append(entries, Entry{Key: key, Rec: rec})
		consumed = pos
	}
}

func skipSpace(data []byte, pos int) int {
	for pos < len(data) {
		switch data[pos] {
		case ' ', '\t', '\n', '\r':
			pos++
		default:
			return pos
		}
	}
	return pos
}
