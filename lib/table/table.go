package table

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Update Operations
// --------------------------------------------------------------------------

// Op is the outcome of an Update callback.
type Op int

const (
	// OpStore installs the returned record under the key.
	OpStore Op = iota
	// OpDelete removes the key.
	OpDelete
	// OpKeep leaves the key untouched (absent keys stay absent).
	OpKeep
)

// --------------------------------------------------------------------------
// Table
// --------------------------------------------------------------------------

// Table is the authoritative in-memory mapping from key to Record.
//
// All mutations go through Update, which executes its callback while the
// key's bucket is held. This serializes mutations to the same key and lets
// the caller perform side effects (such as mirroring the mutation to the
// journal) in the same critical section, so that the side-effect order per
// key matches the order in which the mutations were applied.
type Table struct {
	m *xsync.MapOf[string, Record]
}

// New creates an empty table.
func New() *Table {
	return &Table{m: xsync.NewMapOf[string, Record]()}
}

// Get returns the record for key. Logically expired records are reported
// as absent.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table) Get(key string, nowMs int64) (Record, bool) {
	rec, ok := t.m.Load(key)
	if !ok || rec.Expired(nowMs) {
		return Record{}, false
	}
	return rec, true
}

// Has reports whether a live (non-expired) record exists for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table) Has(key string, nowMs int64) bool {
	_, ok := t.Get(key, nowMs)
	return ok
}

// Update applies fn to the current record of key and installs, deletes or
// keeps the entry depending on the returned Op. The callback observes
// loaded=false for absent keys. It is invoked exactly once, while the
// key's bucket is held, and must not call back into the table.
//
// Thread-safety: This method is thread-safe; updates to the same key are
// serialized.
func (t *Table) Update(key string, fn func(old Record, loaded bool) (Record, Op)) {
	t.m.Compute(key, func(old Record, loaded bool) (Record, bool) {
		rec, op := fn(old, loaded)
		switch {
		case op == OpStore:
			return rec, false
		case !loaded:
			// OpDelete and OpKeep on an absent key must not create an entry
			return old, true
		case op == OpDelete:
			return old, true
		default:
			return old, false
		}
	})
}

// Len returns the number of physically present entries, including records
// that are expired but not yet removed.
func (t *Table) Len() int {
	return t.m.Size()
}

// Range iterates over all physically present entries. The iteration order
// is unspecified.
//
// Thread-safety: This method is thread-safe. Entries added or removed
// during the iteration may or may not be observed.
func (t *Table) Range(fn func(key string, rec Record) bool) {
	t.m.Range(fn)
}

// Dump returns a copy of all live (non-expired) records. It is the source
// for snapshot writes and journal compaction and does not block concurrent
// mutations.
func (t *Table) Dump(nowMs int64) map[string]Record {
	out := make(map[string]Record, t.m.Size())
	t.m.Range(func(key string, rec Record) bool {
		if !rec.Expired(nowMs) {
			out[key] = rec
		}
		return true
	})
	return out
}
