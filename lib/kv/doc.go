// Package kv is the public surface of the cedar store: an embeddable,
// single-process key-value store with a Redis-like command set, durable
// persistence and TTL-based expiration.
//
// The package composes the four storage components into one store handle:
//
//   - table: the authoritative in-memory mapping from key to record,
//     with per-key serialized mutations
//   - journal: an append-only log of every mutation, replayed at startup
//     to reconstruct the table; tolerant of a half-written tail after a
//     crash
//   - snapshot: a full periodic serialization used as recovery fallback
//     and compaction baseline
//   - expiry: a deadline scheduler that physically removes expired keys
//     through the same mutation path as an explicit delete
//
// A store is an explicit handle constructed by Open and passed by the
// embedding application; there is no ambient singleton. Recovery at Open
// degrades gracefully: journal first, snapshot on journal parse failure,
// empty store as last resort, with degradations reported through the
// Diagnostics channel rather than aborting.
//
// Command-level errors (NotFound, TypeMismatch) are synchronous and typed
// via the Error/RetCode system. Background persistence failures never
// surface on unrelated callers; they are delivered as Diagnostics.
//
// Example usage:
//
//	store, err := kv.Open(&kv.Options{Name: "sessions", Dir: "/var/lib/app"})
//	if err != nil {
//		// only infrastructure failures (bad directory, exhausted fds)
//	}
//	defer store.Close()
//
//	_ = store.SetEx("token:abc", "user-42", 30*time.Second)
//	value, err := store.Get("token:abc")
package kv
