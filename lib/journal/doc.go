// Package journal implements the append-only durability log of the cedar
// store.
//
// Every mutation of the in-memory table is mirrored into the journal as a
// self-delimited fragment `"<key>":<json-record-or-null>,` where null is a
// tombstone. Replaying the fragment sequence from an empty state in order
// reconstructs the exact table contents: the last fragment per key wins and
// a tombstone removes the key.
//
// The package focuses on:
//   - A single-writer design: producers enqueue encoded fragments onto a
//     multi-producer queue; one goroutine owns the file and applies
//     appends, fsyncs, barriers and compactions strictly in order
//   - Crash tolerance: the recovery parser stops at the last complete
//     fragment, discarding a dangling half-written tail instead of failing
//     the whole parse
//   - Compaction: the log is rewritten to one fragment per live key via a
//     staging file and an atomic rename; fragments enqueued during the
//     rewrite are applied afterwards, never dropped
//
// Durability is configurable per store: SyncAlways fsyncs after every
// fragment, SyncEverySecond batches fsyncs on a one second ticker.
// Background IO failures are reported through a diagnostics callback, not
// to the caller that happened to trigger them.
package journal
