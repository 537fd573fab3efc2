// Package snapshot persists full point-in-time serializations of the cedar
// store. The snapshot is the recovery fallback when the journal is
// unreadable and the baseline against which the journal is compacted.
//
// Writes are staged and atomically renamed into place, and a single-writer
// guard ensures at most one write targets the snapshot file at any time:
// an overlapping background save request is skipped rather than queued
// (the interval timer will retry). Synchronous saves surface IO errors to
// the caller; background saves report them through the diagnostics path.
package snapshot
