// Package expiry schedules the deferred removal of keys with a TTL.
//
// Deadlines live on a hierarchical timing wheel, so firing is
// deadline-driven rather than polled: the wheel wakes at the next due tick
// and invokes the store's removal path. Correctness against concurrent
// commands rests on two rules: every state change for a key cancels the
// key's pending timer before installing new state, and a firing removal is
// re-validated by the store against the record's current deadline before
// anything is deleted.
package expiry
