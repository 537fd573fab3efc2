// Package table implements the in-memory key-value table of the cedar
// store.
//
// The table maps non-empty string keys to Record values and is backed by a
// concurrent hash map (xsync.MapOf). Consistency is per key: the Update
// method runs its callback under the key's bucket lock, which both
// serializes read-modify-write cycles on a single key and gives the caller
// a window to mirror the mutation to the journal in apply order. No
// cross-key atomicity is provided.
//
// Expiration is logical first, physical later: a record whose expiration
// timestamp has passed is invisible to Get and Has even before the
// expiration scheduler physically removes it.
package table
