package table

// Record is a single stored value together with its expiration metadata.
// ExpireAt is an absolute unix timestamp in milliseconds; zero means the
// record never expires. A record whose ExpireAt lies in the past is
// logically expired even if it has not been physically removed yet.
//
// The JSON encoding of a Record is the on-disk representation used by both
// the journal and the snapshot file.
type Record struct {
	Value    string `json:"value"`
	ExpireAt int64  `json:"expire_at,omitempty"`
}

// Expired reports whether the record is logically expired at the given
// time (unix milliseconds).
func (r Record) Expired(nowMs int64) bool {
	return r.ExpireAt != 0 && nowMs >= r.ExpireAt
}
