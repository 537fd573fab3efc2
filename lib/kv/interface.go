package kv

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/cedar/lib/table"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the function-call surface of a cedar store as consumed by the
// embedding application. All operations are safe for concurrent use;
// mutations to the same key are serialized relative to one another. No
// cross-key atomicity is provided.
type IStore interface {
	// Get returns the value for key.
	Get(key string) (value string, err error)
	// Set inserts or overwrites the record for key, clearing any prior
	// expiration.
	Set(key, value string) error
	// SetEx behaves like Set and additionally arms an expiration ttl from
	// now.
	SetEx(key, value string, ttl time.Duration) error
	// SetNX installs the record only if no live record exists for key and
	// reports whether it did. A ttl of zero stores without expiration. The
	// check and the install are atomic.
	SetNX(key, value string, ttl time.Duration) (bool, error)
	// Del removes the record for key. Deleting an absent key returns a
	// NotFound error but never corrupts state.
	Del(key string) error
	// Exists reports whether a live (non-expired) record exists for key.
	Exists(key string) bool

	// Expire sets or replaces the expiration deadline of an existing key.
	Expire(key string, ttl time.Duration) error
	// Persist clears the expiration deadline of key. Calling it on a key
	// without an active TTL is a safe no-op.
	Persist(key string) error
	// TTL returns the remaining time to live in whole seconds (rounded
	// up), -1 if the key exists without a TTL and -2 if the key is absent.
	TTL(key string) int64
	// PTTL is TTL with millisecond resolution.
	PTTL(key string) int64

	// Append concatenates value onto the existing string (or sets it if
	// the key is absent), preserving the key's current TTL, and returns
	// the resulting length.
	Append(key, value string) (int, error)
	// Incr increments the integer value of key by one. An absent key
	// counts as 0; a non-numeric value yields a TypeMismatch error.
	// The result is stored through the plain set path and therefore
	// clears any TTL on the key.
	Incr(key string) (string, error)
	// IncrBy is Incr with an arbitrary (possibly negative) step.
	IncrBy(key string, step int64) (string, error)
	// Decr is IncrBy(key, -1).
	Decr(key string) (string, error)
	// MGet returns the value for each key, or nil where a key is absent.
	// It never fails wholesale.
	MGet(keys ...string) []*string
	// GetSet installs the new value (clearing any TTL) and returns the
	// prior value. If the key was absent the new value is installed
	// anyway and a NotFound error is returned alongside.
	GetSet(key, value string) (string, error)
	// Strlen returns the length of the stored value, 0 for absent keys.
	Strlen(key string) int
	// GetRange returns the substring from start to end inclusive.
	// Negative offsets count from the end of the value.
	GetRange(key string, start, end int) string
	// SetRange overwrites part of the stored value beginning at offset,
	// padding with NUL bytes when writing past the current length and
	// preserving trailing content beyond the written window. Negative
	// offsets count from the end. Returns the resulting length.
	SetRange(key string, offset int, value string) (int, error)
	// RandomKey returns an arbitrary live key, or false if the store is
	// empty. The sampling is not uniform.
	RandomKey() (string, bool)
	// Dump returns a structured copy of the stored record.
	Dump(key string) (table.Record, error)

	// Save synchronously serializes the store to the snapshot file and
	// returns when it is durable. The journal is flushed first.
	Save() error
	// BgSave schedules an asynchronous snapshot; an in-flight snapshot
	// write makes the request a no-op.
	BgSave()
	// BgRewriteAOF compacts the journal in the background to one entry
	// per live key.
	BgRewriteAOF()

	// Diagnostics exposes background failure signals (degraded recovery,
	// journal or snapshot IO errors). The channel is buffered; signals
	// are dropped when nobody drains it.
	Diagnostics() <-chan Diagnostic

	// Close stops background work and flushes the journal.
	Close() error
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// RetCode classifies store errors.
type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: operation executed successfully
	RetCNotFound                     // 1: operation addressed an absent key
	RetCTypeMismatch                 // 2: numeric operation on a non-numeric value
	RetCIOFailure                    // 3: synchronous persistence failure
	RetCInternalError                // 4: operation failed due to an internal error
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCNotFound:
		return "NotFound"
	case RetCTypeMismatch:
		return "TypeMismatch"
	case RetCIOFailure:
		return "IOFailure"
	case RetCInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by all store operations. It wraps a
// return code and a descriptive message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// IsNotFound reports whether err is a store error with code NotFound.
func IsNotFound(err error) bool {
	return hasCode(err, RetCNotFound)
}

// IsTypeMismatch reports whether err is a store error with code
// TypeMismatch.
func IsTypeMismatch(err error) bool {
	return hasCode(err, RetCTypeMismatch)
}

func hasCode(err error, code RetCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// --------------------------------------------------------------------------
// Diagnostics
// --------------------------------------------------------------------------

// DiagKind classifies background diagnostic signals.
type DiagKind int

const (
	// DiagRecoveryDegraded signals that journal and/or snapshot were
	// unreadable at startup and the store started empty or partially
	// recovered.
	DiagRecoveryDegraded DiagKind = iota
	// DiagJournalIO signals a background journal write or fsync failure.
	DiagJournalIO
	// DiagSnapshotIO signals a background snapshot write failure.
	DiagSnapshotIO
)

func (k DiagKind) String() string {
	switch k {
	case DiagRecoveryDegraded:
		return "RecoveryDegraded"
	case DiagJournalIO:
		return "JournalIO"
	case DiagSnapshotIO:
		return "SnapshotIO"
	default:
		return "Unknown"
	}
}

// Diagnostic is a background failure signal. Failures of background
// persistence never surface as errors of the unrelated command that
// happened to trigger them; they are delivered here instead.
type Diagnostic struct {
	Kind DiagKind
	Err  error
	Time time.Time
}
