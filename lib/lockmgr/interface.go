package lockmgr

import "time"

// ILockManager defines the interface for a lockmgr provider.
type ILockManager interface {
	// AcquireLock acquires a lockmgr for the given key with an optional ttl
	// (zero means the lock never expires on its own).
	// Returns a boolean indicating whether the lockmgr was acquired, an
	// owner ID, and an error if any.
	AcquireLock(key string, ttl time.Duration) (ok bool, ownerID string, err error)

	// ReleaseLock releases the lockmgr for the given key.
	// Returns a boolean indicating whether the lockmgr was released, and an
	// error if any. The method also returns true if the lockmgr did not
	// exist.
	ReleaseLock(key string, ownerID string) (ok bool, err error)
}
