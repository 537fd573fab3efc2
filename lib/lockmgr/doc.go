// Package lockmgr implements a locking mechanism using
// key-value stores that implement the kv.IStore interface. It provides
// a simple yet robust way to coordinate access to shared resources across
// multiple goroutines or processes embedding the same store.
//
// The lockmgr only ever stores in the provided IStore and has no other
// internal state. Therefore it is safe to be created multiple times on the
// same store. It is even possible to create a new lockmgr for every acquire
// and or release operation. As long as the same store is used every time,
// all locks will work as expected.
//
// Core Functionality:
//   - Lock acquisition with ownership verification
//   - Automatic lockmgr expiration through configurable TTLs
//   - Safe release operations that verify ownership
//
// Implementation Approach:
//
//	Locks are implemented by leveraging the atomic conditional operations
//	of the underlying store. Specifically:
//
//	- Lock Acquisition: Attempts to create a key using SetNX, which
//	  guarantees that only one requester can successfully create the key.
//	  The value contains a randomly generated owner ID that identifies the
//	  lockmgr holder.
//
//	- TTLs: Locks can be configured with an optional ttl that automatically
//	  releases the lockmgr after the specified period, preventing deadlocks
//	  if a client crashes.
//
//	- Safe Release: The ReleaseLock operation first verifies that the
//	  requester is the legitimate owner of the lockmgr by comparing owner
//	  IDs before executing the Del operation.
//
// Thread Safety:
//
//	The lockmgr is as thread-safe as the underlying kv.IStore
//	implementation. All operations are performed through the store
//	interface.
//
// Usage Example:
//
//	// Create a lockmgr provider with a store backend
//	lockProvider := lockmgr.NewLockManager(store)
//
//	// Acquire a lockmgr with a timeout
//	acquired, ownerID, err := lockProvider.AcquireLock("resource:123", 30*time.Second)
//	if err != nil {
//	    // Handle error
//	}
//
//	if acquired {
//	    // Use the resource safely
//	    // ...
//
//	    // Release the lockmgr when done
//	    released, err := lockProvider.ReleaseLock("resource:123", ownerID)
//	    if err != nil {
//	        // Handle error
//	    }
//	}
//
// Security Considerations:
//
//	The lockmgr mechanism uses randomly generated owner IDs, which provides
//	reasonable protection against accidental lockmgr stealing. However, it
//	is not designed to resist malicious attacks, as an attacker with access
//	to the underlying store could potentially manipulate lockmgr data
//	directly.
//
// Performance Impact:
//
//	Lock operations require 1-2 store operations each:
//	- AcquireLock: One SetNX
//	- ReleaseLock: One Get followed by a conditional Del
//
//	The performance characteristics therefore depend primarily on the
//	underlying store implementation.
package lockmgr
