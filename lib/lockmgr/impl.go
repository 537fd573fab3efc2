package lockmgr

import (
	"time"

	"github.com/ValentinKolb/cedar/lib/kv"
)

type lockMgmImpl struct {
	store kv.IStore
}

func NewLockManager(store kv.IStore) ILockManager {
	return &lockMgmImpl{
		store: store,
	}
}

func (lp *lockMgmImpl) AcquireLock(key string, ttl time.Duration) (bool, string, error) {
	// Generate the owner ID (256 bit random value)
	ownerID, err := generateOwnerID()
	if err != nil {
		return false, "", err
	}

	// Try to acquire the lock (by setting the value only if it doesn't
	// exist - atomic CAS operation)
	ok, err := lp.store.SetNX(key, ownerID, ttl)
	if err != nil {
		return false, "", err
	}

	// Return false if the lock is held BY SOMEONE ELSE
	if !ok {
		return false, "", nil
	}
	return true, ownerID, nil
}

func (lp *lockMgmImpl) ReleaseLock(key string, ownerID string) (bool, error) {
	// Check if the lock exists
	value, err := lp.store.Get(key)
	if kv.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	// Check if the lock is owned by us
	if value != ownerID {
		return false, nil
	}

	// Release the lock
	err = lp.store.Del(key)
	if err != nil && !kv.IsNotFound(err) {
		return false, err
	}
	return true, nil
}
