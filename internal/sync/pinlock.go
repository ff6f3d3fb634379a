package sync

import (
	"fmt"
	"hash/fnv"

	"gorm.io/gorm"
)

// WithPinnedOrderLock serializes pin-order assignment for one user under a
// transaction-scoped advisory lock, released automatically at commit or
// rollback. Without it two concurrent pins read the same max order and
// write the same value.
func WithPinnedOrderLock(tx *gorm.DB, userID uint64, scope string, fn func() error) error {
	if err := tx.Exec(`select pg_advisory_xact_lock(?)`, pinLockKey(scope, userID)).Error; err != nil {
		return fmt.Errorf("pin lock %s: %w", scope, err)
	}
	return fn()
}

func pinLockKey(scope string, userID uint64) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", scope, userID)
	return int64(h.Sum64())
}
