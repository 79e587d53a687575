package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

const postingLockName = "posting:agence"

// AcquirePostingLock serializes change processing across instances using a
// MySQL advisory lock.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the posting transaction.
func AcquirePostingLock(tx *gorm.DB) error {
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", postingLockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock")
	}
	return nil
}

func ReleasePostingLock(tx *gorm.DB) {
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", postingLockName).Scan(&_ok).Error
}
