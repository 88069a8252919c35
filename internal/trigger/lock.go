package trigger

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/zulandar/switchyard/internal/models"
	"gorm.io/gorm"
)

// ErrLockContention means another process holds the automation lock for the
// project. Benign: the caller skips, it does not fail.
var ErrLockContention = errors.New("trigger: automation lock held")

// AcquireLock takes the per-project automation lock by inserting a row whose
// ProjectDir column carries a unique index. Contention surfaces as the INSERT
// losing on the constraint: an atomic create-if-absent, never a
// read-then-write check.
func AcquireLock(db *gorm.DB, projectDir string) error {
	hostname, _ := os.Hostname()
	lock := models.AutomationLock{
		ProjectDir: projectDir,
		Holder:     fmt.Sprintf("%s:%d", hostname, os.Getpid()),
		CreatedAt:  time.Now(),
	}
	if err := db.Create(&lock).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("trigger: acquire lock for %s: %w", projectDir, ErrLockContention)
		}
		return fmt.Errorf("trigger: acquire lock for %s: %w", projectDir, err)
	}
	return nil
}

// ReleaseLock removes the project's lock row. Idempotent.
func ReleaseLock(db *gorm.DB, projectDir string) error {
	if err := db.Where("project_dir = ?", projectDir).
		Delete(&models.AutomationLock{}).Error; err != nil {
		return fmt.Errorf("trigger: release lock for %s: %w", projectDir, err)
	}
	return nil
}

// LockHeld reports whether a lock row exists for the project.
func LockHeld(db *gorm.DB, projectDir string) (bool, error) {
	var count int64
	if err := db.Model(&models.AutomationLock{}).
		Where("project_dir = ?", projectDir).Count(&count).Error; err != nil {
		return false, fmt.Errorf("trigger: check lock for %s: %w", projectDir, err)
	}
	return count > 0, nil
}

// SweepLocks deletes locks older than ttl. Crash recovery: a process that
// died while holding the lock must not wedge automation forever.
func SweepLocks(db *gorm.DB, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	result := db.Where("created_at < ?", cutoff).Delete(&models.AutomationLock{})
	if result.Error != nil {
		return 0, fmt.Errorf("trigger: sweep locks: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}
