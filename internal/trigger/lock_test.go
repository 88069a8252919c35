package trigger

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zulandar/switchyard/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB mirrors the production connection settings: TranslateError is what
// turns the unique-index collision into gorm.ErrDuplicatedKey.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.AutomationLock{}, &models.PendingCommand{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func TestAcquireLock_Success(t *testing.T) {
	db := testDB(t)
	if err := AcquireLock(db, "/repo/a"); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	held, err := LockHeld(db, "/repo/a")
	if err != nil {
		t.Fatalf("LockHeld: %v", err)
	}
	if !held {
		t.Error("lock row should exist after acquire")
	}

	var lock models.AutomationLock
	db.First(&lock, "project_dir = ?", "/repo/a")
	if lock.Holder == "" {
		t.Error("Holder should record host:pid")
	}
}

func TestAcquireLock_Contention(t *testing.T) {
	db := testDB(t)
	if err := AcquireLock(db, "/repo/a"); err != nil {
		t.Fatalf("first AcquireLock: %v", err)
	}
	err := AcquireLock(db, "/repo/a")
	if !errors.Is(err, ErrLockContention) {
		t.Errorf("error = %v, want ErrLockContention", err)
	}
}

func TestAcquireLock_DifferentProjects(t *testing.T) {
	db := testDB(t)
	if err := AcquireLock(db, "/repo/a"); err != nil {
		t.Fatalf("AcquireLock a: %v", err)
	}
	if err := AcquireLock(db, "/repo/b"); err != nil {
		t.Errorf("locks on different projects must not conflict: %v", err)
	}
}

func TestReleaseLock_AllowsReacquire(t *testing.T) {
	db := testDB(t)
	AcquireLock(db, "/repo/a")

	if err := ReleaseLock(db, "/repo/a"); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if err := AcquireLock(db, "/repo/a"); err != nil {
		t.Errorf("re-acquire after release: %v", err)
	}
}

func TestReleaseLock_Idempotent(t *testing.T) {
	db := testDB(t)
	if err := ReleaseLock(db, "/repo/never-locked"); err != nil {
		t.Errorf("releasing an absent lock should be a no-op: %v", err)
	}
}

func TestSweepLocks_ReclaimsExpired(t *testing.T) {
	db := testDB(t)

	stale := models.AutomationLock{
		ProjectDir: "/repo/stale",
		Holder:     "deadhost:1",
		CreatedAt:  time.Now().Add(-time.Hour),
	}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatalf("seed stale lock: %v", err)
	}
	if err := AcquireLock(db, "/repo/fresh"); err != nil {
		t.Fatalf("acquire fresh: %v", err)
	}

	n, err := SweepLocks(db, 10*time.Minute)
	if err != nil {
		t.Fatalf("SweepLocks: %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}

	if held, _ := LockHeld(db, "/repo/stale"); held {
		t.Error("stale lock should be reclaimed")
	}
	if held, _ := LockHeld(db, "/repo/fresh"); !held {
		t.Error("fresh lock should survive the sweep")
	}

	// A new run can now take the reclaimed project.
	if err := AcquireLock(db, "/repo/stale"); err != nil {
		t.Errorf("acquire after sweep: %v", err)
	}
}

func TestConcurrent_AcquireLock_OneWinner(t *testing.T) {
	db := testDB(t)

	const goroutines = 10
	var winners atomic.Int32
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if err := AcquireLock(db, "/repo/race"); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Errorf("concurrent lock winners = %d, want exactly 1", got)
	}
}
