package db

import (
	"errors"
	"testing"

	"github.com/zulandar/switchyard/internal/config"
	"github.com/zulandar/switchyard/internal/models"
	"gorm.io/gorm"
)

func testConnect(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := Connect(config.DBConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return gdb
}

func TestConnect_UnknownDriver(t *testing.T) {
	_, err := Connect(config.DBConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestAutoMigrate(t *testing.T) {
	gdb := testConnect(t)
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	for _, model := range AllModels() {
		if !gdb.Migrator().HasTable(model) {
			t.Errorf("missing table for %T", model)
		}
	}
}

func TestAllModels_Count(t *testing.T) {
	if n := len(AllModels()); n != 4 {
		t.Errorf("AllModels = %d models, want 4", n)
	}
}

// The automation lock relies on duplicate inserts being reported as
// gorm.ErrDuplicatedKey, which requires TranslateError on the connection.
func TestConnect_TranslatesDuplicateKey(t *testing.T) {
	gdb := testConnect(t)
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	lock := models.AutomationLock{ProjectDir: "/repo/a", Holder: "pid-1"}
	if err := gdb.Create(&lock).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	dup := models.AutomationLock{ProjectDir: "/repo/a", Holder: "pid-2"}
	err := gdb.Create(&dup).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("duplicate insert error = %v, want gorm.ErrDuplicatedKey", err)
	}
}
