package models

import "time"

// AutomationLock is the cross-process mutual-exclusion marker for automation
// runs. Existence of a row means a run is in progress for that project.
// The unique index on ProjectDir makes acquisition an atomic create-if-absent:
// a concurrent INSERT loses on the constraint, never on a read-then-write.
type AutomationLock struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	ProjectDir string `gorm:"size:512;not null;uniqueIndex"`
	Holder     string `gorm:"size:64"` // hostname:pid of the acquiring process
	CreatedAt  time.Time
}

// PendingCommand is the durable one-shot fallback marker written when an
// automation dispatch fails. The next qualifying user input consumes it
// (deletes the row) and injects Command ahead of the user's own text.
type PendingCommand struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	ProjectDir string `gorm:"size:512;not null;index"`
	Command    string `gorm:"size:1024;not null"`
	Reason     string `gorm:"size:256"` // why the dispatch failed
	CreatedAt  time.Time
}
