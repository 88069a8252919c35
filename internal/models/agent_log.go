package models

import "time"

// AgentLog stores a chunk of captured subprocess output. Chunks are flushed
// periodically while the session runs and once more on exit. This is an
// operator audit trail; live streaming and replay use the in-memory ring.
type AgentLog struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:64;not null;index"`
	TaskID    string `gorm:"size:64;index"`
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
}
