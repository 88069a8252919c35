package models

import "time"

// Session statuses. A session moves from starting through active, stopping,
// and stopped, or to error if the subprocess dies unexpectedly.
const (
	SessionStarting = "starting"
	SessionActive   = "active"
	SessionStopping = "stopping"
	SessionStopped  = "stopped"
	SessionError    = "error"
)

// Session records one pseudo-terminal-backed agent subprocess. The in-memory
// registry is authoritative while the process runs; this row is the durable
// mirror used for auditing and the stale-entry sweep after a restart.
type Session struct {
	ID           string `gorm:"primaryKey;size:64"`
	TaskID       string `gorm:"size:64;index"` // empty for unbound automation sessions
	PID          int
	WorkDir      string `gorm:"size:512;index"`
	Status       string `gorm:"size:16;index"`
	Transport    string `gorm:"size:16"` // transport of the most recent subscriber
	CreatedAt    time.Time
	LastActivity time.Time `gorm:"index"`
	StoppedAt    *time.Time
}
