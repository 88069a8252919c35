package supervisor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/switchyard/internal/models"
	"github.com/zulandar/switchyard/internal/pty"
)

// GenerateSessionID creates a unique session ID in sess-xxxxxxxx format
// (8-char hex).
func GenerateSessionID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("supervisor: generate session ID: %w", err)
	}
	return "sess-" + hex.EncodeToString(b), nil
}

// Session is the runtime handle for one PTY-backed subprocess.
type Session struct {
	ID        string
	TaskID    string
	PID       int
	WorkDir   string
	CreatedAt time.Time

	proc pty.Process

	logw         *logWriter
	tailCancel   context.CancelFunc
	finalizeOnce sync.Once
	finalized    chan struct{}

	mu           sync.Mutex
	status       string
	lastActivity time.Time

	// inputMu serializes writes into the PTY. Concurrent senders each get an
	// uninterleaved write; the pending-command injection also rides this lock
	// so a deferred command lands atomically ahead of the user's own input.
	inputMu sync.Mutex
}

// Status returns the current lifecycle status.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Active reports whether the session accepts input.
func (s *Session) Active() bool {
	return s.Status() == models.SessionActive
}

// Alive probes the underlying process.
func (s *Session) Alive() bool {
	return s.proc != nil && s.proc.Alive()
}

// LastActivity returns the time of the most recent output or input.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// WriteInput writes the given chunks to the PTY as one serialized unit.
// Fails with ErrSessionNotActive once the session is stopping or stopped.
func (s *Session) WriteInput(chunks ...[]byte) error {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()

	if !s.Active() {
		return fmt.Errorf("supervisor: input to %s: %w", s.ID, ErrSessionNotActive)
	}
	for _, chunk := range chunks {
		if _, err := s.proc.Write(chunk); err != nil {
			return fmt.Errorf("supervisor: write input to %s: %w", s.ID, err)
		}
	}
	s.touch()
	return nil
}
