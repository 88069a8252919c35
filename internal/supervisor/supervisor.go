// Package supervisor owns the OS-level lifecycle of agent sessions: spawning
// the PTY-backed subprocess, supervising it, and tearing it down.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/zulandar/switchyard/internal/config"
	"github.com/zulandar/switchyard/internal/models"
	"github.com/zulandar/switchyard/internal/pty"
	"github.com/zulandar/switchyard/internal/stream"
	"gorm.io/gorm"
)

// Opts holds dependencies for a Supervisor.
type Opts struct {
	DB      *gorm.DB // nil disables persistence and log capture
	Spawner pty.Spawner
	Mux     *stream.Multiplexer
	Agent   config.AgentConfig
}

// Supervisor spawns and supervises one subprocess per session.
type Supervisor struct {
	db      *gorm.DB
	spawner pty.Spawner
	mux     *stream.Multiplexer
	agent   config.AgentConfig
	reg     *Registry

	// launchMu serializes Launch calls so two concurrent launches for the
	// same task cannot both miss the reuse check and spawn twice.
	launchMu sync.Mutex
}

// LaunchResult describes the outcome of a Launch call.
type LaunchResult struct {
	SessionID string `json:"session_id"`
	PID       int    `json:"pid"`
	WorkDir   string `json:"working_dir"`
	Reused    bool   `json:"reused"`
}

// New creates a Supervisor.
func New(opts Opts) *Supervisor {
	return &Supervisor{
		db:      opts.DB,
		spawner: opts.Spawner,
		mux:     opts.Mux,
		agent:   opts.Agent,
		reg:     NewRegistry(),
	}
}

// Registry exposes the session registry for lookups.
func (s *Supervisor) Registry() *Registry { return s.reg }

// Launch starts a session for taskID in workDir, or returns the existing
// live session bound to taskID with Reused set. An empty taskID always
// spawns a fresh unbound session (automation use).
func (s *Supervisor) Launch(taskID, workDir string) (*LaunchResult, error) {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	if existing := s.reg.ByTask(taskID); existing != nil {
		if existing.Active() && existing.Alive() {
			return &LaunchResult{
				SessionID: existing.ID,
				PID:       existing.PID,
				WorkDir:   existing.WorkDir,
				Reused:    true,
			}, nil
		}
		// Stale entry: the process died without the tailer noticing yet.
		s.finalize(existing, models.SessionError)
	}

	info, err := os.Stat(workDir)
	if err != nil {
		return nil, &LaunchError{WorkDir: workDir, Err: err}
	}
	if !info.IsDir() {
		return nil, &LaunchError{WorkDir: workDir, Err: fmt.Errorf("not a directory")}
	}

	sessionID, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	proc, err := s.spawner.Spawn(pty.SpawnOpts{
		Command: s.agent.Binary,
		Args:    s.agent.Args,
		Dir:     workDir,
		Rows:    s.agent.Rows,
		Cols:    s.agent.Cols,
	})
	if err != nil {
		return nil, &LaunchError{WorkDir: workDir, Err: err}
	}

	now := time.Now()
	sess := &Session{
		ID:           sessionID,
		TaskID:       taskID,
		PID:          proc.PID(),
		WorkDir:      workDir,
		CreatedAt:    now,
		proc:         proc,
		status:       models.SessionStarting,
		lastActivity: now,
		finalized:    make(chan struct{}),
	}

	s.mux.Open(sessionID)

	if s.db != nil {
		row := models.Session{
			ID:           sessionID,
			TaskID:       taskID,
			PID:          sess.PID,
			WorkDir:      workDir,
			Status:       models.SessionStarting,
			CreatedAt:    now,
			LastActivity: now,
		}
		if err := s.db.Create(&row).Error; err != nil {
			log.Printf("supervisor: persist session %s: %v", sessionID, err)
		}
	}

	flushCtx, flushCancel := context.WithCancel(context.Background())
	sess.logw = newLogWriter(s.db, sessionID, taskID)
	sess.tailCancel = flushCancel
	startFlusher(flushCtx, sess.logw, DefaultFlushInterval)

	s.reg.Add(sess)
	sess.setStatus(models.SessionActive)
	s.updateRow(sessionID, map[string]interface{}{"status": models.SessionActive})

	go s.tail(sess)

	s.mux.Publish(sessionID, stream.System(sessionID, "session started"))

	return &LaunchResult{
		SessionID: sessionID,
		PID:       sess.PID,
		WorkDir:   workDir,
		Reused:    false,
	}, nil
}

// Stop terminates a session: SIGTERM, a grace window, then SIGKILL.
// Idempotent: stopping an unknown or already-stopped session is a no-op.
func (s *Supervisor) Stop(sessionID string) error {
	sess := s.reg.Get(sessionID)
	if sess == nil {
		return nil
	}

	sess.mu.Lock()
	if sess.status == models.SessionStopping || sess.status == models.SessionStopped {
		sess.mu.Unlock()
		return nil
	}
	sess.status = models.SessionStopping
	sess.mu.Unlock()
	s.updateRow(sessionID, map[string]interface{}{"status": models.SessionStopping})

	grace := s.agent.GracePeriod.Std()
	if grace <= 0 {
		grace = 10 * time.Second
	}

	if err := sess.proc.Signal(syscall.SIGTERM); err != nil {
		log.Printf("supervisor: SIGTERM %s: %v", sessionID, err)
	}

	select {
	case <-sess.finalized:
		return nil
	case <-time.After(grace):
	}

	if err := sess.proc.Kill(); err != nil {
		log.Printf("supervisor: SIGKILL %s: %v", sessionID, err)
	}

	select {
	case <-sess.finalized:
	case <-time.After(5 * time.Second):
		// The tailer did not observe the exit; reap directly.
		s.finalize(sess, models.SessionStopped)
	}
	return nil
}

// Get returns the live session or ErrSessionNotFound.
func (s *Supervisor) Get(sessionID string) (*Session, error) {
	sess := s.reg.Get(sessionID)
	if sess == nil {
		return nil, fmt.Errorf("supervisor: %s: %w", sessionID, ErrSessionNotFound)
	}
	return sess, nil
}

// RecordTransport notes the transport of the most recent subscriber on the
// session's durable row. Best-effort, audit only.
func (s *Supervisor) RecordTransport(sessionID, transport string) {
	s.updateRow(sessionID, map[string]interface{}{"transport": transport})
}

// SweepStale finalizes registry entries whose process died without the
// tailer noticing. Returns the number reaped.
func (s *Supervisor) SweepStale() int {
	reaped := 0
	for _, sess := range s.reg.List() {
		if sess.Active() && !sess.Alive() {
			s.finalize(sess, models.SessionError)
			reaped++
		}
	}
	return reaped
}

// tail reads the PTY output stream until the subprocess exits, publishing
// AgentOutput plus any structured ToolEvent/ErrorEvent lines, and mirroring
// raw output into agent_logs.
func (s *Supervisor) tail(sess *Session) {
	scanner := &lineScanner{}
	buf := make([]byte, 4096)
	for {
		n, err := sess.proc.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			sess.touch()
			s.mux.Publish(sess.ID, stream.AgentOutput(sess.ID, data))
			sess.logw.Write(data)
			for _, msg := range parseStructuredEvents(sess.ID, scanner.lines(data)) {
				s.mux.Publish(sess.ID, msg)
			}
		}
		if err != nil {
			// EOF, or EIO once the child side of the PTY closes.
			break
		}
	}

	status := models.SessionStopped
	if sess.Status() != models.SessionStopping {
		// Unrequested exit: report error status when the process failed.
		select {
		case werr := <-sess.proc.Done():
			if werr != nil {
				status = models.SessionError
			}
		case <-time.After(2 * time.Second):
			status = models.SessionError
		}
	}
	s.finalize(sess, status)
}

// finalize runs exactly once per session: flush logs, close the PTY, emit the
// terminal message to every subscriber, persist the final status, and drop
// the registry entry.
func (s *Supervisor) finalize(sess *Session, status string) {
	sess.finalizeOnce.Do(func() {
		sess.setStatus(status)
		if sess.tailCancel != nil {
			sess.tailCancel()
		}
		if sess.logw != nil {
			sess.logw.Close()
		}
		if sess.proc != nil {
			sess.proc.Close()
		}

		s.mux.Close(sess.ID, stream.System(sess.ID, "session closed"))

		now := time.Now()
		s.updateRow(sess.ID, map[string]interface{}{
			"status":     status,
			"stopped_at": &now,
		})
		s.reg.Remove(sess.ID)
		close(sess.finalized)
	})
}

func (s *Supervisor) updateRow(sessionID string, fields map[string]interface{}) {
	if s.db == nil {
		return
	}
	if err := s.db.Model(&models.Session{}).Where("id = ?", sessionID).
		Updates(fields).Error; err != nil {
		log.Printf("supervisor: update session %s: %v", sessionID, err)
	}
}

// MarkStaleSessions marks rows left in a live status by a previous process
// whose PID no longer exists. Run once at startup.
func MarkStaleSessions(gdb *gorm.DB) (int, error) {
	var rows []models.Session
	statuses := []string{models.SessionStarting, models.SessionActive, models.SessionStopping}
	if err := gdb.Where("status IN ?", statuses).Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("supervisor: list live sessions: %w", err)
	}
	marked := 0
	now := time.Now()
	for _, row := range rows {
		if pty.AlivePID(row.PID) {
			continue
		}
		if err := gdb.Model(&models.Session{}).Where("id = ?", row.ID).
			Updates(map[string]interface{}{
				"status":     models.SessionStopped,
				"stopped_at": &now,
			}).Error; err != nil {
			return marked, fmt.Errorf("supervisor: mark stale session %s: %w", row.ID, err)
		}
		marked++
	}
	return marked, nil
}
