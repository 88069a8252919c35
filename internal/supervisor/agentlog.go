package supervisor

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/zulandar/switchyard/internal/models"
	"gorm.io/gorm"
)

// DefaultFlushInterval is the interval between periodic log flushes.
const DefaultFlushInterval = 5 * time.Second

// logWriter buffers captured subprocess output and periodically flushes it to
// agent_logs via an injected writeFn.
type logWriter struct {
	sessionID string
	taskID    string

	mu      sync.Mutex
	buf     bytes.Buffer
	writeFn func(models.AgentLog) error
}

// newLogWriter creates a logWriter that flushes to the DB via db.Create.
// A nil db disables capture.
func newLogWriter(db *gorm.DB, sessionID, taskID string) *logWriter {
	w := &logWriter{sessionID: sessionID, taskID: taskID}
	if db != nil {
		w.writeFn = func(entry models.AgentLog) error {
			return db.Create(&entry).Error
		}
	}
	return w
}

// Write appends bytes to the internal buffer (implements io.Writer).
func (w *logWriter) Write(p []byte) (int, error) {
	if w.writeFn == nil {
		return len(p), nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

// Flush writes accumulated buffer contents to agent_logs and resets the buffer.
func (w *logWriter) Flush() error {
	if w.writeFn == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return nil
	}
	content := w.buf.String()
	w.buf.Reset()

	return w.writeFn(models.AgentLog{
		SessionID: w.sessionID,
		TaskID:    w.taskID,
		Content:   content,
		CreatedAt: time.Now(),
	})
}

// Close performs a final flush.
func (w *logWriter) Close() error { return w.Flush() }

// startFlusher launches a goroutine that periodically flushes the logWriter
// until ctx is cancelled.
func startFlusher(ctx context.Context, w *logWriter, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Flush()
			}
		}
	}()
}
