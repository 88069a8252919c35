// Package input serializes structured input from any subscriber into a
// session's PTY input stream.
package input

import (
	"errors"
	"fmt"
	"log"

	"github.com/zulandar/switchyard/internal/models"
	"github.com/zulandar/switchyard/internal/stream"
	"github.com/zulandar/switchyard/internal/supervisor"
	"gorm.io/gorm"
)

// ErrUnknownKey is returned for a logical key name outside the supported set.
var ErrUnknownKey = errors.New("input: unknown key")

// Hook observes routed input. Implemented by the metrics collector; nil
// disables observation.
type Hook interface {
	InputRouted(sessionID string)
}

// PendingSource supplies deferred automation commands for a project.
// Consume is one-shot; Restore puts a command back when injection failed
// after consumption, so the deferral is not silently lost.
type PendingSource interface {
	Consume(projectDir string) (command string, ok bool)
	Restore(projectDir, command string)
}

// Opts holds dependencies for a Router. Pending, Hook, and DB may be nil.
type Opts struct {
	Registry *supervisor.Registry
	Mux      *stream.Multiplexer
	Pending  PendingSource
	Hook     Hook
	// DB distinguishes input to a stopped session (ErrSessionNotActive) from
	// input to an ID that never existed (ErrSessionNotFound) after the
	// registry entry is gone. Nil reports both as not found.
	DB *gorm.DB
}

// Router routes text and logical keys into sessions. Inputs from one client
// are applied in the order sent; writes from distinct clients are serialized
// per session and never interleaved mid-sequence.
type Router struct {
	reg     *supervisor.Registry
	mux     *stream.Multiplexer
	pending PendingSource
	hook    Hook
	db      *gorm.DB
}

// New creates a Router.
func New(opts Opts) *Router {
	return &Router{
		reg:     opts.Registry,
		mux:     opts.Mux,
		pending: opts.Pending,
		hook:    opts.Hook,
		db:      opts.DB,
	}
}

// lookup resolves a live session. A stopped session's durable row still
// exists, so its ID maps to ErrSessionNotActive rather than not-found.
func (r *Router) lookup(sessionID string) (*supervisor.Session, error) {
	if sess := r.reg.Get(sessionID); sess != nil {
		return sess, nil
	}
	if r.db != nil {
		var count int64
		err := r.db.Model(&models.Session{}).
			Where("id = ?", sessionID).Count(&count).Error
		if err == nil && count > 0 {
			return nil, fmt.Errorf("input: %s: %w", sessionID, supervisor.ErrSessionNotActive)
		}
	}
	return nil, fmt.Errorf("input: %s: %w", sessionID, supervisor.ErrSessionNotFound)
}

// SendText writes text plus a line terminator into the session. If a pending
// automation command exists for the session's project, it is consumed and
// injected ahead of the user's text in the same serialized write.
func (r *Router) SendText(sessionID, text string) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}

	var chunks [][]byte
	var deferred string
	if r.pending != nil {
		if cmd, ok := r.pending.Consume(sess.WorkDir); ok {
			deferred = cmd
			chunks = append(chunks, []byte(cmd+"\r"))
		}
	}
	chunks = append(chunks, []byte(text+"\r"))

	if err := sess.WriteInput(chunks...); err != nil {
		if deferred != "" {
			r.pending.Restore(sess.WorkDir, deferred)
		}
		return err
	}

	if deferred != "" {
		msg := stream.UserInput(sessionID, deferred)
		msg.Subtype = "automation"
		r.mux.Publish(sessionID, msg)
		log.Printf("input: injected deferred command for %s ahead of user input", sessionID)
	}
	r.mux.Publish(sessionID, stream.UserInput(sessionID, text))
	if r.hook != nil {
		r.hook.InputRouted(sessionID)
	}
	return nil
}

// SendCommand writes a slash command plus line terminator, bypassing the
// pending-marker check. Used by the automation dispatch path itself.
func (r *Router) SendCommand(sessionID, command string) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	if err := sess.WriteInput([]byte(command + "\r")); err != nil {
		return err
	}
	msg := stream.UserInput(sessionID, command)
	msg.Subtype = "automation"
	r.mux.Publish(sessionID, msg)
	if r.hook != nil {
		r.hook.InputRouted(sessionID)
	}
	return nil
}

// SendKey maps a logical key name to its terminal byte sequence and writes
// it raw, with no line terminator.
func (r *Router) SendKey(sessionID, key string) error {
	sess, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	seq, ok := keyBytes(key)
	if !ok {
		return fmt.Errorf("input: %q: %w", key, ErrUnknownKey)
	}
	if err := sess.WriteInput(seq); err != nil {
		return err
	}
	msg := stream.UserInput(sessionID, key)
	msg.Subtype = "key"
	r.mux.Publish(sessionID, msg)
	if r.hook != nil {
		r.hook.InputRouted(sessionID)
	}
	return nil
}
