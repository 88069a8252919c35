package trigger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/zulandar/switchyard/internal/notify"
	"gorm.io/gorm"
)

// State names the pipeline's position in its run cycle.
type State string

const (
	StateIdle        State = "idle"
	StateDetecting   State = "detecting"
	StateLocked      State = "locked"
	StateSkipped     State = "skipped"
	StateDispatching State = "dispatching"
	StateCompleted   State = "completed"
	StateFallback    State = "fallback"
)

// Outcome is the terminal result of one pipeline run.
type Outcome struct {
	State  State // StateCompleted, StateSkipped, or StateFallback
	Reason string
	Result *DispatchResult
}

// PipelineOpts holds dependencies for a Pipeline.
type PipelineOpts struct {
	DB                *gorm.DB
	Dispatcher        Dispatcher
	Store             *Store
	Command           string // slash command dispatched on a qualifying event
	ProtectedBranches []string
	SkipMarker        string
	Notifier          notify.Notifier // optional, best-effort
}

// Pipeline runs the automation state machine:
// Idle, Detecting, Locked or Skipped, Dispatching, then Completed or Fallback,
// and back to Idle.
type Pipeline struct {
	db         *gorm.DB
	dispatcher Dispatcher
	store      *Store
	command    string
	protected  []string
	skipMarker string
	notifier   notify.Notifier

	mu    sync.Mutex
	state State
}

// NewPipeline creates a Pipeline.
func NewPipeline(opts PipelineOpts) *Pipeline {
	return &Pipeline{
		db:         opts.DB,
		dispatcher: opts.Dispatcher,
		store:      opts.Store,
		command:    opts.Command,
		protected:  opts.ProtectedBranches,
		skipMarker: opts.SkipMarker,
		notifier:   opts.Notifier,
		state:      StateIdle,
	}
}

// State returns the pipeline's current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(st State) {
	p.mu.Lock()
	p.state = st
	p.mu.Unlock()
}

// Run executes one pipeline cycle for the event. It never leaves the lock
// held: every exit path, including a panic, releases it, and
// every dispatch failure writes a pending marker before returning.
func (p *Pipeline) Run(ctx context.Context, ev Event) (outcome Outcome) {
	command := ev.Command
	if command == "" {
		command = p.command
	}

	locked := false
	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("pipeline panic: %v", r)
			log.Printf("trigger: %s", reason)
			if locked {
				p.release(ev.ProjectDir)
			}
			p.queueFallback(ev.ProjectDir, command, reason)
			outcome = Outcome{State: StateFallback, Reason: reason}
		}
		p.setState(StateIdle)
	}()

	p.setState(StateDetecting)
	if ok, reason := Qualifies(ev, p.protected, p.skipMarker); !ok {
		p.setState(StateSkipped)
		log.Printf("trigger: skipped for %s: %s", ev.ProjectDir, reason)
		return Outcome{State: StateSkipped, Reason: reason}
	}

	if err := AcquireLock(p.db, ev.ProjectDir); err != nil {
		if errors.Is(err, ErrLockContention) {
			p.setState(StateSkipped)
			log.Printf("trigger: skipped for %s: lock held by another run", ev.ProjectDir)
			return Outcome{State: StateSkipped, Reason: "automation lock held"}
		}
		// The lock store itself is unreachable; there is no safe mutual
		// exclusion, so queue the command instead of dispatching.
		p.setState(StateFallback)
		p.queueFallback(ev.ProjectDir, command, err.Error())
		return Outcome{State: StateFallback, Reason: err.Error()}
	}
	locked = true
	p.setState(StateLocked)

	p.setState(StateDispatching)
	result, err := p.dispatcher.Dispatch(ctx, command, ev.ProjectDir)

	// Release before acting on the result so no failure path below can
	// leave the lock held.
	p.release(ev.ProjectDir)
	locked = false

	if err != nil {
		p.setState(StateFallback)
		p.queueFallback(ev.ProjectDir, command, err.Error())
		p.notify(ctx, "Automation dispatch failed",
			fmt.Sprintf("%s in %s: %v (queued for next interaction)", command, ev.ProjectDir, err))
		return Outcome{State: StateFallback, Reason: err.Error(), Result: result}
	}

	p.setState(StateCompleted)
	log.Printf("trigger: dispatched %s to session %s (%s)", command, result.SessionID, result.Mode)
	p.notify(ctx, "Automation dispatched",
		fmt.Sprintf("%s in %s handled by session %s", command, ev.ProjectDir, result.SessionID))
	return Outcome{State: StateCompleted, Result: result}
}

func (p *Pipeline) release(projectDir string) {
	if err := ReleaseLock(p.db, projectDir); err != nil {
		log.Printf("trigger: %v", err)
	}
}

func (p *Pipeline) queueFallback(projectDir, command, reason string) {
	if p.store == nil {
		return
	}
	if err := p.store.Write(projectDir, command, reason); err != nil {
		log.Printf("trigger: %v", err)
	}
}

func (p *Pipeline) notify(ctx context.Context, title, body string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, title, body); err != nil {
		log.Printf("trigger: notify: %v", err)
	}
}
