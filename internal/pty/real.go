package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	creack "github.com/creack/pty"
)

// RealSpawner is the production Spawner backed by github.com/creack/pty.
type RealSpawner struct{}

// Spawn starts the command attached to a new pseudo-terminal sized to
// opts.Rows x opts.Cols.
func (RealSpawner) Spawn(opts SpawnOpts) (Process, error) {
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	size := &creack.Winsize{Rows: opts.Rows, Cols: opts.Cols}
	ptmx, err := creack.StartWithSize(cmd, size)
	if err != nil {
		return nil, fmt.Errorf("pty: start %s: %w", opts.Command, err)
	}

	p := &realProcess{
		cmd:  cmd,
		ptmx: ptmx,
		done: make(chan error, 1),
	}
	go func() {
		p.done <- cmd.Wait()
	}()
	return p, nil
}

type realProcess struct {
	cmd  *exec.Cmd
	ptmx *os.File
	done chan error
}

func (p *realProcess) PID() int { return p.cmd.Process.Pid }

func (p *realProcess) Read(buf []byte) (int, error) {
	return p.ptmx.Read(buf)
}

func (p *realProcess) Write(buf []byte) (int, error) {
	return p.ptmx.Write(buf)
}

func (p *realProcess) Resize(rows, cols uint16) error {
	if err := creack.Setsize(p.ptmx, &creack.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("pty: resize: %w", err)
	}
	return nil
}

func (p *realProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *realProcess) Kill() error {
	return p.cmd.Process.Kill()
}

// Alive probes the process with signal 0. EPERM means the process exists but
// belongs to another user, so it still counts as alive.
func (p *realProcess) Alive() bool {
	err := p.cmd.Process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

func (p *realProcess) Done() <-chan error { return p.done }

func (p *realProcess) Close() error { return p.ptmx.Close() }

// AlivePID reports whether any process with the given PID exists. Used for
// lazily detecting stale registry entries recorded by a previous run.
func AlivePID(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
