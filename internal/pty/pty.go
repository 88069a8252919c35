// Package pty abstracts spawning and controlling a pseudo-terminal-backed
// subprocess, so the supervisor can be exercised in tests without forking
// real processes.
package pty

import "os"

// SpawnOpts holds parameters for spawning a PTY-attached subprocess.
type SpawnOpts struct {
	Command string
	Args    []string
	Dir     string
	Env     []string // nil inherits the parent environment
	Rows    uint16
	Cols    uint16
}

// Process is a running subprocess attached to a pseudo-terminal. Read drains
// the terminal output stream; Write feeds the terminal input stream.
type Process interface {
	PID() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(rows, cols uint16) error
	Signal(sig os.Signal) error
	Kill() error
	Alive() bool
	// Done receives the subprocess exit result exactly once.
	Done() <-chan error
	// Close releases the PTY file descriptor.
	Close() error
}

// Spawner creates PTY-attached subprocesses.
type Spawner interface {
	Spawn(opts SpawnOpts) (Process, error)
}
