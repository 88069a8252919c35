package pty

import (
	"errors"
	"io"
	"os"
	"sync"
	"syscall"
)

// FakeSpawner is an in-memory Spawner for tests. Each Spawn returns a
// FakeProcess whose output the test scripts via Emit and Exit.
type FakeSpawner struct {
	mu      sync.Mutex
	Err     error // non-nil makes Spawn fail
	nextPID int
	Spawned []SpawnOpts
	Procs   []*FakeProcess
}

// Spawn implements Spawner.
func (s *FakeSpawner) Spawn(opts SpawnOpts) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.nextPID++
	p := NewFakeProcess(100000 + s.nextPID)
	s.Spawned = append(s.Spawned, opts)
	s.Procs = append(s.Procs, p)
	return p, nil
}

// Last returns the most recently spawned process, nil if none.
func (s *FakeSpawner) Last() *FakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Procs) == 0 {
		return nil
	}
	return s.Procs[len(s.Procs)-1]
}

// FakeProcess implements Process without forking. Output is fed through Emit;
// the test ends the stream with Exit. SIGTERM and Kill both end the process,
// mirroring a well-behaved child.
type FakeProcess struct {
	pid  int
	out  chan []byte
	done chan error

	mu       sync.Mutex
	pending  []byte
	writes   [][]byte
	signals  []os.Signal
	alive    bool
	exitOnce sync.Once
}

// NewFakeProcess creates a live FakeProcess with the given PID.
func NewFakeProcess(pid int) *FakeProcess {
	return &FakeProcess{
		pid:   pid,
		out:   make(chan []byte, 64),
		done:  make(chan error, 1),
		alive: true,
	}
}

// Emit queues data for the next Read.
func (p *FakeProcess) Emit(data []byte) { p.out <- data }

// EmitString queues a string for the next Read.
func (p *FakeProcess) EmitString(s string) { p.Emit([]byte(s)) }

// Exit ends the process: Read drains remaining output then returns io.EOF,
// and Done yields err. Safe to call more than once.
func (p *FakeProcess) Exit(err error) {
	p.exitOnce.Do(func() {
		p.mu.Lock()
		p.alive = false
		p.mu.Unlock()
		p.done <- err
		close(p.out)
	})
}

// MarkDead makes Alive report false without ending the output stream,
// simulating a process that died while its reader has not yet noticed.
func (p *FakeProcess) MarkDead() {
	p.mu.Lock()
	p.alive = false
	p.mu.Unlock()
}

// Writes returns everything written to the terminal input, in order.
func (p *FakeProcess) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

// Signals returns the signals delivered so far.
func (p *FakeProcess) Signals() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]os.Signal, len(p.signals))
	copy(out, p.signals)
	return out
}

func (p *FakeProcess) PID() int { return p.pid }

func (p *FakeProcess) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) > 0 {
		n := copy(buf, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	data, ok := <-p.out
	if !ok {
		return 0, io.EOF
	}
	n := copy(buf, data)
	if n < len(data) {
		p.mu.Lock()
		p.pending = data[n:]
		p.mu.Unlock()
	}
	return n, nil
}

func (p *FakeProcess) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive {
		return 0, errors.New("pty: process has exited")
	}
	data := make([]byte, len(buf))
	copy(data, buf)
	p.writes = append(p.writes, data)
	return len(buf), nil
}

func (p *FakeProcess) Resize(rows, cols uint16) error { return nil }

func (p *FakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	if sig == syscall.SIGTERM {
		p.Exit(nil)
	}
	return nil
}

func (p *FakeProcess) Kill() error {
	p.Exit(nil)
	return nil
}

func (p *FakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *FakeProcess) Done() <-chan error { return p.done }

func (p *FakeProcess) Close() error { return nil }
