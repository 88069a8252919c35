package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	calls  int
	err    error
	result *DispatchResult

	// lockCheck, when set, runs during Dispatch so tests can observe state
	// while the pipeline holds the lock.
	lockCheck func()
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, command, projectDir string) (*DispatchResult, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.lockCheck != nil {
		d.lockCheck()
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.result != nil {
		return d.result, nil
	}
	return &DispatchResult{Success: true, SessionID: "sess-ab12cd34", PID: 4242, Mode: "dispatched"}, nil
}

func newTestPipeline(t *testing.T, d Dispatcher) (*Pipeline, *Store) {
	t.Helper()
	db := testDB(t)
	store := NewStore(db, "")
	p := NewPipeline(PipelineOpts{
		DB:                db,
		Dispatcher:        d,
		Store:             store,
		Command:           "/review-push",
		ProtectedBranches: protected,
		SkipMarker:        "[skip-agent]",
	})
	return p, store
}

func pushEvent(dir string) Event {
	return Event{Action: "push", Branch: "main", CommitMessage: "fix parser", ProjectDir: dir}
}

func TestPipeline_SuccessfulDispatch(t *testing.T) {
	d := &fakeDispatcher{}
	p, store := newTestPipeline(t, d)

	// The lock must be held while the dispatch is in flight.
	var heldDuringDispatch bool
	d.lockCheck = func() {
		heldDuringDispatch, _ = LockHeld(p.db, "/repo/a")
	}

	outcome := p.Run(context.Background(), pushEvent("/repo/a"))
	if outcome.State != StateCompleted {
		t.Fatalf("state = %q (reason %q), want completed", outcome.State, outcome.Reason)
	}
	if outcome.Result == nil || outcome.Result.SessionID != "sess-ab12cd34" {
		t.Errorf("result = %+v", outcome.Result)
	}
	if !heldDuringDispatch {
		t.Error("lock must be held during dispatch")
	}

	if held, _ := LockHeld(p.db, "/repo/a"); held {
		t.Error("lock must be released after a successful run")
	}
	if _, ok := store.Consume("/repo/a"); ok {
		t.Error("no marker should be written on success")
	}
	if p.State() != StateIdle {
		t.Errorf("pipeline state = %q, want idle", p.State())
	}
}

func TestPipeline_DispatchFailureWritesMarkerAndReleasesLock(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("connection refused")}
	p, store := newTestPipeline(t, d)

	outcome := p.Run(context.Background(), pushEvent("/repo/a"))
	if outcome.State != StateFallback {
		t.Fatalf("state = %q, want fallback", outcome.State)
	}

	// The two invariants of the failure path: no lock left behind, and the
	// intent preserved as a durable one-shot marker.
	if held, _ := LockHeld(p.db, "/repo/a"); held {
		t.Error("lock must be released after a failed dispatch")
	}
	cmd, ok := store.Consume("/repo/a")
	if !ok || cmd != "/review-push" {
		t.Errorf("marker = %q, %v; want /review-push", cmd, ok)
	}
}

func TestPipeline_TimeoutWritesMarker(t *testing.T) {
	d := &fakeDispatcher{err: ErrUpstreamTimeout}
	p, store := newTestPipeline(t, d)

	outcome := p.Run(context.Background(), pushEvent("/repo/a"))
	if outcome.State != StateFallback {
		t.Fatalf("state = %q, want fallback", outcome.State)
	}
	if _, ok := store.Consume("/repo/a"); !ok {
		t.Error("timeout must queue the command for later")
	}
}

func TestPipeline_NonQualifyingEventSkips(t *testing.T) {
	d := &fakeDispatcher{}
	p, store := newTestPipeline(t, d)

	outcome := p.Run(context.Background(), Event{
		Action: "push", Branch: "feature/x", ProjectDir: "/repo/a",
	})
	if outcome.State != StateSkipped {
		t.Fatalf("state = %q, want skipped", outcome.State)
	}
	if d.calls != 0 {
		t.Error("non-qualifying event must not dispatch")
	}
	if held, _ := LockHeld(p.db, "/repo/a"); held {
		t.Error("non-qualifying event must not take the lock")
	}
	if _, ok := store.Consume("/repo/a"); ok {
		t.Error("non-qualifying event must not write a marker")
	}
}

func TestPipeline_SkipMarkerSuppresses(t *testing.T) {
	d := &fakeDispatcher{}
	p, _ := newTestPipeline(t, d)

	outcome := p.Run(context.Background(), Event{
		Action: "push", Branch: "main",
		CommitMessage: "wip [skip-agent]",
		ProjectDir:    "/repo/a",
	})
	if outcome.State != StateSkipped || d.calls != 0 {
		t.Errorf("state = %q, calls = %d; want skipped with no dispatch", outcome.State, d.calls)
	}
}

func TestPipeline_LockContentionSkipsWithoutMarker(t *testing.T) {
	d := &fakeDispatcher{}
	p, store := newTestPipeline(t, d)

	// Another process holds the lock.
	if err := AcquireLock(p.db, "/repo/a"); err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}

	outcome := p.Run(context.Background(), pushEvent("/repo/a"))
	if outcome.State != StateSkipped {
		t.Fatalf("state = %q, want skipped", outcome.State)
	}
	if d.calls != 0 {
		t.Error("contended run must not dispatch")
	}
	if _, ok := store.Consume("/repo/a"); ok {
		t.Error("contended run must not write a marker")
	}
	// The foreign lock stays: skipping must not release someone else's lock.
	if held, _ := LockHeld(p.db, "/repo/a"); !held {
		t.Error("foreign lock must survive a contended run")
	}
}

func TestPipeline_EventCommandOverride(t *testing.T) {
	d := &fakeDispatcher{}
	p, store := newTestPipeline(t, d)
	d.err = errors.New("boom")

	ev := pushEvent("/repo/a")
	ev.Command = "/custom-check"
	p.Run(context.Background(), ev)

	cmd, ok := store.Consume("/repo/a")
	if !ok || cmd != "/custom-check" {
		t.Errorf("marker = %q, want the overridden command", cmd)
	}
}

func TestPipeline_PanicReleasesLockAndQueues(t *testing.T) {
	d := &fakeDispatcher{lockCheck: func() { panic("dispatcher exploded") }}
	p, store := newTestPipeline(t, d)

	outcome := p.Run(context.Background(), pushEvent("/repo/a"))
	if outcome.State != StateFallback {
		t.Fatalf("state = %q, want fallback after panic", outcome.State)
	}
	if held, _ := LockHeld(p.db, "/repo/a"); held {
		t.Error("lock must be released even on panic")
	}
	if _, ok := store.Consume("/repo/a"); !ok {
		t.Error("panic must still queue the command")
	}
	if p.State() != StateIdle {
		t.Errorf("pipeline state = %q, want idle", p.State())
	}
}
