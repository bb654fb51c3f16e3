package docsync_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"docsync/internal/docsync"
	"docsync/internal/testutil"
)

// blockingRunner blocks every cycle until release is closed or ctx is done.
type blockingRunner struct {
	mu      sync.Mutex
	calls   int
	active  int
	overlap bool

	started chan struct{}
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) RunCycle(ctx context.Context) (*docsync.CycleReport, error) {
	r.mu.Lock()
	r.calls++
	r.active++
	if r.active > 1 {
		r.overlap = true
	}
	r.mu.Unlock()

	r.started <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
	}

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return &docsync.CycleReport{}, ctx.Err()
}

func (r *blockingRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func waitStarted(t *testing.T, r *blockingRunner) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cycle to start")
	}
}

func TestScheduler_DropsTicksWhileRunning(t *testing.T) {
	runner := newBlockingRunner()
	rec := &testutil.FakeRecorder{}
	ticks := make(chan time.Time)
	s := docsync.NewScheduler(runner, time.Hour, docsync.NewNopLogger(),
		docsync.WithTickSource(ticks), docsync.WithRecorder(rec))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	waitStarted(t, runner)
	if s.State() != docsync.Running {
		t.Errorf("State() = %v, want running", s.State())
	}
	for range 3 {
		ticks <- time.Now()
	}

	close(runner.release)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.State() != docsync.Idle {
		t.Errorf("State() = %v after shutdown, want idle", s.State())
	}

	if runner.Calls() != 1 {
		t.Errorf("cycles = %d, want 1", runner.Calls())
	}
	if rec.Dropped() != 3 {
		t.Errorf("dropped ticks = %d, want 3", rec.Dropped())
	}
	if runner.overlap {
		t.Error("cycles overlapped")
	}
}

func TestScheduler_TickAfterIdleStartsCycle(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	ticks := make(chan time.Time, 1)
	s := docsync.NewScheduler(runner, time.Hour, docsync.NewNopLogger(), docsync.WithTickSource(ticks))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	waitStarted(t, runner)

	deadline := time.After(2 * time.Second)
	for runner.Calls() < 2 {
		select {
		case ticks <- time.Now():
		default:
		}
		select {
		case <-runner.started:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for a ticked cycle")
		}
	}

	cancel()
	<-done
	if runner.overlap {
		t.Error("cycles overlapped")
	}
}

func TestScheduler_Trigger(t *testing.T) {
	t.Run("coalesces pending requests", func(t *testing.T) {
		s := docsync.NewScheduler(newBlockingRunner(), time.Hour, docsync.NewNopLogger())

		if !s.Trigger() {
			t.Error("first Trigger() = false, want true")
		}
		if s.Trigger() {
			t.Error("second Trigger() = true, want false while pending")
		}
	})

	t.Run("starts a cycle when idle", func(t *testing.T) {
		runner := newBlockingRunner()
		close(runner.release)
		s := docsync.NewScheduler(runner, time.Hour, docsync.NewNopLogger(), docsync.WithTickSource(make(chan time.Time)))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() { done <- s.Run(ctx) }()

		waitStarted(t, runner)

		deadline := time.After(2 * time.Second)
		for runner.Calls() < 2 {
			s.Trigger()
			select {
			case <-runner.started:
			case <-time.After(10 * time.Millisecond):
			case <-deadline:
				t.Fatal("timed out waiting for a triggered cycle")
			}
		}

		cancel()
		<-done
	})
}

func TestScheduler_WaitsForRunningCycleOnShutdown(t *testing.T) {
	runner := &slowRunner{}
	s := docsync.NewScheduler(runner, time.Hour, docsync.NewNopLogger(), docsync.WithTickSource(make(chan time.Time)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	<-runner.startedCh()
	cancel()
	<-done

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if !runner.completed {
		t.Error("Run() returned before the running cycle finished")
	}
}

type slowRunner struct {
	mu        sync.Mutex
	completed bool
	started   chan struct{}
	once      sync.Once
}

func (r *slowRunner) startedCh() chan struct{} {
	r.once.Do(func() { r.started = make(chan struct{}) })
	return r.started
}

func (r *slowRunner) RunCycle(ctx context.Context) (*docsync.CycleReport, error) {
	close(r.startedCh())
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)

	r.mu.Lock()
	r.completed = true
	r.mu.Unlock()
	return &docsync.CycleReport{Status: docsync.CycleCancelled}, ctx.Err()
}

func TestState_String(t *testing.T) {
	if docsync.Idle.String() != "idle" || docsync.Running.String() != "running" {
		t.Errorf("State strings = %s, %s", docsync.Idle, docsync.Running)
	}
}
