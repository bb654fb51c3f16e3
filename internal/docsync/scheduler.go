package docsync

import (
	"context"
	"sync/atomic"
	"time"
)

// CycleRunner runs one sync cycle. *Service implements it.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*CycleReport, error)
}

// State is the scheduler's position in its Idle/Running state machine.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Scheduler runs a cycle immediately and then once per interval. A tick or a
// trigger that arrives while a cycle is running is dropped, not queued. All
// state transitions happen on the goroutine that calls Run.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	ticks    <-chan time.Time
	trigger  chan struct{}
	recorder Recorder
	logger   Logger

	// mirrors the Run goroutine's state for readers such as health checks
	current atomic.Int32
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickSource replaces the interval ticker with ch.
func WithTickSource(ch <-chan time.Time) SchedulerOption {
	return func(s *Scheduler) { s.ticks = ch }
}

// WithRecorder sets the Recorder that counts dropped ticks.
func WithRecorder(r Recorder) SchedulerOption {
	return func(s *Scheduler) { s.recorder = r }
}

// NewScheduler creates a Scheduler for runner.
func NewScheduler(runner CycleRunner, interval time.Duration, logger Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		recorder: NopRecorder{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger asks for a cycle outside the regular interval. It never blocks and
// reports false when a request is already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// State reports whether a cycle is currently running.
func (s *Scheduler) State() State {
	return State(s.current.Load())
}

// Run drives cycles until ctx is cancelled. On cancellation it waits for the
// running cycle, if any, to observe ctx and finish.
func (s *Scheduler) Run(ctx context.Context) error {
	ticks := s.ticks
	if ticks == nil {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	done := make(chan struct{})
	state := Idle
	setState := func(st State) {
		state = st
		s.current.Store(int32(st))
	}
	start := func(reason string) {
		setState(Running)
		s.logger.Debug("starting cycle", "reason", reason)
		go func() {
			if _, err := s.runner.RunCycle(ctx); err != nil {
				s.logger.Error("sync cycle failed", "error", err)
			}
			done <- struct{}{}
		}()
	}

	start("startup")
	for {
		select {
		case <-ctx.Done():
			if state == Running {
				<-done
				setState(Idle)
			}
			return nil
		case <-done:
			setState(Idle)
		case <-ticks:
			if state == Running {
				s.logger.Info("skipping scan cycle, previous cycle is still running")
				s.recorder.RecordDroppedTick(ctx)
				continue
			}
			start("interval")
		case <-s.trigger:
			if state == Running {
				s.logger.Debug("skipping triggered cycle, previous cycle is still running")
				s.recorder.RecordDroppedTick(ctx)
				continue
			}
			start("trigger")
		}
	}
}
