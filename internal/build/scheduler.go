package build

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sitewright/sitewright/internal/logfields"
)

// Trigger reasons attached to cycles for logging.
const (
	ReasonSignal    = "signal"    // a change signal arrived while idle
	ReasonCoalesced = "coalesced" // signals arrived during a build; this is their single rerun
	ReasonPeriodic  = "periodic"  // time-based trigger
	ReasonInitial   = "initial"   // first build on daemon startup
	ReasonOneShot   = "one-shot"  // direct CLI invocation
)

// Runner executes one complete build cycle.
type Runner func(ctx context.Context, reason string) error

// Scheduler serializes build cycles and coalesces bursts of change signals.
//
// At most one cycle runs at a time. Signals arriving while a cycle is in
// flight collapse into a single pending rerun that starts the moment the
// current cycle ends, regardless of how it ended. Signals arriving while a
// rerun is already pending are dropped.
type Scheduler struct {
	runner   Runner
	observer func(reason string, err error)
	logger   *slog.Logger

	mu       sync.Mutex
	building bool
	pending  bool
	stopped  bool
	idleCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler driving the given runner.
func NewScheduler(runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: runner, logger: logger}
}

// SetObserver installs a hook invoked after every cycle with its reason and
// result. Returns the scheduler for chaining. Must be called before the first
// Trigger.
func (s *Scheduler) SetObserver(fn func(reason string, err error)) *Scheduler {
	s.observer = fn
	return s
}

// Trigger requests a build cycle. If the scheduler is idle a cycle starts
// immediately with the given reason; if a cycle is in flight a single rerun
// is queued. Trigger never blocks on the build itself.
//
// ctx is the run context handed to cycles; cancellation suppresses the
// pending rerun and lets the in-flight cycle wind down at its next stage
// boundary.
func (s *Scheduler) Trigger(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.building {
		if !s.pending {
			s.pending = true
			s.logger.Debug("Build in flight; queued rerun", logfields.Reason(reason))
		}
		s.mu.Unlock()
		return
	}
	s.building = true
	s.idleCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, reason)
}

// run executes cycles until no rerun is pending, then returns the scheduler
// to idle.
func (s *Scheduler) run(ctx context.Context, reason string) {
	defer s.wg.Done()
	for {
		err := s.runner(ctx, reason)
		if s.observer != nil {
			s.observer(reason, err)
		}

		s.mu.Lock()
		if s.pending && !s.stopped && ctx.Err() == nil {
			s.pending = false
			s.mu.Unlock()
			reason = ReasonCoalesced
			continue
		}
		s.pending = false
		s.building = false
		close(s.idleCh)
		s.mu.Unlock()
		return
	}
}

// Stop prevents new cycles from starting. The in-flight cycle, if any, is
// left to finish; a queued rerun is discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.pending = false
	s.mu.Unlock()
}

// Building reports whether a cycle is currently in flight.
func (s *Scheduler) Building() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.building
}

// Idle reports whether no cycle is in flight and none is pending.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.building && !s.pending
}

// Wait blocks until the scheduler is idle or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.building && !s.pending {
			s.mu.Unlock()
			return nil
		}
		ch := s.idleCh
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
