package sync

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	gosync "sync"
	"time"
)

// Priority is the urgency of a sync demand.
type Priority int

const (
	// Important runs a pass as soon as the device is connected.
	Important Priority = iota
	// Unimportant runs a pass while the app is in the foreground.
	Unimportant
	// VeryUnimportant runs a pass only when none succeeded recently.
	VeryUnimportant
)

func (p Priority) String() string {
	switch p {
	case Important:
		return "important"
	case Unimportant:
		return "unimportant"
	case VeryUnimportant:
		return "very_unimportant"
	}
	return "unknown"
}

// SchedulerOptions configures a Scheduler. Zero durations take the defaults.
type SchedulerOptions struct {
	SuccessCooldownMin      time.Duration
	SuccessCooldownMax      time.Duration
	FailureCooldownMin      time.Duration
	FailureCooldownMax      time.Duration
	VeryUnimportantInterval time.Duration
	Logger                  *slog.Logger

	// Now and Sleep replace the clock in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default scheduler timings.
const (
	DefaultSuccessCooldownMin      = 2 * time.Second
	DefaultSuccessCooldownMax      = 3 * time.Second
	DefaultFailureCooldownMin      = 10 * time.Second
	DefaultFailureCooldownMax      = 15 * time.Second
	DefaultVeryUnimportantInterval = 10 * time.Minute
)

// demand holds the three request flags. They are cleared together when a
// pass starts.
type demand struct {
	important       bool
	unimportant     bool
	veryUnimportant bool
}

// Scheduler decides when sync passes run. Producers raise demand with
// RequestSync; the environment reports connectivity, credential presence and
// foreground state. Run evaluates the gate on every change.
type Scheduler struct {
	pass func(ctx context.Context) error
	opts SchedulerOptions
	log  *slog.Logger

	mu          gosync.Mutex
	demand      demand
	connected   bool
	syncEnabled bool
	foreground  bool
	needsReauth bool
	lastSuccess time.Time
	// inconsistent is the last snapshot the reconciler refused, until a pass succeeds.
	inconsistent *ConsistencyError

	wake chan struct{}
}

// NewScheduler creates a scheduler that calls pass for every sync pass.
func NewScheduler(pass func(ctx context.Context) error, opts SchedulerOptions) *Scheduler {
	if opts.SuccessCooldownMin == 0 {
		opts.SuccessCooldownMin = DefaultSuccessCooldownMin
	}
	if opts.SuccessCooldownMax < opts.SuccessCooldownMin {
		opts.SuccessCooldownMax = max(DefaultSuccessCooldownMax, opts.SuccessCooldownMin)
	}
	if opts.FailureCooldownMin == 0 {
		opts.FailureCooldownMin = DefaultFailureCooldownMin
	}
	if opts.FailureCooldownMax < opts.FailureCooldownMin {
		opts.FailureCooldownMax = max(DefaultFailureCooldownMax, opts.FailureCooldownMin)
	}
	if opts.VeryUnimportantInterval == 0 {
		opts.VeryUnimportantInterval = DefaultVeryUnimportantInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pass: pass,
		opts: opts,
		log:  logger,
		wake: make(chan struct{}, 1),
	}
}

// RequestSync raises demand at priority p.
func (s *Scheduler) RequestSync(p Priority) {
	s.update(func() {
		switch p {
		case Important:
			s.demand.important = true
		case Unimportant:
			s.demand.unimportant = true
		case VeryUnimportant:
			s.demand.veryUnimportant = true
		}
	})
}

// SetConnected reports whether the server is reachable.
func (s *Scheduler) SetConnected(v bool) { s.update(func() { s.connected = v }) }

// SetSyncEnabled reports whether a device credential is stored.
func (s *Scheduler) SetSyncEnabled(v bool) { s.update(func() { s.syncEnabled = v }) }

// SetForeground reports whether the user is looking at the app.
func (s *Scheduler) SetForeground(v bool) { s.update(func() { s.foreground = v }) }

// ClearReauth resumes syncing after the user authenticated again.
func (s *Scheduler) ClearReauth() {
	s.update(func() {
		s.needsReauth = false
		s.demand.important = true
	})
}

// Inconsistency returns the consistency violation that stopped the last
// pass, or nil once a pass succeeded again.
func (s *Scheduler) Inconsistency() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inconsistent == nil {
		return nil
	}
	return s.inconsistent
}

// LastSuccess returns the time of the last successful pass.
func (s *Scheduler) LastSuccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSuccess
}

// SetLastSuccess seeds the time of the last successful pass, usually from
// the local store at startup.
func (s *Scheduler) SetLastSuccess(t time.Time) { s.update(func() { s.lastSuccess = t }) }

func (s *Scheduler) update(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// shouldSyncLocked is the gate. s.mu must be held.
func (s *Scheduler) shouldSyncLocked(now time.Time) bool {
	if !s.connected || !s.syncEnabled || s.needsReauth {
		return false
	}
	d := s.demand
	return d.important ||
		(d.unimportant && s.foreground) ||
		(d.veryUnimportant && s.staleLocked(now))
}

func (s *Scheduler) staleLocked(now time.Time) bool {
	return s.lastSuccess.IsZero() || now.Sub(s.lastSuccess) >= s.opts.VeryUnimportantInterval
}

// recheckLocked returns how long until a pending very unimportant demand
// becomes due, or 0 when no timer is needed.
func (s *Scheduler) recheckLocked(now time.Time) time.Duration {
	if !s.demand.veryUnimportant || s.staleLocked(now) {
		return 0
	}
	return s.lastSuccess.Add(s.opts.VeryUnimportantInterval).Sub(now)
}

// Run executes passes until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		now := s.opts.Now()
		s.mu.Lock()
		ready := s.shouldSyncLocked(now)
		if ready {
			s.demand = demand{}
		}
		recheck := s.recheckLocked(now)
		s.mu.Unlock()

		if !ready {
			if err := s.wait(ctx, recheck); err != nil {
				return err
			}
			continue
		}

		err := s.pass(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cooldown := s.finish(err)
		if err := s.opts.Sleep(ctx, cooldown); err != nil {
			return err
		}
	}
}

// wait blocks until something changed, or until recheck elapsed when it is non-zero.
func (s *Scheduler) wait(ctx context.Context, recheck time.Duration) error {
	var timer <-chan time.Time
	if recheck > 0 {
		t := time.NewTimer(recheck)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.wake:
	case <-timer:
	}
	return nil
}

// finish records the outcome of a pass and returns the cooldown before the
// gate is evaluated again.
func (s *Scheduler) finish(err error) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.lastSuccess = s.opts.Now()
		s.inconsistent = nil
		return jitter(s.opts.SuccessCooldownMin, s.opts.SuccessCooldownMax)
	}

	var ce *ConsistencyError
	switch {
	case errors.Is(err, ErrAttributionRejected):
		s.needsReauth = true
	case errors.Is(err, ErrDeviceRemoved), errors.Is(err, ErrNotConfigured):
		s.syncEnabled = false
	case errors.As(err, &ce):
		// The same snapshot would be refused again. Wait for new demand,
		// which comes with the server's next change.
		s.inconsistent = ce
		s.log.Error("server data is inconsistent, waiting for new demand", "err", err)
		return jitter(s.opts.FailureCooldownMin, s.opts.FailureCooldownMax)
	default:
		s.demand.important = true
	}
	s.log.Warn("sync pass failed", "err", err)
	return jitter(s.opts.FailureCooldownMin, s.opts.FailureCooldownMax)
}

func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
