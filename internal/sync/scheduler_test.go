package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passRecorder counts passes and returns queued results, nil once drained.
type passRecorder struct {
	mu      gosync.Mutex
	results []error
	calls   chan struct{}
}

func newPassRecorder(results ...error) *passRecorder {
	return &passRecorder{results: results, calls: make(chan struct{}, 64)}
}

func (p *passRecorder) pass(context.Context) error {
	p.mu.Lock()
	var err error
	if len(p.results) > 0 {
		err, p.results = p.results[0], p.results[1:]
	}
	p.mu.Unlock()
	p.calls <- struct{}{}
	return err
}

func (p *passRecorder) expectPass(t *testing.T) {
	t.Helper()
	select {
	case <-p.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a sync pass")
	}
}

func (p *passRecorder) expectNoPass(t *testing.T) {
	t.Helper()
	select {
	case <-p.calls:
		t.Fatal("unexpected sync pass")
	case <-time.After(100 * time.Millisecond):
	}
}

func startScheduler(t *testing.T, rec *passRecorder, opts SchedulerOptions) *Scheduler {
	t.Helper()
	if opts.Sleep == nil {
		opts.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	}
	s := NewScheduler(rec.pass, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func TestScheduler_DisconnectedNeverSyncs(t *testing.T) {
	rec := newPassRecorder()
	s := startScheduler(t, rec, SchedulerOptions{})
	s.SetSyncEnabled(true)
	s.SetForeground(true)
	s.RequestSync(Important)
	s.RequestSync(Unimportant)
	s.RequestSync(VeryUnimportant)
	rec.expectNoPass(t)

	s.SetConnected(true)
	rec.expectPass(t)
}

func TestScheduler_SyncDisabledNeverSyncs(t *testing.T) {
	rec := newPassRecorder()
	s := startScheduler(t, rec, SchedulerOptions{})
	s.SetConnected(true)
	s.RequestSync(Important)
	rec.expectNoPass(t)

	s.SetSyncEnabled(true)
	rec.expectPass(t)
}

func TestScheduler_ImportantRunsRegardlessOfOtherFlags(t *testing.T) {
	rec := newPassRecorder()
	s := startScheduler(t, rec, SchedulerOptions{})
	s.SetConnected(true)
	s.SetSyncEnabled(true)
	s.RequestSync(Important)
	rec.expectPass(t)
	rec.expectNoPass(t)
}

func TestScheduler_UnimportantWaitsForForeground(t *testing.T) {
	rec := newPassRecorder()
	s := startScheduler(t, rec, SchedulerOptions{})
	s.SetConnected(true)
	s.SetSyncEnabled(true)
	s.RequestSync(Unimportant)
	rec.expectNoPass(t)

	s.SetForeground(true)
	rec.expectPass(t)
}

func TestScheduler_VeryUnimportantWaitsForStaleness(t *testing.T) {
	var mu gosync.Mutex
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	rec := newPassRecorder()
	s := startScheduler(t, rec, SchedulerOptions{Now: clock, VeryUnimportantInterval: 10 * time.Minute})
	s.SetLastSuccess(clock().Add(-time.Minute))
	s.SetConnected(true)
	s.SetSyncEnabled(true)
	s.RequestSync(VeryUnimportant)
	rec.expectNoPass(t)

	mu.Lock()
	now = now.Add(10 * time.Minute)
	mu.Unlock()
	s.SetForeground(false) // any change re-evaluates the gate
	rec.expectPass(t)
}

func TestScheduler_VeryUnimportantRunsWithoutPriorSuccess(t *testing.T) {
	rec := newPassRecorder()
	s := startScheduler(t, rec, SchedulerOptions{})
	s.SetConnected(true)
	s.SetSyncEnabled(true)
	s.RequestSync(VeryUnimportant)
	rec.expectPass(t)
}

func TestScheduler_FailureRetries(t *testing.T) {
	rec := newPassRecorder(errors.New("offline"))
	var slept []time.Duration
	var mu gosync.Mutex
	s := startScheduler(t, rec, SchedulerOptions{
		Sleep: func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			slept = append(slept, d)
			mu.Unlock()
			return ctx.Err()
		},
	})
	s.SetConnected(true)
	s.SetSyncEnabled(true)
	s.RequestSync(Important)

	rec.expectPass(t)
	rec.expectPass(t) // retried without new demand
	rec.expectNoPass(t)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(slept), 2)
	assert.GreaterOrEqual(t, slept[0], DefaultFailureCooldownMin)
	assert.LessOrEqual(t, slept[0], DefaultFailureCooldownMax)
	assert.GreaterOrEqual(t, slept[1], DefaultSuccessCooldownMin)
	assert.LessOrEqual(t, slept[1], DefaultSuccessCooldownMax)
	assert.False(t, s.LastSuccess().IsZero())
}

func TestScheduler_AttributionRejectionWaitsForReauth(t *testing.T) {
	rec := newPassRecorder(ErrAttributionRejected)
	s := startScheduler(t, rec, SchedulerOptions{})
	s.SetConnected(true)
	s.SetSyncEnabled(true)
	s.RequestSync(Important)
	rec.expectPass(t)

	s.RequestSync(Important)
	rec.expectNoPass(t)

	s.ClearReauth()
	rec.expectPass(t)
}

func TestScheduler_InconsistentSnapshotWaitsForNewDemand(t *testing.T) {
	rec := newPassRecorder(&ConsistencyError{Family: "category_base", EntityID: "C9", MissingParent: "ghost"})
	s := startScheduler(t, rec, SchedulerOptions{})
	s.SetConnected(true)
	s.SetSyncEnabled(true)
	s.RequestSync(Important)
	rec.expectPass(t)
	rec.expectNoPass(t)

	var ce *ConsistencyError
	require.ErrorAs(t, s.Inconsistency(), &ce)
	assert.Equal(t, "C9", ce.EntityID)

	s.RequestSync(Important)
	rec.expectPass(t)
	require.Eventually(t, func() bool { return s.Inconsistency() == nil }, time.Second, 10*time.Millisecond)
}

func TestScheduler_DeviceRemovedDisablesSync(t *testing.T) {
	rec := newPassRecorder(ErrDeviceRemoved)
	s := startScheduler(t, rec, SchedulerOptions{})
	s.SetConnected(true)
	s.SetSyncEnabled(true)
	s.RequestSync(Important)
	rec.expectPass(t)

	s.RequestSync(Important)
	rec.expectNoPass(t)
}

func TestJitterWithinBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := jitter(2*time.Second, 3*time.Second)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 3*time.Second)
	}
	assert.Equal(t, time.Second, jitter(time.Second, time.Second))
}
