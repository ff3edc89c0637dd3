package reconnect

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock records scheduled timers and fires them on demand.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

// fire runs the next unfired timer and returns its delay.
func (c *fakeClock) fire(t *testing.T) time.Duration {
	c.mu.Lock()
	require.NotEmpty(t, c.timers, "no timer scheduled")
	timer := c.timers[0]
	c.timers = c.timers[1:]
	c.mu.Unlock()

	require.False(t, timer.stopped, "fired a stopped timer")
	timer.f()
	return timer.delay
}

func (c *fakeClock) pendingDelays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped {
			out = append(out, t.delay)
		}
	}
	return out
}

// fakeRegistrar counts Register calls and fails a configurable number of
// times.
type fakeRegistrar struct {
	mu        sync.Mutex
	calls     []string
	failUntil int
}

func (r *fakeRegistrar) Register(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, address)
	if len(r.calls) <= r.failUntil {
		return errors.New("broker unreachable")
	}
	return nil
}

func (r *fakeRegistrar) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestSupervisor(t *testing.T, reg *fakeRegistrar, clock *fakeClock) *Supervisor {
	t.Helper()
	sup, err := NewSupervisor(reg, Config{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 3,
	}, clock)
	require.NoError(t, err)
	sup.SetAddress("alice_4821")
	return sup
}

func TestSupervisorBackoffDoubles(t *testing.T) {
	reg := &fakeRegistrar{failUntil: 10}
	clock := newFakeClock()
	sup := newTestSupervisor(t, reg, clock)

	sup.NotifyDisconnected()
	assert.Equal(t, time.Second, clock.fire(t))   // attempt 1
	assert.Equal(t, 2*time.Second, clock.fire(t)) // attempt 2
	assert.Equal(t, 4*time.Second, clock.fire(t)) // attempt 3
	assert.Equal(t, 3, reg.callCount())
}

func TestSupervisorSucceedsOnThirdAttempt(t *testing.T) {
	// Scenario: the broker comes back while retries are in flight. The
	// first two registrations fail, the third goes through.
	reg := &fakeRegistrar{failUntil: 2}
	clock := newFakeClock()
	sup := newTestSupervisor(t, reg, clock)

	sup.NotifyDisconnected()
	clock.fire(t)
	clock.fire(t)
	clock.fire(t) // third attempt succeeds, nothing further scheduled

	assert.Equal(t, 3, reg.callCount())
	assert.Empty(t, clock.pendingDelays())

	// Transport confirms the registration; counter resets.
	sup.NotifyOpened()
	assert.Equal(t, 0, sup.Attempts())
}

func TestSupervisorExhaustionSurfacesTerminalError(t *testing.T) {
	reg := &fakeRegistrar{failUntil: 10}
	clock := newFakeClock()
	sup := newTestSupervisor(t, reg, clock)

	failed := make(chan error, 1)
	sup.SetFailureCallback(func(err error) { failed <- err })

	sup.NotifyDisconnected()
	clock.fire(t)
	clock.fire(t)
	clock.fire(t) // last allowed attempt fails -> exhaustion

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, ErrRetriesExhausted)
	case <-time.After(time.Second):
		t.Fatal("failure callback never invoked")
	}
	assert.Empty(t, clock.pendingDelays(), "no further retries after exhaustion")
}

func TestSupervisorOpenedCancelsPendingRetry(t *testing.T) {
	reg := &fakeRegistrar{failUntil: 10}
	clock := newFakeClock()
	sup := newTestSupervisor(t, reg, clock)

	sup.NotifyDisconnected()
	sup.NotifyOpened()

	assert.Equal(t, 0, sup.Attempts())
	assert.Empty(t, clock.pendingDelays())
}

func TestSupervisorDuplicateDisconnectsCoalesce(t *testing.T) {
	reg := &fakeRegistrar{failUntil: 10}
	clock := newFakeClock()
	sup := newTestSupervisor(t, reg, clock)

	sup.NotifyDisconnected()
	sup.NotifyDisconnected()
	sup.NotifyDisconnected()

	assert.Len(t, clock.pendingDelays(), 1, "only one retry may be pending")
}

func TestSupervisorManualReconnectResetsCounter(t *testing.T) {
	reg := &fakeRegistrar{failUntil: 1}
	clock := newFakeClock()
	sup := newTestSupervisor(t, reg, clock)

	sup.NotifyDisconnected()
	clock.fire(t) // fails, schedules next

	require.NoError(t, sup.ManualReconnect("alice_9130"))
	assert.Equal(t, 0, sup.Attempts())
	assert.Empty(t, clock.pendingDelays(), "manual reconnect cancels pending timers")
	assert.Equal(t, 2, reg.callCount())
}

func TestSupervisorStopPreventsFurtherWork(t *testing.T) {
	reg := &fakeRegistrar{failUntil: 10}
	clock := newFakeClock()
	sup := newTestSupervisor(t, reg, clock)

	sup.NotifyDisconnected()
	sup.Stop()
	sup.NotifyDisconnected()

	assert.Empty(t, clock.pendingDelays())
	assert.Error(t, sup.ManualReconnect("x_1000"))
}

func TestSupervisorNoAddressNoRetry(t *testing.T) {
	reg := &fakeRegistrar{}
	clock := newFakeClock()
	sup, err := NewSupervisor(reg, DefaultConfig(), clock)
	require.NoError(t, err)

	sup.NotifyDisconnected()
	assert.Empty(t, clock.pendingDelays())
}

func TestSupervisorDelayCapped(t *testing.T) {
	reg := &fakeRegistrar{failUntil: 100}
	clock := newFakeClock()
	sup, err := NewSupervisor(reg, Config{
		BaseDelay:   time.Second,
		MaxDelay:    4 * time.Second,
		MaxAttempts: 6,
	}, clock)
	require.NoError(t, err)
	sup.SetAddress("alice_4821")

	sup.NotifyDisconnected()
	delays := []time.Duration{
		clock.fire(t), clock.fire(t), clock.fire(t), clock.fire(t), clock.fire(t),
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second,
	}, delays)
}
