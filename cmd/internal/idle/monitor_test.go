package idle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock shared with the monitor.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestMonitor(clock *fakeClock, logouts *int32, warnings *int32) *Monitor {
	return NewMonitor(Config{},
		func() { atomic.AddInt32(logouts, 1) },
		func(remaining time.Duration) { atomic.AddInt32(warnings, 1) },
		clock.now,
	)
}

func TestMonitor_ActiveUntilWarningWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var logouts, warnings int32
	m := newTestMonitor(clock, &logouts, &warnings)
	defer m.Stop()

	clock.advance(12 * time.Minute)
	m.Tick()
	if got := m.State(); got != Active {
		t.Fatalf("at 12m idle, state = %v, want Active", got)
	}

	// 13m30s idle: remaining 1m30s <= 2m lead, warning.
	clock.advance(90 * time.Second)
	m.Tick()
	if got := m.State(); got != Warning {
		t.Fatalf("inside warning window, state = %v, want Warning", got)
	}
	if atomic.LoadInt32(&warnings) != 1 {
		t.Fatalf("expected 1 warning callback, got %d", warnings)
	}
	if atomic.LoadInt32(&logouts) != 0 {
		t.Fatalf("logged out during warning: %d", logouts)
	}
}

func TestMonitor_ExpiresAndLogsOutOnce(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var logouts, warnings int32
	m := newTestMonitor(clock, &logouts, &warnings)

	clock.advance(15 * time.Minute)
	m.Tick()
	if got := m.State(); got != Expired {
		t.Fatalf("at timeout, state = %v, want Expired", got)
	}

	// Overlapping ticks after expiry must not re-fire the logout.
	m.Tick()
	m.Tick()
	if got := atomic.LoadInt32(&logouts); got != 1 {
		t.Fatalf("logout fired %d times, want exactly 1", got)
	}

	// Once expired, activity does not resurrect the machine.
	m.Touch()
	if got := m.State(); got != Expired {
		t.Fatalf("Touch after expiry moved state to %v", got)
	}
}

func TestMonitor_TouchResetsFromWarning(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var logouts, warnings int32
	m := newTestMonitor(clock, &logouts, &warnings)
	defer m.Stop()

	clock.advance(14 * time.Minute)
	m.Tick()
	if m.State() != Warning {
		t.Fatalf("expected Warning before touch")
	}

	m.Extend()
	if m.State() != Active {
		t.Fatalf("Extend did not return to Active")
	}

	// The full timeout restarts from the extension.
	clock.advance(14 * time.Minute)
	m.Tick()
	if got := m.State(); got != Warning {
		t.Fatalf("after extend + 14m, state = %v, want Warning", got)
	}
	if atomic.LoadInt32(&logouts) != 0 {
		t.Fatalf("unexpected logout: %d", logouts)
	}
}

func TestMonitor_ExplicitLogout(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var logouts, warnings int32
	m := newTestMonitor(clock, &logouts, &warnings)

	m.Logout()
	if m.State() != Expired {
		t.Fatalf("explicit logout did not expire the machine")
	}
	if atomic.LoadInt32(&logouts) != 1 {
		t.Fatalf("logout fired %d times, want 1", logouts)
	}

	// A timer tick racing the explicit logout must not double-fire.
	clock.advance(time.Hour)
	m.Tick()
	if atomic.LoadInt32(&logouts) != 1 {
		t.Fatalf("tick after explicit logout re-fired: %d", logouts)
	}
}

func TestMonitor_ConcurrentExpiry_LogoutOnce(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var logouts int32
	m := NewMonitor(Config{}, func() { atomic.AddInt32(&logouts, 1) }, nil, clock.now)

	clock.advance(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Tick()
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&logouts); got != 1 {
		t.Fatalf("concurrent ticks fired logout %d times, want 1", got)
	}
}

func TestMonitor_RunStopsCleanly(t *testing.T) {
	t.Parallel()

	m := NewMonitor(Config{TickInterval: time.Millisecond}, func() {}, nil, nil)

	done := make(chan struct{})
	go func() {
		m.Run()
		close(done)
	}()

	m.Stop()
	m.Stop() // idempotent

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after Stop")
	}
}
