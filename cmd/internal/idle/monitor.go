// Package idle implements the client-side inactivity state machine that
// forces logout after a period of no user interaction.
//
// The machine is local bookkeeping only: extending the session resets a
// timestamp without a server round-trip. A clock-manipulated or suspended
// client may drift; that trust boundary is accepted.
package idle

import (
	"sync"
	"time"
)

// State is the monitor's lifecycle state.
type State int

const (
	// Active means recent interaction was observed.
	Active State = iota
	// Warning means expiry is imminent; a countdown should be surfaced.
	Warning
	// Expired is terminal until a fresh login builds a new monitor.
	Expired
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Warning:
		return "warning"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

const (
	// DefaultIdleTimeout is the maximum inactivity before forced logout.
	DefaultIdleTimeout = 15 * time.Minute
	// DefaultWarningLead is how long before expiry the warning shows.
	DefaultWarningLead = 2 * time.Minute
	// DefaultTickInterval is how often idle time is re-evaluated.
	DefaultTickInterval = 30 * time.Second
)

// Config parameterizes the monitor. Zero values take the defaults above.
type Config struct {
	IdleTimeout  time.Duration
	WarningLead  time.Duration
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.WarningLead <= 0 {
		c.WarningLead = DefaultWarningLead
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

// Monitor watches a shared last-activity timestamp and drives the
// Active -> Warning -> Expired transitions.
//
// Logout runs exactly once per monitor, no matter how many ticks observe
// the expired condition or whether an explicit logout races a timer tick.
type Monitor struct {
	cfg Config
	now func() time.Time

	// onExpired performs the forced logout: revoke the current device by
	// its session token, then discard local session state.
	onExpired func()
	// onWarning surfaces the countdown; remaining is time until expiry.
	onWarning func(remaining time.Duration)

	mu           sync.Mutex
	lastActivity time.Time
	state        State
	loggedOut    bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMonitor builds a monitor. onExpired is required; onWarning may be nil.
// clock may be nil for wall time.
func NewMonitor(cfg Config, onExpired func(), onWarning func(remaining time.Duration), clock func() time.Time) *Monitor {
	if clock == nil {
		clock = time.Now
	}
	m := &Monitor{
		cfg:       cfg.withDefaults(),
		now:       clock,
		onExpired: onExpired,
		onWarning: onWarning,
		state:     Active,
		stopCh:    make(chan struct{}),
	}
	m.lastActivity = m.now()
	return m
}

// Run ticks until Stop is called. Call it in its own goroutine.
func (m *Monitor) Run() {
	t := time.NewTicker(m.cfg.TickInterval)
	defer t.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.Tick()
		}
	}
}

// Stop cancels the timer loop. Safe to call more than once; required on
// session teardown so no ticker leaks.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Touch records a user-interaction event. From Active or Warning the state
// returns to Active; once Expired the machine stays dead.
func (m *Monitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Expired {
		return
	}
	m.lastActivity = m.now()
	m.state = Active
}

// Extend is the explicit "stay signed in" action from the warning dialog.
// Equivalent to an activity event.
func (m *Monitor) Extend() { m.Touch() }

// Logout is the explicit "sign out now" action. It expires the machine
// immediately and fires the logout side effect, subject to the same
// exactly-once guard as timer-driven expiry.
func (m *Monitor) Logout() {
	m.expire()
}

// Tick re-evaluates idle time. Exposed for deterministic tests; Run calls
// it on the configured interval.
func (m *Monitor) Tick() {
	m.mu.Lock()

	if m.state == Expired {
		m.mu.Unlock()
		return
	}

	idle := m.now().Sub(m.lastActivity)

	if idle >= m.cfg.IdleTimeout {
		m.mu.Unlock()
		m.expire()
		return
	}

	remaining := m.cfg.IdleTimeout - idle
	if remaining <= m.cfg.WarningLead {
		m.state = Warning
		cb := m.onWarning
		m.mu.Unlock()
		if cb != nil {
			cb(remaining)
		}
		return
	}

	m.state = Active
	m.mu.Unlock()
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) expire() {
	m.mu.Lock()
	alreadyOut := m.loggedOut
	m.state = Expired
	m.loggedOut = true
	m.mu.Unlock()

	if alreadyOut {
		return
	}
	if m.onExpired != nil {
		m.onExpired()
	}
	m.Stop()
}
