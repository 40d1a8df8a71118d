package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"incident-command-plane/internal/notify"
)

const (
	defaultHeartbeatInterval = 60 * time.Second

	// defaultRefreshInterval keeps the access credential rotated well inside
	// its lifetime.
	defaultRefreshInterval = 10 * time.Minute
)

// API is the slice of the server the monitor talks to.
type API interface {
	Heartbeat(ctx context.Context) error
	SessionStatus(ctx context.Context) (string, error)
	RefreshCredentials(ctx context.Context) error
}

// Callbacks are the hooks the monitor invokes on state changes. Nil hooks are
// skipped.
type Callbacks struct {
	// OnStatus fires when the session standing reported by the server changes
	// (e.g. ok → locked_out).
	OnStatus func(status string)
	// OnReload fires when this session's command standing flipped and the
	// client should re-fetch everything.
	OnReload func()
	// OnRefresh fires for ordinary data changes; a light re-fetch suffices.
	OnRefresh func(ev notify.Event)
}

// Monitor drives a client session: periodic heartbeats while visible,
// credential rotation on a slower cadence, an immediate standing check on
// resume, and change-feed dispatch that distinguishes command flips from
// ordinary updates.
type Monitor struct {
	api          API
	callbacks    Callbacks
	interval     time.Duration
	refreshEvery time.Duration
	sessionID    string
	clock        func() time.Time

	mu          sync.Mutex
	paused      bool
	lastStatus  string
	lastRefresh time.Time
	commanders  map[string]string // incident id -> last seen commander session
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithHeartbeatInterval overrides the heartbeat cadence.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithRefreshInterval overrides the credential rotation cadence.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Monitor) { m.refreshEvery = d }
}

// WithSession tells the monitor which session it is driving, so incident
// events can be routed by whether this session's command standing flipped.
// Without it every incident event triggers a full reload.
func WithSession(sessionID string) Option {
	return func(m *Monitor) { m.sessionID = sessionID }
}

// New returns a monitor for api. The credential is assumed fresh at
// construction; the first rotation happens one refresh interval later.
func New(api API, callbacks Callbacks, opts ...Option) *Monitor {
	m := &Monitor{
		api:          api,
		callbacks:    callbacks,
		interval:     defaultHeartbeatInterval,
		refreshEvery: defaultRefreshInterval,
		clock:        time.Now,
		lastStatus:   "ok",
		commanders:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastRefresh = m.clock()
	return m
}

// Run sends heartbeats and standing checks until ctx is cancelled. Heartbeats
// are suppressed while paused so hidden tabs age toward evictability instead
// of pinning their sessions alive.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// Pause stops heartbeats, e.g. when the tab loses visibility.
func (m *Monitor) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

// Resume restarts heartbeats, rotates the credential, and immediately
// re-checks standing, since the session may have been evicted or locked out
// while hidden and the access credential may have expired.
func (m *Monitor) Resume(ctx context.Context) {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	m.refreshCredentials(ctx)
	m.tick(ctx)
}

// OnEvent dispatches one change-feed event. An incident event triggers a full
// reload only when this session's command standing flipped (command gained,
// lost, or handed over); everything else is a light refresh.
func (m *Monitor) OnEvent(ev notify.Event) {
	if ev.Table != "incidents" {
		if m.callbacks.OnRefresh != nil {
			m.callbacks.OnRefresh(ev)
		}
		return
	}
	if m.sessionID == "" {
		// Session unknown: any incident change may carry a flip.
		if m.callbacks.OnReload != nil {
			m.callbacks.OnReload()
		}
		return
	}

	m.mu.Lock()
	prev, seen := m.commanders[ev.ID]
	m.commanders[ev.ID] = ev.CommanderSessionID
	m.mu.Unlock()

	minePrev := seen && prev == m.sessionID
	mineNow := ev.CommanderSessionID == m.sessionID
	if minePrev != mineNow {
		if m.callbacks.OnReload != nil {
			m.callbacks.OnReload()
		}
		return
	}
	if m.callbacks.OnRefresh != nil {
		m.callbacks.OnRefresh(ev)
	}
}

func (m *Monitor) tick(ctx context.Context) {
	m.mu.Lock()
	paused := m.paused
	refreshDue := m.clock().Sub(m.lastRefresh) >= m.refreshEvery
	m.mu.Unlock()
	if paused {
		return
	}
	if refreshDue {
		m.refreshCredentials(ctx)
	}

	if err := m.api.Heartbeat(ctx); err != nil {
		log.Printf("monitor: heartbeat failed: %v", err)
	}
	status, err := m.api.SessionStatus(ctx)
	if err != nil {
		log.Printf("monitor: standing check failed: %v", err)
		return
	}

	m.mu.Lock()
	changed := status != m.lastStatus
	m.lastStatus = status
	m.mu.Unlock()
	if changed && m.callbacks.OnStatus != nil {
		m.callbacks.OnStatus(status)
	}
}

func (m *Monitor) refreshCredentials(ctx context.Context) {
	if err := m.api.RefreshCredentials(ctx); err != nil {
		log.Printf("monitor: credential refresh failed: %v", err)
		return
	}
	m.mu.Lock()
	m.lastRefresh = m.clock()
	m.mu.Unlock()
}
