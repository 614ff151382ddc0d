package consent

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Value is the user's consent decision
type Value string

const (
	Unset    Value = ""
	Accepted Value = "accepted"
	Declined Value = "declined"
)

func (v Value) String() string {
	if v == Unset {
		return "unset"
	}
	return string(v)
}

// State is the current decision and when it was made
type State struct {
	Value     Value
	DecidedAt time.Time
}

// Storage keys owned by the consent manager
const (
	KeyConsent     = "cookie_consent"
	KeyConsentDate = "cookie_consent_date"
)

// DefaultPromptDelay keeps the prompt from shifting layout during first paint
const DefaultPromptDelay = time.Second

// Manager owns the consent state machine:
//
//	unset -> accepted | declined
//	accepted <-> declined
//	accepted | declined -> unset (Reset, ClearAll)
//
// Every transition is persisted and published on the bus.
type Manager struct {
	storage     Storage
	bus         *Bus
	clock       clockwork.Clock
	promptDelay time.Duration

	mu            sync.Mutex
	state         State
	promptVisible bool
	promptTimer   clockwork.Timer
}

// NewManager restores any stored decision. clock may be nil.
func NewManager(storage Storage, bus *Bus, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if bus == nil {
		bus = NewBus()
	}
	m := &Manager{
		storage:     storage,
		bus:         bus,
		clock:       clock,
		promptDelay: DefaultPromptDelay,
	}
	m.state = m.load()
	return m
}

// SetPromptDelay changes the delay before the prompt is shown. Call before Init.
func (m *Manager) SetPromptDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptDelay = d
}

// Bus returns the bus transitions are published on
func (m *Manager) Bus() *Bus {
	return m.bus
}

func (m *Manager) load() State {
	v, _ := m.storage.Get(ScopePersistent, KeyConsent)
	switch Value(v) {
	case Accepted, Declined:
	default:
		return State{}
	}
	st := State{Value: Value(v)}
	if raw, ok := m.storage.Get(ScopePersistent, KeyConsentDate); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			st.DecidedAt = t
		}
	}
	return st
}

// Init runs the page-load logic. A Do Not Track signal forces a decline without
// prompting. Otherwise an undecided visitor sees the prompt after the delay.
func (m *Manager) Init(doNotTrack bool) {
	if doNotTrack {
		if m.State().Value != Declined {
			m.Decline()
			return
		}
		purgeTracking(m.storage)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Value != Unset || m.promptTimer != nil {
		return
	}
	m.armPromptLocked()
}

// armPromptLocked shows the prompt once the delay elapses. Callers hold m.mu.
func (m *Manager) armPromptLocked() {
	var timer clockwork.Timer
	timer = m.clock.AfterFunc(m.promptDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state.Value == Unset && m.promptTimer == timer {
			m.promptVisible = true
		}
	})
	m.promptTimer = timer
}

// State returns the current consent state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Accepted reports whether tracking is allowed
func (m *Manager) Accepted() bool {
	return m.State().Value == Accepted
}

// PromptVisible reports whether the consent prompt is showing
func (m *Manager) PromptVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promptVisible
}

// Accept grants consent
func (m *Manager) Accept() {
	m.transition(Accepted)
}

// Decline refuses consent and purges vendor tracking keys
func (m *Manager) Decline() {
	m.transition(Declined)
	purgeTracking(m.storage)
}

// Reset returns to the undecided state. The prompt reappears after the delay.
func (m *Manager) Reset() {
	m.transition(Unset)
}

// ClearAll resets consent and purges the session area, the consent keys and,
// best effort, the vendor tracking cookies.
func (m *Manager) ClearAll() {
	m.transition(Unset)
	m.storage.Clear(ScopeSession)
	purgeTracking(m.storage)
}

func (m *Manager) transition(to Value) {
	m.mu.Lock()
	from := m.state.Value
	if from == to {
		m.mu.Unlock()
		return
	}

	now := m.clock.Now()
	if to == Unset {
		m.state = State{}
		m.storage.Delete(ScopePersistent, KeyConsent)
		m.storage.Delete(ScopePersistent, KeyConsentDate)
	} else {
		m.state = State{Value: to, DecidedAt: now}
		m.storage.Set(ScopePersistent, KeyConsent, string(to))
		m.storage.Set(ScopePersistent, KeyConsentDate, now.UTC().Format(time.RFC3339))
	}

	m.promptVisible = false
	if m.promptTimer != nil {
		m.promptTimer.Stop()
		m.promptTimer = nil
	}
	if to == Unset {
		m.armPromptLocked()
	}
	m.mu.Unlock()

	m.bus.Publish(Change{From: from, To: to, At: now})
}
