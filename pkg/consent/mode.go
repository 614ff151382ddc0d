package consent

import (
	"sync"
	"time"
)

// Signal is a vendor consent-mode value
type Signal string

const (
	Granted Signal = "granted"
	Denied  Signal = "denied"
)

// Mode is the vendor consent-mode payload
type Mode struct {
	AdStorage         Signal `json:"ad_storage"`
	AnalyticsStorage  Signal `json:"analytics_storage"`
	AdUserData        Signal `json:"ad_user_data"`
	AdPersonalization Signal `json:"ad_personalization"`
}

// ModeFor maps a consent decision to a consent-mode payload.
// Anything but an explicit accept is denied.
func ModeFor(v Value) Mode {
	s := Denied
	if v == Accepted {
		s = Granted
	}
	return Mode{
		AdStorage:         s,
		AnalyticsStorage:  s,
		AdUserData:        s,
		AdPersonalization: s,
	}
}

// Consent-mode commands
const (
	CommandDefault = "default"
	CommandUpdate  = "update"
)

// VendorSignal receives consent-mode commands
type VendorSignal interface {
	Consent(command string, mode Mode)
}

// DataLayerEntry is one recorded gtag consent command
type DataLayerEntry struct {
	Command string    `json:"command"`
	Mode    Mode      `json:"mode"`
	At      time.Time `json:"at"`
}

// DataLayer records consent-mode commands in order, like the gtag dataLayer
type DataLayer struct {
	mu      sync.Mutex
	now     func() time.Time
	entries []DataLayerEntry
}

// NewDataLayer creates an empty data layer
func NewDataLayer() *DataLayer {
	return &DataLayer{now: time.Now}
}

func (d *DataLayer) Consent(command string, mode Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, DataLayerEntry{Command: command, Mode: mode, At: d.now()})
}

// Entries returns a copy of the recorded commands
func (d *DataLayer) Entries() []DataLayerEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DataLayerEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Current returns the effective mode after all recorded commands
func (d *DataLayer) Current() (Mode, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.entries) == 0 {
		return Mode{}, false
	}
	return d.entries[len(d.entries)-1].Mode, true
}

// ModeUpdater keeps a VendorSignal in step with the consent state
type ModeUpdater struct {
	signal      VendorSignal
	unsubscribe func()
}

// NewModeUpdater sends the all-denied default, upgrades it when consent was
// already given, and then forwards every change published on the manager's bus.
func NewModeUpdater(signal VendorSignal, m *Manager) *ModeUpdater {
	u := &ModeUpdater{signal: signal}

	signal.Consent(CommandDefault, ModeFor(Unset))
	if m.Accepted() {
		signal.Consent(CommandUpdate, ModeFor(Accepted))
	}

	u.unsubscribe = m.Bus().Subscribe(func(c Change) {
		u.signal.Consent(CommandUpdate, ModeFor(c.To))
	})
	return u
}

// Close stops forwarding changes
func (u *ModeUpdater) Close() {
	if u.unsubscribe != nil {
		u.unsubscribe()
	}
}
