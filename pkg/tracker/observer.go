package tracker

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDwell is how long a section must stay visible before it counts
const DefaultDwell = 500 * time.Millisecond

// SectionTracker receives qualified section views
type SectionTracker interface {
	TrackSectionView(section string) bool
}

type pendingView struct {
	timer clockwork.Timer
}

// SectionObserver reports each section at most once per page lifetime, after
// it stayed visible for the dwell time.
type SectionObserver struct {
	tracker SectionTracker
	clock   clockwork.Clock
	dwell   time.Duration

	mu      sync.Mutex
	pending map[string]*pendingView
	fired   map[string]bool
}

// NewSectionObserver creates an observer. clock may be nil; dwell <= 0 uses DefaultDwell.
func NewSectionObserver(tracker SectionTracker, clock clockwork.Clock, dwell time.Duration) *SectionObserver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if dwell <= 0 {
		dwell = DefaultDwell
	}
	return &SectionObserver{
		tracker: tracker,
		clock:   clock,
		dwell:   dwell,
		pending: make(map[string]*pendingView),
		fired:   make(map[string]bool),
	}
}

// Visible starts the dwell timer for section
func (o *SectionObserver) Visible(section string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fired[section] || o.pending[section] != nil {
		return
	}
	p := &pendingView{}
	o.pending[section] = p
	p.timer = o.clock.AfterFunc(o.dwell, func() { o.fire(section, p) })
}

// Hidden cancels a pending dwell timer for section
func (o *SectionObserver) Hidden(section string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if p := o.pending[section]; p != nil {
		p.timer.Stop()
		delete(o.pending, section)
	}
}

// Reset cancels pending timers and re-arms every section, e.g. on navigation
func (o *SectionObserver) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, p := range o.pending {
		p.timer.Stop()
	}
	o.pending = make(map[string]*pendingView)
	o.fired = make(map[string]bool)
}

// Fired reports whether section has already been reported
func (o *SectionObserver) Fired(section string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fired[section]
}

func (o *SectionObserver) fire(section string, p *pendingView) {
	o.mu.Lock()
	// a stale timer lost the race with Hidden or Reset
	if o.pending[section] != p {
		o.mu.Unlock()
		return
	}
	delete(o.pending, section)
	o.fired[section] = true
	o.mu.Unlock()

	o.tracker.TrackSectionView(section)
}
