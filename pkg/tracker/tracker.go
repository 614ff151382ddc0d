package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/sitepulse/pkg/analytics"
	"github.com/platinummonkey/sitepulse/pkg/async"
)

// DefaultDebounceWindow suppresses repeats of the same event and scope
const DefaultDebounceWindow = 5 * time.Second

// DefaultSendTimeout bounds a single dispatch
const DefaultSendTimeout = 10 * time.Second

// ConsentChecker reports the visitor's analytics consent
type ConsentChecker interface {
	Accepted() bool
}

// SessionSource returns the current session id without creating one
type SessionSource interface {
	Current() (string, bool)
}

// Config tunes a Tracker. Zero values take defaults.
type Config struct {
	DebounceWindow time.Duration
	SendTimeout    time.Duration
	// Viewport returns the window size added to every event
	Viewport func() (width, height int)
	// Referrer returns the document referrer added to every event
	Referrer func() string
	Clock    clockwork.Clock
	Logger   logrus.FieldLogger
}

type dedupKey struct {
	Type  analytics.EventType
	Scope string
}

// Tracker emits consent-gated, deduplicated events
type Tracker struct {
	consent  ConsentChecker
	sessions SessionSource
	sender   Sender
	cfg      Config

	mu   sync.Mutex
	last map[dedupKey]time.Time

	inflight async.InFlight
}

// New creates a tracker
func New(consent ConsentChecker, sessions SessionSource, sender Sender, cfg Config) *Tracker {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Tracker{
		consent:  consent,
		sessions: sessions,
		sender:   sender,
		cfg:      cfg,
		last:     make(map[dedupKey]time.Time),
	}
}

// Track emits an event unless the session is missing, consent is not
// accepted, or the same type and scope were tracked inside the debounce
// window. It reports whether the event was dispatched.
func (t *Tracker) Track(eventType analytics.EventType, attrs map[string]interface{}) bool {
	sessionID, ok := t.sessions.Current()
	if !ok || !t.consent.Accepted() {
		return false
	}

	key := dedupKey{Type: eventType, Scope: scopeOf(eventType, attrs)}
	now := t.cfg.Clock.Now()

	t.mu.Lock()
	if prev, seen := t.last[key]; seen && now.Sub(prev) < t.cfg.DebounceWindow {
		t.mu.Unlock()
		t.cfg.Logger.WithFields(logrus.Fields{
			"type":  eventType,
			"scope": key.Scope,
		}).Debug("duplicate event suppressed")
		return false
	}
	t.last[key] = now
	t.mu.Unlock()

	payload := Payload{
		Type:      string(eventType),
		SessionID: sessionID,
		Data:      t.enrich(attrs),
	}

	t.inflight.Go(context.Background(), t.cfg.SendTimeout, "track "+string(eventType), func(ctx context.Context) error {
		if err := t.sender.Send(ctx, payload); err != nil {
			t.cfg.Logger.WithError(err).WithField("type", payload.Type).Warn("failed to send tracking event")
		}
		return nil
	})
	return true
}

// Wait drains in-flight dispatches
func (t *Tracker) Wait(ctx context.Context) error {
	return t.inflight.Wait(ctx)
}

func (t *Tracker) TrackPageView(page string) bool {
	return t.Track(analytics.EventPageView, map[string]interface{}{analytics.AttrPage: page})
}

func (t *Tracker) TrackSectionView(section string) bool {
	return t.Track(analytics.EventSectionView, map[string]interface{}{analytics.AttrSection: section})
}

func (t *Tracker) TrackButtonClick(button string) bool {
	return t.Track(analytics.EventButtonClick, map[string]interface{}{analytics.AttrButton: button})
}

func (t *Tracker) TrackFormView() bool {
	return t.Track(analytics.EventLeadFormView, nil)
}

func (t *Tracker) TrackFormSubmit(projectType string) bool {
	return t.Track(analytics.EventLeadFormSubmit, map[string]interface{}{analytics.AttrProjectType: projectType})
}

// enrich copies attrs and adds viewport and referrer when not already set
func (t *Tracker) enrich(attrs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs)+2)
	for k, v := range attrs {
		out[k] = v
	}
	if t.cfg.Viewport != nil {
		if _, set := out[analytics.AttrViewport]; !set {
			w, h := t.cfg.Viewport()
			out[analytics.AttrViewport] = fmt.Sprintf("%dx%d", w, h)
		}
	}
	if t.cfg.Referrer != nil {
		if _, set := out[analytics.AttrReferrer]; !set {
			if ref := t.cfg.Referrer(); ref != "" {
				out[analytics.AttrReferrer] = ref
			}
		}
	}
	return out
}

func scopeOf(eventType analytics.EventType, attrs map[string]interface{}) string {
	attr := analytics.AttrPage
	switch eventType {
	case analytics.EventSectionView:
		attr = analytics.AttrSection
	case analytics.EventButtonClick:
		attr = analytics.AttrButton
	}
	s, _ := attrs[attr].(string)
	return s
}
