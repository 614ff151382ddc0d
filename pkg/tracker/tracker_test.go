package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sitepulse/pkg/analytics"
	"github.com/platinummonkey/sitepulse/pkg/consent"
	"github.com/platinummonkey/sitepulse/pkg/session"
)

type recordingSender struct {
	mu       sync.Mutex
	payloads []Payload
	err      error
}

func (s *recordingSender) Send(_ context.Context, p Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return s.err
}

func (s *recordingSender) sent() []Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Payload(nil), s.payloads...)
}

type fixture struct {
	tracker   *Tracker
	sender    *recordingSender
	consent   *consent.Manager
	allocator *session.Allocator
	clock     *clockwork.FakeClock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	storage := consent.NewMemoryStorage()
	clock := clockwork.NewFakeClock()
	mgr := consent.NewManager(storage, consent.NewBus(), clock)
	allocator := session.NewAllocator(storage)
	sender := &recordingSender{}

	cfg.Clock = clock
	if cfg.Logger == nil {
		logger, _ := logtest.NewNullLogger()
		cfg.Logger = logger
	}
	return &fixture{
		tracker:   New(mgr, allocator, sender, cfg),
		sender:    sender,
		consent:   mgr,
		allocator: allocator,
		clock:     clock,
	}
}

func (f *fixture) drain(t *testing.T) []Payload {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.tracker.Wait(ctx))
	return f.sender.sent()
}

func TestTracker_RequiresSessionAndConsent(t *testing.T) {
	f := newFixture(t, Config{})

	assert.False(t, f.tracker.TrackPageView("/"), "no session, no consent")

	f.allocator.ID()
	assert.False(t, f.tracker.TrackPageView("/"), "consent still unset")

	f.consent.Decline()
	assert.False(t, f.tracker.TrackPageView("/"))

	f.consent.Accept()
	assert.True(t, f.tracker.TrackPageView("/"))

	sent := f.drain(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "page_view", sent[0].Type)
	id, _ := f.allocator.Current()
	assert.Equal(t, id, sent[0].SessionID)
}

func TestTracker_NoSessionEvenWithConsent(t *testing.T) {
	f := newFixture(t, Config{})
	f.consent.Accept()

	assert.False(t, f.tracker.TrackButtonClick("cta"))
	assert.Empty(t, f.drain(t))
}

func TestTracker_DebounceWindow(t *testing.T) {
	f := newFixture(t, Config{})
	f.allocator.ID()
	f.consent.Accept()

	assert.True(t, f.tracker.TrackSectionView("hero"))
	assert.False(t, f.tracker.TrackSectionView("hero"), "same key inside window")
	assert.True(t, f.tracker.TrackSectionView("services"), "different scope")
	assert.True(t, f.tracker.TrackButtonClick("hero"), "different type with the same scope string")

	f.clock.Advance(DefaultDebounceWindow - time.Millisecond)
	assert.False(t, f.tracker.TrackSectionView("hero"))

	f.clock.Advance(time.Millisecond)
	assert.True(t, f.tracker.TrackSectionView("hero"))

	assert.Len(t, f.drain(t), 4)
}

func TestTracker_Enrichment(t *testing.T) {
	f := newFixture(t, Config{
		Viewport: func() (int, int) { return 1280, 720 },
		Referrer: func() string { return "https://www.google.com/" },
	})
	f.allocator.ID()
	f.consent.Accept()

	require.True(t, f.tracker.TrackFormSubmit("web-app"))
	require.True(t, f.tracker.Track(analytics.EventPageView, map[string]interface{}{
		analytics.AttrPage:     "/",
		analytics.AttrReferrer: "https://partner.example/",
	}))

	sent := f.drain(t)
	require.Len(t, sent, 2)

	byType := map[string]Payload{}
	for _, p := range sent {
		byType[p.Type] = p
	}
	submit := byType["lead_form_submit"]
	assert.Equal(t, "1280x720", submit.Data[analytics.AttrViewport])
	assert.Equal(t, "https://www.google.com/", submit.Data[analytics.AttrReferrer])
	assert.Equal(t, "web-app", submit.Data[analytics.AttrProjectType])

	assert.Equal(t, "https://partner.example/", byType["page_view"].Data[analytics.AttrReferrer])
}

func TestTracker_SendFailureIsLoggedAndSwallowed(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	f := newFixture(t, Config{Logger: logger})
	f.sender.err = errors.New("connection refused")
	f.allocator.ID()
	f.consent.Accept()

	assert.True(t, f.tracker.TrackFormView())
	f.drain(t)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "lead_form_view", entry.Data["type"])
}

func TestTracker_DeclineStopsTracking(t *testing.T) {
	f := newFixture(t, Config{})
	f.allocator.ID()
	f.consent.Accept()
	require.True(t, f.tracker.TrackPageView("/"))

	f.consent.Decline()
	assert.False(t, f.tracker.TrackPageView("/about"))
	assert.Len(t, f.drain(t), 1)
}
