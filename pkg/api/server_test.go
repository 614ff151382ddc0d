package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sitepulse/pkg/analytics"
	"github.com/platinummonkey/sitepulse/pkg/config"
	"github.com/platinummonkey/sitepulse/pkg/consent"
	"github.com/platinummonkey/sitepulse/pkg/middleware"
	"github.com/platinummonkey/sitepulse/pkg/observability"
	"github.com/platinummonkey/sitepulse/pkg/session"
	"github.com/platinummonkey/sitepulse/pkg/tracker"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	server *Server
	log    *analytics.EventLog
	clock  *clockwork.FakeClock
	cfg    *config.Config
}

type stubExternal struct {
	report *analytics.ExternalReport
}

func (s stubExternal) Configured() bool { return true }

func (s stubExternal) FetchReport(context.Context, analytics.DateRange) (*analytics.ExternalReport, error) {
	return s.report, nil
}

func newTestEnv(t *testing.T, mutate func(*config.Config), external analytics.ExternalSource) *testEnv {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	clock := clockwork.NewFakeClockAt(testNow)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	log := analytics.NewEventLog()

	srv := NewServer(Dependencies{
		Config:     cfg,
		Ingestor:   analytics.NewIngestor(log, clock, nil, metrics),
		Aggregator: analytics.NewAggregator(log, external, nil, nil, metrics),
		Limiter:    middleware.NewLimiter(nil, clock, nil, metrics),
		Registry:   registry,
		Metrics:    metrics,
		Clock:      clock,
	})
	return &testEnv{server: srv, log: log, clock: clock, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh) AppleWebKit/537.36 Chrome/120.0 Safari/537.36")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

type summaryEnvelope struct {
	Success bool              `json:"success"`
	Source  string            `json:"source"`
	Data    analytics.Summary `json:"data"`
	Error   string            `json:"error"`
}

func decodeSummary(t *testing.T, rec *httptest.ResponseRecorder) summaryEnvelope {
	t.Helper()
	var env summaryEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestPostEvents_Accepts(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/events", `{"type":"page_view","sessionId":"s1","data":{"page":"/"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool   `json:"success"`
		EventID string `json:"eventId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.EventID)
	assert.Equal(t, 1, env.log.Len())

	sess, ok := env.log.Session("s1")
	require.True(t, ok)
	assert.Equal(t, "192.0.2.1", sess.SourceAddress)
	assert.Contains(t, sess.UserAgent, "Chrome")
}

func TestPostEvents_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "unknown type", body: `{"type":"unknown_type","sessionId":"s1"}`, code: http.StatusBadRequest},
		{name: "missing session", body: `{"type":"page_view"}`, code: http.StatusBadRequest},
		{name: "data not an object", body: `{"type":"page_view","sessionId":"s1","data":[1]}`, code: http.StatusBadRequest},
		{name: "not json", body: `type=page_view`, code: http.StatusBadRequest},
		{name: "array body", body: `[{"type":"page_view","sessionId":"s1"}]`, code: http.StatusBadRequest},
		{name: "trailing data", body: `{"type":"page_view","sessionId":"s1"} {}`, code: http.StatusBadRequest},
		{name: "too large", body: `{"type":"page_view","sessionId":"s1","data":{"x":"` + strings.Repeat("a", 70<<10) + `"}}`, code: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)

			rec := env.do(t, http.MethodPost, "/events", tt.body)
			assert.Equal(t, tt.code, rec.Code)

			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
			assert.Equal(t, 0, env.log.Len())
		})
	}
}

func TestGetAnalytics_LocalFallback(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	env.do(t, http.MethodPost, "/events", `{"type":"page_view","sessionId":"a","data":{"page":"/"}}`)
	env.clock.Advance(time.Minute)
	env.do(t, http.MethodPost, "/events", `{"type":"page_view","sessionId":"a","data":{"page":"/pricing"}}`)
	env.do(t, http.MethodPost, "/events", `{"type":"page_view","sessionId":"b","data":{"page":"/"}}`)

	rec := env.do(t, http.MethodGet, "/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeSummary(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "custom", resp.Source)
	assert.EqualValues(t, 3, resp.Data.TotalPageViews)
	assert.EqualValues(t, 2, resp.Data.TotalSessions)
	assert.Equal(t, 50.0, resp.Data.BounceRate)
	assert.Equal(t, "2026-02-09", resp.Data.Period.StartDate)
	assert.Equal(t, "2026-03-10", resp.Data.Period.EndDate)
	assert.Len(t, resp.Data.DailyStats, 30)
}

func TestGetAnalytics_EmptyBodyShape(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodGet, "/analytics?startDate=2026-03-01&endDate=2026-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	data, _ := raw["data"].(map[string]interface{})
	for _, key := range []string{"trafficSources", "devices", "browsers", "geography", "topPages", "dailyStats", "hourlyStats"} {
		assert.NotNil(t, data[key], key)
	}
	assert.Equal(t, 0.0, data["bounceRate"])
}

func TestGetAnalytics_DateRangeValidation(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		query string
		code  int
	}{
		{"?startDate=2026-03-01&endDate=2026-03-05", http.StatusOK},
		{"?startDate=2026-03-05", http.StatusOK},
		{"?endDate=2026-03-05", http.StatusOK},
		{"?startDate=2026-03-05&endDate=2026-03-01", http.StatusBadRequest},
		{"?startDate=03/01/2026", http.StatusBadRequest},
		{"?startDate=2020-01-01&endDate=2026-03-01", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/analytics"+tt.query, "")
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestGetAnalytics_ExternalSource(t *testing.T) {
	ext := stubExternal{report: &analytics.ExternalReport{
		Core:  analytics.CoreMetrics{PageViews: 500, Visitors: 120, Sessions: 200, BounceRate: 41.5, AvgSessionDuration: 75},
		Daily: nil,
	}}
	env := newTestEnv(t, nil, ext)
	env.do(t, http.MethodPost, "/events", `{"type":"page_view","sessionId":"a"}`)

	resp := decodeSummary(t, env.do(t, http.MethodGet, "/analytics", ""))
	assert.Equal(t, "ga4", resp.Source)
	assert.EqualValues(t, 500, resp.Data.TotalPageViews)
	assert.Equal(t, 2.5, resp.Data.AvgPagesPerSession)
	assert.Empty(t, resp.Data.DailyStats, "a failed daily sub-query stays empty")
}

func TestGetAnalytics_DisplayFloors(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Analytics.DisplayFloors = true }, nil)

	resp := decodeSummary(t, env.do(t, http.MethodGet, "/analytics", ""))
	assert.Equal(t, "custom", resp.Source)
	assert.True(t, resp.Data.DisplaySmoothed)
	assert.EqualValues(t, 1, resp.Data.TotalPageViews)
}

func TestRateLimit_Events(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit.EventsRequests = 2
		c.RateLimit.EventsWindow = time.Minute
	}, nil)
	body := `{"type":"page_view","sessionId":"s1"}`

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/events", body).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/events", body).Code)

	rec := env.do(t, http.MethodPost, "/events", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 2, env.log.Len(), "rejected requests are not processed")

	// analytics has its own budget
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/analytics", "").Code)

	env.clock.Advance(time.Minute)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/events", body).Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit.Enabled = false
		c.RateLimit.EventsRequests = 1
	}, nil)
	body := `{"type":"page_view","sessionId":"s1"}`

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/events", body).Code)
	}
}

func TestOperationalRoutes(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.do(t, http.MethodPost, "/events", `{"type":"page_view","sessionId":"s1"}`)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/readyz", "").Code)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sitepulse_events_ingested_total")

	assert.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodGet, "/events", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/nope", "").Code)
}

func TestHandler_MiddlewareChain(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.AllowedOrigins = []string{"https://example.com"} }, nil)

	req := httptest.NewRequest(http.MethodOptions, "/events", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestTrackerEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	httpSrv := httptest.NewServer(env.server.Handler())
	defer httpSrv.Close()

	storage := consent.NewMemoryStorage()
	mgr := consent.NewManager(storage, consent.NewBus(), nil)
	allocator := session.NewAllocator(storage)
	tr := tracker.New(mgr, allocator, tracker.NewHTTPSender(httpSrv.URL, httpSrv.Client()), tracker.Config{})

	allocator.ID()
	assert.False(t, tr.TrackPageView("/"), "no consent yet")
	mgr.Accept()
	require.True(t, tr.TrackPageView("/"))
	require.True(t, tr.TrackFormSubmit("web"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))

	assert.Equal(t, 2, env.log.Len())
	id, _ := allocator.Current()
	sess, ok := env.log.Session(id)
	require.True(t, ok)
	assert.Equal(t, 1, sess.PageViews)

	resp := decodeSummary(t, env.do(t, http.MethodGet, "/analytics", ""))
	assert.EqualValues(t, 1, resp.Data.Leads.Total)
}
