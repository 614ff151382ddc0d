package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sitepulse/pkg/observability"
)

type fakeExternal struct {
	configured bool
	report     *ExternalReport
	err        error
	panicMsg   string
	calls      int
}

func (f *fakeExternal) Configured() bool { return f.configured }

func (f *fakeExternal) FetchReport(_ context.Context, _ DateRange) (*ExternalReport, error) {
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.report, f.err
}

type failingLeads struct{}

func (failingLeads) Leads(context.Context, DateRange) ([]Lead, error) {
	return nil, errors.New("lead store offline")
}

func appendAt(log *EventLog, typ EventType, session string, at time.Time, data map[string]interface{}, rc RequestContext) {
	log.Append(Event{
		ID:        session + at.String() + string(typ),
		Type:      typ,
		Timestamp: at,
		SessionID: session,
		Data:      data,
	}, rc)
}

func assertBreakdownBounded(t *testing.T, name string, items []BreakdownItem) {
	t.Helper()
	var sum float64
	for _, it := range items {
		assert.GreaterOrEqual(t, it.Percentage, 0.0, name)
		sum += it.Percentage
	}
	assert.LessOrEqual(t, sum, 100.0, name)
}

func TestAggregator_LocalBounceRate(t *testing.T) {
	log := NewEventLog()
	rcA := RequestContext{UserAgent: "Mozilla/5.0 Chrome/120", SourceAddress: "10.0.0.1"}
	rcB := RequestContext{UserAgent: "Mozilla/5.0 (iPhone) Mobile Safari", SourceAddress: "10.0.0.2", Referrer: "https://www.google.com/"}

	appendAt(log, EventPageView, "a", testNow, map[string]interface{}{AttrPage: "/"}, rcA)
	appendAt(log, EventPageView, "a", testNow.Add(90*time.Second), map[string]interface{}{AttrPage: "/pricing"}, rcA)
	appendAt(log, EventPageView, "b", testNow.Add(time.Minute), map[string]interface{}{AttrPage: "/"}, rcB)

	agg := NewAggregator(log, nil, nil, nil, nil)
	res := agg.GetSummary(context.Background(), LastNDays(testNow, 7))

	assert.Equal(t, KindFallback, res.Kind)
	assert.Equal(t, SourceCustom, res.Source())

	s := res.Summary
	assert.EqualValues(t, 3, s.TotalPageViews)
	assert.EqualValues(t, 2, s.TotalSessions)
	assert.EqualValues(t, 2, s.UniqueVisitors)
	assert.Equal(t, 50.0, s.BounceRate)
	assert.Equal(t, 1.5, s.AvgPagesPerSession)
	assert.Equal(t, 45.0, s.AvgSessionDuration)

	require.Len(t, s.TopPages, 2)
	assert.Equal(t, PageStat{Path: "/", Views: 2, Visitors: 2}, s.TopPages[0])
	assert.Equal(t, PageStat{Path: "/pricing", Views: 1, Visitors: 1}, s.TopPages[1])

	assert.Len(t, s.DailyStats, 7)
	last := s.DailyStats[len(s.DailyStats)-1]
	assert.Equal(t, DailyStat{Date: "2026-03-10", PageViews: 3, Visitors: 2, Sessions: 2}, last)

	require.Len(t, s.HourlyStats, 24)
	assert.EqualValues(t, 3, s.HourlyStats[12].PageViews)

	assert.ElementsMatch(t, []BreakdownItem{
		{Name: TrafficDirect, Count: 1, Percentage: 50},
		{Name: TrafficOrganic, Count: 1, Percentage: 50},
	}, s.TrafficSources)
	assert.True(t, s.GeographyEstimated)
	assert.Equal(t, "2026-03-04", s.Period.StartDate)
	assert.Equal(t, "2026-03-10", s.Period.EndDate)
}

func TestAggregator_ZeroSessions(t *testing.T) {
	agg := NewAggregator(NewEventLog(), nil, nil, nil, nil)
	s := agg.GetSummary(context.Background(), LastNDays(testNow, 3)).Summary

	assert.Zero(t, s.BounceRate)
	assert.Zero(t, s.AvgPagesPerSession)
	assert.Zero(t, s.AvgSessionDuration)
	assert.Zero(t, s.Leads.ConversionRate)
	assert.Zero(t, s.Engagement.FormCompletionRate)
	assert.NotNil(t, s.TrafficSources)
	assert.NotNil(t, s.Geography)
	assert.Empty(t, s.Geography)
	assert.NotNil(t, s.Leads.ByProjectType)
	assert.Len(t, s.DailyStats, 3)
	assert.True(t, s.Empty())
}

func TestAggregator_PercentagesBounded(t *testing.T) {
	log := NewEventLog()
	uas := []string{
		"Mozilla/5.0 Chrome/120",
		"Mozilla/5.0 Firefox/121",
		"Mozilla/5.0 (iPhone) Mobile Safari",
	}
	refs := []string{"", "https://google.com/", "https://t.co/x", "https://news.example/"}
	for i := 0; i < 7; i++ {
		rc := RequestContext{UserAgent: uas[i%len(uas)], Referrer: refs[i%len(refs)], SourceAddress: "10.0.0." + string(rune('1'+i))}
		sid := "s" + string(rune('a'+i))
		appendAt(log, EventPageView, sid, testNow.Add(time.Duration(i)*time.Minute), map[string]interface{}{AttrPage: "/"}, rc)
		appendAt(log, EventSectionView, sid, testNow.Add(time.Duration(i)*time.Minute+time.Second), map[string]interface{}{AttrSection: []string{"hero", "work", "contact"}[i%3]}, rc)
	}
	appendAt(log, EventLeadFormSubmit, "sa", testNow.Add(time.Hour), map[string]interface{}{AttrProjectType: "web"}, RequestContext{})
	appendAt(log, EventLeadFormSubmit, "sb", testNow.Add(time.Hour), map[string]interface{}{}, RequestContext{})
	appendAt(log, EventLeadFormSubmit, "sc", testNow.Add(time.Hour), map[string]interface{}{AttrProjectType: "mobile"}, RequestContext{})

	s := NewAggregator(log, nil, nil, nil, nil).GetSummary(context.Background(), LastNDays(testNow, 1)).Summary

	assertBreakdownBounded(t, "traffic", s.TrafficSources)
	assertBreakdownBounded(t, "devices", s.Devices)
	assertBreakdownBounded(t, "browsers", s.Browsers)
	assertBreakdownBounded(t, "geography", s.Geography)
	assertBreakdownBounded(t, "sections", s.Engagement.SectionViews)
	assertBreakdownBounded(t, "leads", s.Leads.ByProjectType)

	assert.EqualValues(t, 3, s.Leads.Total)
	assert.Equal(t, 42.86, s.Leads.ConversionRate)
	assert.Contains(t, s.Leads.ByProjectType, BreakdownItem{Name: UnspecifiedProjectType, Count: 1, Percentage: 33.33})
	assert.EqualValues(t, 3, s.Engagement.FormSubmits)

	var geo int64
	for _, g := range s.Geography {
		geo += g.Count
	}
	assert.Equal(t, s.UniqueVisitors, geo)
}

func TestAggregator_ExternalPreferred(t *testing.T) {
	ext := &fakeExternal{configured: true, report: &ExternalReport{
		Core:           CoreMetrics{PageViews: 120, Visitors: 40, Sessions: 50, BounceRate: 38.456, AvgSessionDuration: 93.333},
		TrafficSources: []Count{{Name: TrafficOrganic, Count: 30}, {Name: TrafficDirect, Count: 20}},
		Devices:        []Count{{Name: DeviceDesktop, Count: 35}, {Name: DeviceMobile, Count: 15}},
		Daily:          []DailyStat{{Date: "2026-03-10", PageViews: 120, Visitors: 40, Sessions: 50}},
		Hourly:         []HourlyStat{{Hour: 9, PageViews: 70}, {Hour: 14, PageViews: 50}},
		TopPages:       []PageStat{{Path: "/", Views: 80, Visitors: 35}},
		EventCounts:    map[string]int64{"lead_form_view": 10, "lead_form_submit": 4},
	}}
	log := NewEventLog()
	appendAt(log, EventPageView, "local", testNow, nil, RequestContext{})

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	agg := NewAggregator(log, ext, nil, nil, metrics)
	res := agg.GetSummary(context.Background(), LastNDays(testNow, 3))

	assert.Equal(t, KindExternal, res.Kind)
	assert.Equal(t, SourceGA4, res.Source())

	s := res.Summary
	assert.EqualValues(t, 120, s.TotalPageViews, "local events must not leak into an external summary")
	assert.EqualValues(t, 50, s.TotalSessions)
	assert.Equal(t, 38.46, s.BounceRate)
	assert.Equal(t, 93.33, s.AvgSessionDuration)
	assert.Equal(t, 2.4, s.AvgPagesPerSession)
	assert.Len(t, s.DailyStats, 3)
	assert.Len(t, s.HourlyStats, 24)
	assert.EqualValues(t, 70, s.HourlyStats[9].PageViews)
	assert.Equal(t, 40.0, s.Engagement.FormCompletionRate)
	assert.Empty(t, s.Browsers)
	assert.False(t, s.GeographyEstimated)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SummariesTotal.WithLabelValues(SourceGA4)))
}

func TestAggregator_ExternalSubQueryFailuresLeaveSeriesEmpty(t *testing.T) {
	ext := &fakeExternal{configured: true, report: &ExternalReport{
		Core: CoreMetrics{PageViews: 10, Visitors: 5, Sessions: 6},
	}}
	res := NewAggregator(NewEventLog(), ext, nil, nil, nil).GetSummary(context.Background(), LastNDays(testNow, 7))

	assert.Equal(t, SourceGA4, res.Source())
	assert.NotNil(t, res.Summary.DailyStats)
	assert.Empty(t, res.Summary.DailyStats)
	assert.Empty(t, res.Summary.HourlyStats)
	assert.Empty(t, res.Summary.TrafficSources)
	assert.Empty(t, res.Summary.TopPages)
}

func TestAggregator_ExternalClampsOutOfRangeValues(t *testing.T) {
	ext := &fakeExternal{configured: true, report: &ExternalReport{
		Core: CoreMetrics{PageViews: -5, Visitors: 5, Sessions: 6, BounceRate: 140, AvgSessionDuration: -3},
	}}
	s := NewAggregator(NewEventLog(), ext, nil, nil, nil).GetSummary(context.Background(), LastNDays(testNow, 1)).Summary

	assert.Zero(t, s.TotalPageViews)
	assert.Equal(t, 100.0, s.BounceRate)
	assert.Zero(t, s.AvgSessionDuration)
}

func TestAggregator_FallsBack(t *testing.T) {
	tests := []struct {
		name     string
		ext      *fakeExternal
		wantCall bool
	}{
		{name: "not configured", ext: &fakeExternal{configured: false}, wantCall: false},
		{name: "fetch error", ext: &fakeExternal{configured: true, err: errors.New("upstream 503")}, wantCall: true},
		{name: "nil report", ext: &fakeExternal{configured: true}, wantCall: true},
		{name: "panic", ext: &fakeExternal{configured: true, panicMsg: "boom"}, wantCall: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := NewEventLog()
			appendAt(log, EventPageView, "s1", testNow, map[string]interface{}{AttrPage: "/"}, RequestContext{})

			res := NewAggregator(log, tt.ext, nil, nil, nil).GetSummary(context.Background(), LastNDays(testNow, 1))

			assert.Equal(t, SourceCustom, res.Source())
			assert.EqualValues(t, 1, res.Summary.TotalPageViews)
			assert.Equal(t, tt.wantCall, tt.ext.calls > 0)
		})
	}
}

func TestAggregator_LeadSourceFailureReportsZero(t *testing.T) {
	log := NewEventLog()
	appendAt(log, EventPageView, "s1", testNow, nil, RequestContext{})

	s := NewAggregator(log, nil, failingLeads{}, nil, nil).GetSummary(context.Background(), LastNDays(testNow, 1)).Summary

	assert.EqualValues(t, 1, s.TotalPageViews)
	assert.Zero(t, s.Leads.Total)
	assert.NotNil(t, s.Leads.ByProjectType)
}

type staticLeads []Lead

func (l staticLeads) Leads(context.Context, DateRange) ([]Lead, error) {
	return l, nil
}

func TestAggregator_ExternalLeadsIgnoreLocalEvents(t *testing.T) {
	ext := &fakeExternal{configured: true, report: &ExternalReport{
		Core:        CoreMetrics{PageViews: 100, Visitors: 40, Sessions: 50},
		EventCounts: map[string]int64{"lead_form_submit": 4},
	}}
	log := NewEventLog()
	for i := 0; i < 7; i++ {
		at := testNow.Add(-time.Duration(i) * time.Minute)
		appendAt(log, EventLeadFormSubmit, "local", at, map[string]interface{}{AttrProjectType: "villa"}, RequestContext{})
	}

	res := NewAggregator(log, ext, nil, nil, nil).GetSummary(context.Background(), LastNDays(testNow, 1))
	require.Equal(t, SourceGA4, res.Source())

	leads := res.Summary.Leads
	assert.EqualValues(t, 4, leads.Total)
	assert.Equal(t, res.Summary.Engagement.FormSubmits, leads.Total)
	assert.Equal(t, 8.0, leads.ConversionRate)
	assert.NotNil(t, leads.ByProjectType)
	assert.Empty(t, leads.ByProjectType)
}

func TestAggregator_InjectedLeadSourceServesBothPaths(t *testing.T) {
	src := staticLeads{
		{ID: "a", ProjectType: "villa", CreatedAt: testNow},
		{ID: "b", ProjectType: "villa", CreatedAt: testNow},
	}
	ext := &fakeExternal{configured: true, report: &ExternalReport{
		Core:        CoreMetrics{PageViews: 10, Visitors: 8, Sessions: 10},
		EventCounts: map[string]int64{"lead_form_submit": 9},
	}}

	s := NewAggregator(NewEventLog(), ext, src, nil, nil).GetSummary(context.Background(), LastNDays(testNow, 1)).Summary
	assert.EqualValues(t, 2, s.Leads.Total)
	assert.Equal(t, 20.0, s.Leads.ConversionRate)
	assert.Equal(t, []BreakdownItem{{Name: "villa", Count: 2, Percentage: 100}}, s.Leads.ByProjectType)

	log := NewEventLog()
	appendAt(log, EventPageView, "s1", testNow, nil, RequestContext{})
	s = NewAggregator(log, nil, src, nil, nil).GetSummary(context.Background(), LastNDays(testNow, 1)).Summary
	assert.EqualValues(t, 2, s.Leads.Total)
	assert.Equal(t, 100.0, s.Leads.ConversionRate)
}

func TestApplyDisplayFloors(t *testing.T) {
	empty := NewAggregator(NewEventLog(), nil, nil, nil, nil).GetSummary(context.Background(), LastNDays(testNow, 1))

	floored := ApplyDisplayFloors(empty, DefaultDisplayFloors())
	assert.True(t, floored.Summary.DisplaySmoothed)
	assert.EqualValues(t, 1, floored.Summary.TotalPageViews)
	assert.False(t, empty.Summary.DisplaySmoothed, "input must not be modified")

	external := Result{Kind: KindExternal}
	assert.Equal(t, external, ApplyDisplayFloors(external, DefaultDisplayFloors()))

	log := NewEventLog()
	appendAt(log, EventPageView, "s1", testNow, nil, RequestContext{})
	withData := NewAggregator(log, nil, nil, nil, nil).GetSummary(context.Background(), LastNDays(testNow, 1))
	assert.False(t, ApplyDisplayFloors(withData, DefaultDisplayFloors()).Summary.DisplaySmoothed)
}
