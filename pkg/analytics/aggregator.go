package analytics

import (
	"context"
	"time"

	"github.com/platinummonkey/sitepulse/pkg/observability"
)

// Aggregator builds dashboard summaries. The external source is preferred
// when configured; any failure there falls back to the local event log.
type Aggregator struct {
	log      *EventLog
	external ExternalSource
	leads    LeadSource
	local    LeadSource
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewAggregator creates an aggregator. external and leads may be nil. A
// non-nil lead source serves both paths; without one, leads come from the
// same source as the rest of the summary.
func NewAggregator(log *EventLog, external ExternalSource, leads LeadSource, logger *observability.Logger, metrics *observability.Metrics) *Aggregator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Aggregator{
		log:      log,
		external: external,
		leads:    leads,
		local:    NewEventLeadSource(log),
		logger:   logger.Named("aggregator"),
		metrics:  metrics,
	}
}

// GetSummary returns the summary for r. It never fails: the fallback path
// always produces a result, possibly with zero counts.
func (a *Aggregator) GetSummary(ctx context.Context, r DateRange) Result {
	logger := observability.WithTraceContext(ctx, a.logger).WithField("range", r.String())

	res, ok := a.externalSummary(ctx, r, logger)
	if !ok {
		res = Result{
			Kind:    KindFallback,
			Summary: computeLocal(a.log.Events(r), a.log.Sessions(r), r),
		}
	}

	switch {
	case a.leads != nil:
		res.Summary.Leads = a.leadMetricsFrom(ctx, a.leads, r, res.Summary.TotalSessions, logger)
	case res.Kind == KindFallback:
		res.Summary.Leads = a.leadMetricsFrom(ctx, a.local, r, res.Summary.TotalSessions, logger)
	}
	res.Summary.normalize()

	a.metrics.RecordSummary(res.Source())
	return res
}

func (a *Aggregator) leadMetricsFrom(ctx context.Context, src LeadSource, r DateRange, sessions int64, logger *observability.Logger) LeadMetrics {
	leads, err := src.Leads(ctx, r)
	if err != nil {
		logger.WithError(err).Warn("lead source failed, reporting zero leads")
		leads = nil
	}
	return leadMetrics(leads, sessions)
}

func (a *Aggregator) externalSummary(ctx context.Context, r DateRange, logger *observability.Logger) (Result, bool) {
	if a.external == nil || !a.external.Configured() {
		return Result{}, false
	}

	start := time.Now()
	rep, err := a.fetchExternal(ctx, r)
	if err != nil {
		logger.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).
			Warn("external analytics unavailable, using local data")
		return Result{}, false
	}
	if rep == nil {
		logger.Warn("external analytics returned no report, using local data")
		return Result{}, false
	}

	return Result{Kind: KindExternal, Summary: buildExternalSummary(rep, r)}, true
}

// fetchExternal turns a panic inside the source into an error
func (a *Aggregator) fetchExternal(ctx context.Context, r DateRange) (rep *ExternalReport, err error) {
	defer observability.RecoverError(a.logger, "external fetch", &err)
	return a.external.FetchReport(ctx, r)
}

// buildExternalSummary maps an external report onto the summary shape.
// Breakdowns whose sub-query failed stay empty; series are zero-filled only
// when their sub-query returned data.
func buildExternalSummary(rep *ExternalReport, r DateRange) Summary {
	core := rep.Core
	pageViews := nonNegative(core.PageViews)
	sessions := nonNegative(core.Sessions)

	duration := round2(core.AvgSessionDuration)
	if duration < 0 {
		duration = 0
	}

	formViews := nonNegative(rep.EventCounts[string(EventLeadFormView)])
	formSubmits := nonNegative(rep.EventCounts[string(EventLeadFormSubmit)])

	s := Summary{
		TotalPageViews:     pageViews,
		UniqueVisitors:     nonNegative(core.Visitors),
		TotalSessions:      sessions,
		BounceRate:         clampPercent(round2(core.BounceRate)),
		AvgSessionDuration: duration,
		AvgPagesPerSession: ratio(pageViews, sessions),
		TrafficSources:     breakdown(rep.TrafficSources),
		Devices:            breakdown(rep.Devices),
		Browsers:           breakdown(rep.Browsers),
		Geography:          breakdown(rep.Geography),
		DailyStats:         fillDaily(r, rep.Daily),
		HourlyStats:        fillHourly(rep.Hourly),
		TopPages:           externalTopPages(rep.TopPages),
		Engagement: Engagement{
			FormViews:          formViews,
			FormSubmits:        formSubmits,
			FormCompletionRate: ratePercent(formSubmits, formViews),
		},
		// the external source counts submits but carries no project type
		Leads: LeadMetrics{
			Total:          formSubmits,
			ConversionRate: ratePercent(formSubmits, sessions),
		},
		Period: Period{StartDate: r.StartDate(), EndDate: r.EndDate()},
	}
	s.normalize()
	return s
}

func fillDaily(r DateRange, stats []DailyStat) []DailyStat {
	if len(stats) == 0 {
		return []DailyStat{}
	}
	byDate := make(map[string]DailyStat, len(stats))
	for _, st := range stats {
		cur := byDate[st.Date]
		cur.PageViews += nonNegative(st.PageViews)
		cur.Visitors += nonNegative(st.Visitors)
		cur.Sessions += nonNegative(st.Sessions)
		byDate[st.Date] = cur
	}

	dates := r.Dates()
	out := make([]DailyStat, 0, len(dates))
	for _, d := range dates {
		key := d.Format(DateLayout)
		st := byDate[key]
		st.Date = key
		out = append(out, st)
	}
	return out
}

func fillHourly(stats []HourlyStat) []HourlyStat {
	if len(stats) == 0 {
		return []HourlyStat{}
	}
	var buckets [24]int64
	for _, st := range stats {
		if st.Hour < 0 || st.Hour > 23 {
			continue
		}
		buckets[st.Hour] += nonNegative(st.PageViews)
	}
	out := make([]HourlyStat, 24)
	for h := range out {
		out[h] = HourlyStat{Hour: h, PageViews: buckets[h]}
	}
	return out
}

func externalTopPages(pages []PageStat) []PageStat {
	out := make([]PageStat, 0, len(pages))
	for _, p := range pages {
		if p.Path == "" {
			continue
		}
		out = append(out, PageStat{
			Path:     p.Path,
			Views:    nonNegative(p.Views),
			Visitors: nonNegative(p.Visitors),
		})
		if len(out) == topPagesLimit {
			break
		}
	}
	return out
}
