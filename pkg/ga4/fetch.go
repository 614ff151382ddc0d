package ga4

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/sitepulse/pkg/analytics"
	"github.com/platinummonkey/sitepulse/pkg/observability"
)

// Sub-query kinds, used as cache key prefixes and metric labels
const (
	KindCore      = "core"
	KindDevices   = "devices"
	KindBrowsers  = "browsers"
	KindGeography = "geography"
	KindTraffic   = "traffic"
	KindPages     = "pages"
	KindDaily     = "daily"
	KindHourly    = "hourly"
	KindEvents    = "events"
)

const (
	topPagesLimit  = "10"
	geographyLimit = "10"
	breakdownLimit = "25"
	gaDateLayout   = "20060102"
)

// FetchReport runs every sub-query for r concurrently. Only a core failure is
// returned, wrapped in ErrUnavailable; the other sub-queries leave their
// field empty.
func (c *Client) FetchReport(ctx context.Context, r analytics.DateRange) (*analytics.ExternalReport, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	logger := observability.WithTraceContext(ctx, c.logger).WithField("range", r.String())
	dr := []dateRange{{StartDate: r.StartDate(), EndDate: r.EndDate()}}
	rangeKey := r.StartDate() + "|" + r.EndDate()
	rep := &analytics.ExternalReport{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		core, err := c.fetchCore(gctx, dr, rangeKey)
		if err != nil {
			return err
		}
		rep.Core = core
		return nil
	})

	optional := func(kind string, fn func(context.Context) error) {
		g.Go(func() error {
			if err := fn(gctx); err != nil {
				logger.WithError(err).WithField("query", kind).Warn("ga4 sub-query failed, leaving it empty")
			}
			return nil
		})
	}

	optional(KindDevices, func(ctx context.Context) (err error) {
		rep.Devices, err = c.fetchCounts(ctx, KindDevices, "deviceCategory", dr, rangeKey, analytics.NormalizeDevice)
		return err
	})
	optional(KindBrowsers, func(ctx context.Context) (err error) {
		rep.Browsers, err = c.fetchCounts(ctx, KindBrowsers, "browser", dr, rangeKey, notSet("Unknown"))
		return err
	})
	optional(KindGeography, func(ctx context.Context) (err error) {
		rep.Geography, err = c.fetchGeography(ctx, dr, rangeKey)
		return err
	})
	optional(KindTraffic, func(ctx context.Context) (err error) {
		rep.TrafficSources, err = c.fetchTraffic(ctx, dr, rangeKey)
		return err
	})
	optional(KindPages, func(ctx context.Context) (err error) {
		rep.TopPages, err = c.fetchPages(ctx, dr, rangeKey)
		return err
	})
	optional(KindDaily, func(ctx context.Context) (err error) {
		rep.Daily, err = c.fetchDaily(ctx, dr, rangeKey)
		return err
	})
	optional(KindHourly, func(ctx context.Context) (err error) {
		rep.Hourly, err = c.fetchHourly(ctx, dr, rangeKey)
		return err
	})
	optional(KindEvents, func(ctx context.Context) (err error) {
		rep.EventCounts, err = c.fetchEventCounts(ctx, dr, rangeKey)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rep, nil
}

func (c *Client) fetchCore(ctx context.Context, dr []dateRange, rangeKey string) (analytics.CoreMetrics, error) {
	resp, err := c.runReport(ctx, KindCore, rangeKey, reportRequest{
		DateRanges: dr,
		Metrics:    metricList("screenPageViews", "totalUsers", "sessions", "bounceRate", "averageSessionDuration"),
	})
	if err != nil {
		return analytics.CoreMetrics{}, err
	}
	if len(resp.Rows) == 0 {
		return analytics.CoreMetrics{}, nil
	}

	row := resp.Rows[0]
	return analytics.CoreMetrics{
		PageViews:          row.count(0),
		Visitors:           row.count(1),
		Sessions:           row.count(2),
		BounceRate:         row.number(3) * 100,
		AvgSessionDuration: row.number(4),
	}, nil
}

// fetchCounts reads a single dimension against sessions
func (c *Client) fetchCounts(ctx context.Context, kind, dim string, dr []dateRange, rangeKey string, name func(string) string) ([]analytics.Count, error) {
	resp, err := c.runReport(ctx, kind, rangeKey, reportRequest{
		DateRanges: dr,
		Dimensions: dimensionList(dim),
		Metrics:    metricList("sessions"),
		OrderBys:   byMetricDesc("sessions"),
		Limit:      breakdownLimit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]analytics.Count, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		out = append(out, analytics.Count{Name: name(row.dim(0)), Count: row.count(0)})
	}
	return out, nil
}

func (c *Client) fetchGeography(ctx context.Context, dr []dateRange, rangeKey string) ([]analytics.Count, error) {
	resp, err := c.runReport(ctx, KindGeography, rangeKey, reportRequest{
		DateRanges: dr,
		Dimensions: dimensionList("country"),
		Metrics:    metricList("totalUsers"),
		OrderBys:   byMetricDesc("totalUsers"),
		Limit:      geographyLimit,
	})
	if err != nil {
		return nil, err
	}

	name := notSet("Unknown")
	out := make([]analytics.Count, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		out = append(out, analytics.Count{Name: name(row.dim(0)), Count: row.count(0)})
	}
	return out, nil
}

func (c *Client) fetchTraffic(ctx context.Context, dr []dateRange, rangeKey string) ([]analytics.Count, error) {
	resp, err := c.runReport(ctx, KindTraffic, rangeKey, reportRequest{
		DateRanges: dr,
		Dimensions: dimensionList("sessionSource", "sessionMedium"),
		Metrics:    metricList("sessions"),
		OrderBys:   byMetricDesc("sessions"),
		Limit:      "100",
	})
	if err != nil {
		return nil, err
	}

	out := make([]analytics.Count, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		out = append(out, analytics.Count{
			Name:  analytics.NormalizeTrafficSource(row.dim(0), row.dim(1)),
			Count: row.count(0),
		})
	}
	return out, nil
}

func (c *Client) fetchPages(ctx context.Context, dr []dateRange, rangeKey string) ([]analytics.PageStat, error) {
	resp, err := c.runReport(ctx, KindPages, rangeKey, reportRequest{
		DateRanges: dr,
		Dimensions: dimensionList("pagePath"),
		Metrics:    metricList("screenPageViews", "totalUsers"),
		OrderBys:   byMetricDesc("screenPageViews"),
		Limit:      topPagesLimit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]analytics.PageStat, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		out = append(out, analytics.PageStat{Path: row.dim(0), Views: row.count(0), Visitors: row.count(1)})
	}
	return out, nil
}

func (c *Client) fetchDaily(ctx context.Context, dr []dateRange, rangeKey string) ([]analytics.DailyStat, error) {
	resp, err := c.runReport(ctx, KindDaily, rangeKey, reportRequest{
		DateRanges: dr,
		Dimensions: dimensionList("date"),
		Metrics:    metricList("screenPageViews", "totalUsers", "sessions"),
		OrderBys:   byDimension("date"),
	})
	if err != nil {
		return nil, err
	}

	out := make([]analytics.DailyStat, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		d, err := time.Parse(gaDateLayout, row.dim(0))
		if err != nil {
			continue
		}
		out = append(out, analytics.DailyStat{
			Date:      d.Format(analytics.DateLayout),
			PageViews: row.count(0),
			Visitors:  row.count(1),
			Sessions:  row.count(2),
		})
	}
	return out, nil
}

func (c *Client) fetchHourly(ctx context.Context, dr []dateRange, rangeKey string) ([]analytics.HourlyStat, error) {
	resp, err := c.runReport(ctx, KindHourly, rangeKey, reportRequest{
		DateRanges: dr,
		Dimensions: dimensionList("hour"),
		Metrics:    metricList("screenPageViews"),
		OrderBys:   byDimension("hour"),
	})
	if err != nil {
		return nil, err
	}

	out := make([]analytics.HourlyStat, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		h, err := strconv.Atoi(row.dim(0))
		if err != nil || h < 0 || h > 23 {
			continue
		}
		out = append(out, analytics.HourlyStat{Hour: h, PageViews: row.count(0)})
	}
	return out, nil
}

func (c *Client) fetchEventCounts(ctx context.Context, dr []dateRange, rangeKey string) (map[string]int64, error) {
	names := []string{string(analytics.EventLeadFormView), string(analytics.EventLeadFormSubmit)}
	resp, err := c.runReport(ctx, KindEvents, rangeKey, reportRequest{
		DateRanges: dr,
		Dimensions: dimensionList("eventName"),
		Metrics:    metricList("eventCount"),
		DimensionFilter: &filterExpression{Filter: &fieldFilter{
			FieldName:    "eventName",
			InListFilter: &inListFilter{Values: names},
		}},
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(resp.Rows))
	for _, row := range resp.Rows {
		out[row.dim(0)] += row.count(0)
	}
	return out, nil
}

// notSet maps GA4's empty and "(not set)" values to fallback
func notSet(fallback string) func(string) string {
	return func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" || v == "(not set)" {
			return fallback
		}
		return v
	}
}
