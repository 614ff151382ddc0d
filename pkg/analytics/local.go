package analytics

import (
	"sort"
	"strings"
	"time"
)

// topPagesLimit caps the page performance table
const topPagesLimit = 10

// placeholderGeography is the fixed distribution used when no location data
// exists locally. Shares sum to 100.
var placeholderGeography = []struct {
	Name  string
	Share int64
}{
	{"United States", 40},
	{"India", 15},
	{"United Kingdom", 12},
	{"Canada", 10},
	{"Germany", 8},
	{"Other", 15},
}

// estimateGeography scales the placeholder distribution to visitors.
// Rounding leftovers go to the largest bucket so counts sum to visitors.
func estimateGeography(visitors int64) []BreakdownItem {
	if visitors <= 0 {
		return []BreakdownItem{}
	}
	counts := make([]Count, len(placeholderGeography))
	var assigned int64
	for i, g := range placeholderGeography {
		n := visitors * g.Share / 100
		counts[i] = Count{Name: g.Name, Count: n}
		assigned += n
	}
	counts[0].Count += visitors - assigned
	return breakdown(counts)
}

type pageAgg struct {
	views    int64
	sessions map[string]struct{}
}

// computeLocal builds a summary from locally ingested events. sessions are
// those that started inside r.
func computeLocal(events []Event, sessions []SessionRecord, r DateRange) Summary {
	s := Summary{
		Period:             Period{StartDate: r.StartDate(), EndDate: r.EndDate()},
		GeographyEstimated: true,
	}

	visitors := make(map[string]struct{})
	traffic := make(map[string]int64)
	devices := make(map[string]int64)
	browsers := make(map[string]int64)
	dailySessions := make(map[string]int64)
	dailyVisitors := make(map[string]map[string]struct{})

	var singlePage int64
	var totalDuration time.Duration
	for _, sess := range sessions {
		key := sess.VisitorKey()
		visitors[key] = struct{}{}
		if sess.PageViews == 1 {
			singlePage++
		}
		totalDuration += sess.Duration()

		traffic[ClassifyVisit(sess.Referrer, sess.LandingPage)]++
		devices[DeviceFromUserAgent(sess.UserAgent)]++
		browsers[BrowserFromUserAgent(sess.UserAgent)]++

		day := sess.StartTime.UTC().Format(DateLayout)
		dailySessions[day]++
		if dailyVisitors[day] == nil {
			dailyVisitors[day] = make(map[string]struct{})
		}
		dailyVisitors[day][key] = struct{}{}
	}

	var pageViews, formViews, formSubmits int64
	dailyViews := make(map[string]int64)
	hourly := make([]int64, 24)
	pages := make(map[string]*pageAgg)
	sections := make(map[string]int64)
	buttons := make(map[string]int64)

	for _, ev := range events {
		switch ev.Type {
		case EventPageView:
			pageViews++
			ts := ev.Timestamp.UTC()
			dailyViews[ts.Format(DateLayout)]++
			hourly[ts.Hour()]++

			path := pagePath(ev.Attr(AttrPage))
			p, ok := pages[path]
			if !ok {
				p = &pageAgg{sessions: make(map[string]struct{})}
				pages[path] = p
			}
			p.views++
			p.sessions[ev.SessionID] = struct{}{}
		case EventSectionView:
			if name := ev.Attr(AttrSection); name != "" {
				sections[name]++
			}
		case EventButtonClick:
			if name := ev.Attr(AttrButton); name != "" {
				buttons[name]++
			}
		case EventLeadFormView:
			formViews++
		case EventLeadFormSubmit:
			formSubmits++
		}
	}

	totalSessions := int64(len(sessions))
	s.TotalPageViews = pageViews
	s.UniqueVisitors = int64(len(visitors))
	s.TotalSessions = totalSessions
	s.BounceRate = ratePercent(singlePage, totalSessions)
	s.AvgPagesPerSession = ratio(pageViews, totalSessions)
	if totalSessions > 0 {
		s.AvgSessionDuration = round2(totalDuration.Seconds() / float64(totalSessions))
	}

	s.TrafficSources = breakdown(countMap(traffic))
	s.Devices = breakdown(countMap(devices))
	s.Browsers = breakdown(countMap(browsers))
	s.Geography = estimateGeography(s.UniqueVisitors)

	for _, d := range r.Dates() {
		key := d.Format(DateLayout)
		s.DailyStats = append(s.DailyStats, DailyStat{
			Date:      key,
			PageViews: dailyViews[key],
			Visitors:  int64(len(dailyVisitors[key])),
			Sessions:  dailySessions[key],
		})
	}
	for h, n := range hourly {
		s.HourlyStats = append(s.HourlyStats, HourlyStat{Hour: h, PageViews: n})
	}

	s.TopPages = topPages(pages)
	s.Engagement = Engagement{
		SectionViews:       breakdown(countMap(sections)),
		ButtonClicks:       breakdown(countMap(buttons)),
		FormViews:          formViews,
		FormSubmits:        formSubmits,
		FormCompletionRate: ratePercent(formSubmits, formViews),
	}

	s.normalize()
	return s
}

// pagePath drops the query string and defaults to the root page
func pagePath(page string) string {
	path, _, _ := strings.Cut(strings.TrimSpace(page), "?")
	if path == "" {
		return "/"
	}
	return path
}

func topPages(pages map[string]*pageAgg) []PageStat {
	out := make([]PageStat, 0, len(pages))
	for path, p := range pages {
		out = append(out, PageStat{Path: path, Views: p.views, Visitors: int64(len(p.sessions))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views == out[j].Views {
			return out[i].Path < out[j].Path
		}
		return out[i].Views > out[j].Views
	})
	if len(out) > topPagesLimit {
		out = out[:topPagesLimit]
	}
	return out
}
