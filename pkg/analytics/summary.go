package analytics

import (
	"math"
	"sort"
)

// Summary is the read model served by GET /analytics
type Summary struct {
	TotalPageViews     int64           `json:"totalPageViews"`
	UniqueVisitors     int64           `json:"uniqueVisitors"`
	TotalSessions      int64           `json:"totalSessions"`
	BounceRate         float64         `json:"bounceRate"`
	AvgSessionDuration float64         `json:"avgSessionDuration"`
	AvgPagesPerSession float64         `json:"avgPagesPerSession"`
	TrafficSources     []BreakdownItem `json:"trafficSources"`
	Devices            []BreakdownItem `json:"devices"`
	Browsers           []BreakdownItem `json:"browsers"`
	Geography          []BreakdownItem `json:"geography"`
	DailyStats         []DailyStat     `json:"dailyStats"`
	HourlyStats        []HourlyStat    `json:"hourlyStats"`
	TopPages           []PageStat      `json:"topPages"`
	Engagement         Engagement      `json:"engagement"`
	Leads              LeadMetrics     `json:"leads"`
	Period             Period          `json:"period"`
	// GeographyEstimated marks a placeholder distribution rather than measured data
	GeographyEstimated bool `json:"geographyEstimated"`
	// DisplaySmoothed marks a summary whose counts were raised by ApplyDisplayFloors
	DisplaySmoothed bool `json:"displaySmoothed,omitempty"`
}

// BreakdownItem is one bucket of a categorical breakdown
type BreakdownItem struct {
	Name       string  `json:"name"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DailyStat is one point of the daily series
type DailyStat struct {
	Date      string `json:"date"`
	PageViews int64  `json:"pageViews"`
	Visitors  int64  `json:"visitors"`
	Sessions  int64  `json:"sessions"`
}

// HourlyStat is one point of the hour-of-day series
type HourlyStat struct {
	Hour      int   `json:"hour"`
	PageViews int64 `json:"pageViews"`
}

// PageStat is the traffic of a single page
type PageStat struct {
	Path     string `json:"path"`
	Views    int64  `json:"views"`
	Visitors int64  `json:"visitors"`
}

// Engagement covers on-page interactions
type Engagement struct {
	SectionViews       []BreakdownItem `json:"sectionViews"`
	ButtonClicks       []BreakdownItem `json:"buttonClicks"`
	FormViews          int64           `json:"formViews"`
	FormSubmits        int64           `json:"formSubmits"`
	FormCompletionRate float64         `json:"formCompletionRate"`
}

// LeadMetrics summarises captured leads
type LeadMetrics struct {
	Total          int64           `json:"total"`
	ConversionRate float64         `json:"conversionRate"`
	ByProjectType  []BreakdownItem `json:"byProjectType"`
}

// Period echoes the requested range
type Period struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// Empty reports whether the summary carries no traffic at all
func (s Summary) Empty() bool {
	return s.TotalPageViews == 0 && s.TotalSessions == 0 && s.UniqueVisitors == 0
}

// normalize replaces nil slices so they encode as [] rather than null
func (s *Summary) normalize() {
	for _, p := range []*[]BreakdownItem{
		&s.TrafficSources, &s.Devices, &s.Browsers, &s.Geography,
		&s.Engagement.SectionViews, &s.Engagement.ButtonClicks, &s.Leads.ByProjectType,
	} {
		if *p == nil {
			*p = []BreakdownItem{}
		}
	}
	if s.DailyStats == nil {
		s.DailyStats = []DailyStat{}
	}
	if s.HourlyStats == nil {
		s.HourlyStats = []HourlyStat{}
	}
	if s.TopPages == nil {
		s.TopPages = []PageStat{}
	}
}

// Kind tells which data source produced a Result
type Kind int

const (
	KindFallback Kind = iota
	KindExternal
)

// Source tags used in the response envelope
const (
	SourceGA4    = "ga4"
	SourceCustom = "custom"
)

// Result is a summary tagged with the single source it was built from
type Result struct {
	Kind    Kind
	Summary Summary
}

// Source returns the envelope tag for the result
func (r Result) Source() string {
	if r.Kind == KindExternal {
		return SourceGA4
	}
	return SourceCustom
}

// Count is a raw named count before percentages are derived
type Count struct {
	Name  string
	Count int64
}

// breakdown merges counts by name, sorts them by count and derives
// percentages floored to two decimals so each breakdown sums to at most 100.
func breakdown(counts []Count) []BreakdownItem {
	merged := make(map[string]int64, len(counts))
	var order []string
	var total int64
	for _, c := range counts {
		if c.Count <= 0 {
			continue
		}
		if _, seen := merged[c.Name]; !seen {
			order = append(order, c.Name)
		}
		merged[c.Name] += c.Count
		total += c.Count
	}

	items := make([]BreakdownItem, 0, len(order))
	for _, name := range order {
		n := merged[name]
		items = append(items, BreakdownItem{
			Name:       name,
			Count:      n,
			Percentage: floorPercent(n, total),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Name < items[j].Name
		}
		return items[i].Count > items[j].Count
	})
	return items
}

// countMap turns a name->count map into Counts
func countMap(m map[string]int64) []Count {
	out := make([]Count, 0, len(m))
	for name, n := range m {
		out = append(out, Count{Name: name, Count: n})
	}
	return out
}

// floorPercent returns part/total*100 floored to two decimals, 0 when total is 0
func floorPercent(part, total int64) float64 {
	if total <= 0 || part <= 0 {
		return 0
	}
	return float64(part*10000/total) / 100
}

// ratePercent returns num/den*100 rounded to two decimals and clamped to [0,100]
func ratePercent(num, den int64) float64 {
	if den <= 0 || num <= 0 {
		return 0
	}
	return clampPercent(math.Round(float64(num)*10000/float64(den)) / 100)
}

// ratio returns num/den rounded to two decimals, 0 when den is 0
func ratio(num, den int64) float64 {
	if den <= 0 || num <= 0 {
		return 0
	}
	return round2(float64(num) / float64(den))
}

func round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return math.Round(x*100) / 100
}

func clampPercent(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 100:
		return 100
	default:
		return x
	}
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
