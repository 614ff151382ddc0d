package analytics

// DisplayFloors are presentation minimums for an empty local summary
type DisplayFloors struct {
	PageViews          int64
	UniqueVisitors     int64
	TotalSessions      int64
	AvgPagesPerSession float64
}

// DefaultDisplayFloors keeps a pre-launch dashboard from showing zeros
func DefaultDisplayFloors() DisplayFloors {
	return DisplayFloors{
		PageViews:          1,
		UniqueVisitors:     1,
		TotalSessions:      1,
		AvgPagesPerSession: 1,
	}
}

// ApplyDisplayFloors raises the headline numbers of a fallback summary with
// no data to floors. External results and non-empty summaries are returned
// unchanged. The input is never modified.
func ApplyDisplayFloors(res Result, floors DisplayFloors) Result {
	if res.Kind != KindFallback || !res.Summary.Empty() {
		return res
	}

	out := res
	s := &out.Summary
	s.TotalPageViews = maxInt64(s.TotalPageViews, floors.PageViews)
	s.UniqueVisitors = maxInt64(s.UniqueVisitors, floors.UniqueVisitors)
	s.TotalSessions = maxInt64(s.TotalSessions, floors.TotalSessions)
	if s.AvgPagesPerSession < floors.AvgPagesPerSession {
		s.AvgPagesPerSession = floors.AvgPagesPerSession
	}
	s.DisplaySmoothed = true
	return out
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
