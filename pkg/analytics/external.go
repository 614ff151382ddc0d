package analytics

import "context"

// CoreMetrics are the headline numbers an external source must provide
type CoreMetrics struct {
	PageViews int64
	Visitors  int64
	Sessions  int64
	// BounceRate is a percentage in [0,100]
	BounceRate float64
	// AvgSessionDuration is in seconds
	AvgSessionDuration float64
}

// ExternalReport is the normalized result of one external fetch. Core is
// required; every other field is empty when its sub-query failed.
type ExternalReport struct {
	Core           CoreMetrics
	TrafficSources []Count
	Devices        []Count
	Browsers       []Count
	Geography      []Count
	TopPages       []PageStat
	Daily          []DailyStat
	Hourly         []HourlyStat
	// EventCounts maps event names to occurrences
	EventCounts map[string]int64
}

// ExternalSource is a third-party analytics backend
type ExternalSource interface {
	// Configured reports whether credentials are present
	Configured() bool
	// FetchReport returns an error when the core metrics are unavailable
	FetchReport(ctx context.Context, r DateRange) (*ExternalReport, error)
}
