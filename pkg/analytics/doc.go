// Package analytics ingests marketing-site interaction events and builds
// dashboard summaries from them.
//
// # Overview
//
// Events arrive through an Ingestor, which validates them and appends them to
// an in-process EventLog. The log owns both the raw events and the per-session
// records derived from them, updated together under one lock.
//
// Summaries come from an Aggregator. When an ExternalSource (GA4) is configured
// it is tried first; any failure falls back to the local log. Every Result is
// tagged with exactly one source and numbers from the two are never mixed.
//
// # Usage Example
//
//	log := analytics.NewEventLog()
//	ingestor := analytics.NewIngestor(log, nil, logger, metrics)
//	ev, err := ingestor.Ingest(ctx, req, analytics.RequestContextFromHTTP(r))
//
//	agg := analytics.NewAggregator(log, ga4Client, nil, logger, metrics)
//	res := agg.GetSummary(ctx, analytics.LastNDays(time.Now(), 30))
//	fmt.Println(res.Source(), res.Summary.TotalPageViews)
//
// # Derived Metrics
//
//   - Bounce rate: sessions with exactly one page view over all sessions
//   - Breakdown percentages are floored to two decimals and sum to at most 100
//   - Rates with a zero denominator are reported as 0
//
// Geography is not captured locally. Fallback summaries carry a fixed
// placeholder distribution and set GeographyEstimated.
package analytics
