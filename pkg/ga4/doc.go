// Package ga4 adapts the Google Analytics 4 Data API to analytics.ExternalSource.
//
// One FetchReport issues several runReport sub-queries in parallel. The core
// totals are required; every other sub-query degrades to an empty result on
// failure. Responses are cached per (kind, start, end) for CacheTTL.
//
// Authentication uses a service account through the JWT bearer flow:
//
//	client, err := ga4.NewFromConfig(ctx, cfg.GA4, logger, metrics)
//	if !client.Configured() {
//		// summaries fall back to locally ingested events
//	}
package ga4
