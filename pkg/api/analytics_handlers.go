package api

import (
	"fmt"
	"net/http"

	"github.com/platinummonkey/sitepulse/pkg/analytics"
	"github.com/platinummonkey/sitepulse/pkg/httputil"
)

// handleAnalytics handles GET /analytics
// Query params:
//   - startDate: YYYY-MM-DD, default endDate minus the default range
//   - endDate: YYYY-MM-DD, default today (UTC)
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	rng, err := s.parseRange(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	res := s.aggregator.GetSummary(r.Context(), rng)
	if s.cfg.Analytics.DisplayFloors {
		res = analytics.ApplyDisplayFloors(res, analytics.DefaultDisplayFloors())
	}

	httputil.WriteSuccess(w, res.Summary, res.Source())
}

func (s *Server) parseRange(r *http.Request) (analytics.DateRange, error) {
	defaultDays := s.cfg.Analytics.DefaultRangeDays
	if defaultDays < 1 {
		defaultDays = 30
	}

	start, hasStart, err := httputil.ParseQueryDate(r, "startDate")
	if err != nil {
		return analytics.DateRange{}, err
	}
	end, hasEnd, err := httputil.ParseQueryDate(r, "endDate")
	if err != nil {
		return analytics.DateRange{}, err
	}

	switch {
	case !hasStart && !hasEnd:
		return analytics.LastNDays(s.clock.Now(), defaultDays), nil
	case !hasEnd:
		end = s.clock.Now()
	case !hasStart:
		start = end.AddDate(0, 0, -(defaultDays - 1))
	}

	rng, err := analytics.NewDateRange(start, end)
	if err != nil {
		return analytics.DateRange{}, err
	}
	if limit := s.cfg.Analytics.MaxRangeDays; limit > 0 && rng.Days() > limit {
		return analytics.DateRange{}, fmt.Errorf("%w: range spans %d days, at most %d allowed",
			analytics.ErrInvalidDateRange, rng.Days(), limit)
	}
	return rng, nil
}
