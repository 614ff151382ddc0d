package analytics

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar date format used on the wire
const DateLayout = "2006-01-02"

// ErrInvalidDateRange is returned for ranges that end before they start
var ErrInvalidDateRange = errors.New("invalid date range")

// DateRange is an inclusive range of whole UTC days
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both ends to UTC midnight and checks their order
func NewDateRange(start, end time.Time) (DateRange, error) {
	s, e := truncateDay(start), truncateDay(end)
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("%w: start %s is after end %s",
			ErrInvalidDateRange, s.Format(DateLayout), e.Format(DateLayout))
	}
	return DateRange{Start: s, End: e}, nil
}

// LastNDays returns the n days ending with (and including) now's day
func LastNDays(now time.Time, n int) DateRange {
	if n < 1 {
		n = 1
	}
	end := truncateDay(now)
	return DateRange{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}

// Contains reports whether t falls on one of the range's days
func (r DateRange) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(r.Start) && t.Before(r.End.AddDate(0, 0, 1))
}

// Days returns the number of days in the range
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start)/(24*time.Hour)) + 1
}

// Dates returns each day of the range in order
func (r DateRange) Dates() []time.Time {
	out := make([]time.Time, 0, r.Days())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func (r DateRange) StartDate() string { return r.Start.Format(DateLayout) }
func (r DateRange) EndDate() string   { return r.End.Format(DateLayout) }

func (r DateRange) String() string {
	return r.StartDate() + ".." + r.EndDate()
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
