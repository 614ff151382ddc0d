package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDateRange(t *testing.T) {
	start := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC)

	r, err := NewDateRange(start, end)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", r.StartDate())
	assert.Equal(t, "2026-03-03", r.EndDate())
	assert.Equal(t, 3, r.Days())
	assert.Len(t, r.Dates(), 3)

	_, err = NewDateRange(end, start)
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestDateRange_SingleDay(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r, err := NewDateRange(day, day)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Days())
	assert.True(t, r.Contains(day.Add(23*time.Hour+59*time.Minute)))
	assert.False(t, r.Contains(day.Add(24*time.Hour)))
	assert.False(t, r.Contains(day.Add(-time.Nanosecond)))
}

func TestLastNDays(t *testing.T) {
	r := LastNDays(testNow, 30)
	assert.Equal(t, 30, r.Days())
	assert.Equal(t, "2026-03-10", r.EndDate())
	assert.Equal(t, "2026-02-09", r.StartDate())
	assert.Equal(t, "2026-02-09..2026-03-10", r.String())
}
