package credits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonthWindowBoundaries(t *testing.T) {
	march := MonthWindow(time.Date(2025, 3, 15, 8, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), march.Start)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), march.End)

	february := MonthWindow(time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC))
	lastSecond := time.Date(2025, 2, 28, 23, 59, 59, 0, time.UTC)
	firstSecond := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, february.Contains(lastSecond))
	assert.False(t, march.Contains(lastSecond))
	assert.True(t, march.Contains(firstSecond))
	assert.False(t, february.Contains(firstSecond))
}

func TestMonthWindowNormalizesToUTC(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 2025-04-01 03:00 JST is still March in UTC.
	w := MonthWindow(time.Date(2025, 4, 1, 3, 0, 0, 0, tokyo))
	assert.Equal(t, time.March, w.Start.Month())
}

func TestMonthWindowDecemberRollsYear(t *testing.T) {
	w := MonthWindow(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), w.End)
}
