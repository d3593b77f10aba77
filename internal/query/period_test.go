package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var periodNow = time.Date(2026, 8, 20, 15, 30, 0, 0, time.UTC)

func TestParsePeriodTokens(t *testing.T) {
	tests := []struct {
		token string
		days  int
	}{
		{Period24h, 2}, // 15:30 minus 24h crosses one midnight
		{Period7d, 7},
		{Period30d, 30},
		{Period90d, 90},
		{Period365d, 365},
		{PeriodRealtime, 1},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			p, err := ParsePeriod(tt.token, "", "", periodNow)
			require.NoError(t, err)
			assert.Len(t, p.Dates(), tt.days)
			assert.True(t, p.From.Before(p.To))
		})
	}
}

func TestParsePeriodMonths(t *testing.T) {
	p, err := ParsePeriod(Period6mo, "", "", periodNow)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-20", p.Dates()[0])

	p, err = ParsePeriod(Period12mo, "", "", periodNow)
	require.NoError(t, err)
	assert.Equal(t, "2025-08-20", p.Dates()[0])
}

func TestParsePeriodCustom(t *testing.T) {
	p, err := ParsePeriod(PeriodCustom, "2026-08-01", "2026-08-03", periodNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-08-01", "2026-08-02", "2026-08-03"}, p.Dates())

	// Single-day ranges are valid.
	p, err = ParsePeriod(PeriodCustom, "2026-08-01", "2026-08-01", periodNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-08-01"}, p.Dates())
}

func TestParsePeriodErrors(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		start, end string
		field      string
	}{
		{"unknown token", "14d", "", "", "period"},
		{"custom without dates", PeriodCustom, "", "", "period"},
		{"custom missing end", PeriodCustom, "2026-08-01", "", "period"},
		{"bad start format", PeriodCustom, "08/01/2026", "2026-08-03", "startDate"},
		{"bad end format", PeriodCustom, "2026-08-01", "next tuesday", "endDate"},
		{"end before start", PeriodCustom, "2026-08-03", "2026-08-01", "endDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePeriod(tt.token, tt.start, tt.end, periodNow)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
