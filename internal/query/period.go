// Package query answers range, breakdown and filtered queries from stored
// rollups. It is read-only: one store read per date bucket, merged locally
// with the same combine operators the fold path uses.
package query

import (
	"fmt"
	"time"
)

// ValidationError is a client-facing 400 carrying the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Period tokens accepted by the query API.
const (
	Period24h      = "24h"
	Period7d       = "7d"
	Period30d      = "30d"
	Period90d      = "90d"
	Period365d     = "365d"
	Period6mo      = "6mo"
	Period12mo     = "12mo"
	PeriodRealtime = "realtime"
	PeriodCustom   = "custom"
)

// Period is a resolved query window. Boundaries are UTC; date buckets are
// whole UTC days.
type Period struct {
	Token string    `json:"token"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
}

// ParsePeriod resolves a period token against now (UTC day boundaries).
// custom requires both startDate and endDate as 2006-01-02.
func ParsePeriod(token, startDate, endDate string, now time.Time) (Period, error) {
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch token {
	case Period24h:
		return Period{Token: token, From: now.Add(-24 * time.Hour), To: now}, nil
	case Period7d:
		return Period{Token: token, From: dayStart.AddDate(0, 0, -6), To: now}, nil
	case Period30d:
		return Period{Token: token, From: dayStart.AddDate(0, 0, -29), To: now}, nil
	case Period90d:
		return Period{Token: token, From: dayStart.AddDate(0, 0, -89), To: now}, nil
	case Period365d:
		return Period{Token: token, From: dayStart.AddDate(0, 0, -364), To: now}, nil
	case Period6mo:
		return Period{Token: token, From: dayStart.AddDate(0, -6, 0), To: now}, nil
	case Period12mo:
		return Period{Token: token, From: dayStart.AddDate(0, -12, 0), To: now}, nil
	case PeriodRealtime:
		return Period{Token: token, From: now.Add(-5 * time.Minute), To: now}, nil
	case PeriodCustom:
		if startDate == "" || endDate == "" {
			return Period{}, &ValidationError{Field: "period", Message: "custom period requires startDate and endDate"}
		}
		from, err := time.ParseInLocation("2006-01-02", startDate, time.UTC)
		if err != nil {
			return Period{}, &ValidationError{Field: "startDate", Message: "expected 2006-01-02"}
		}
		to, err := time.ParseInLocation("2006-01-02", endDate, time.UTC)
		if err != nil {
			return Period{}, &ValidationError{Field: "endDate", Message: "expected 2006-01-02"}
		}
		if to.Before(from) {
			return Period{}, &ValidationError{Field: "endDate", Message: "endDate before startDate"}
		}
		return Period{Token: token, From: from, To: to.AddDate(0, 0, 1).Add(-time.Second)}, nil
	default:
		return Period{}, &ValidationError{Field: "period", Message: fmt.Sprintf("unknown period %q", token)}
	}
}

// Dates lists every UTC day the period touches, oldest first.
func (p Period) Dates() []string {
	var dates []string
	day := time.Date(p.From.Year(), p.From.Month(), p.From.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(p.To.Year(), p.To.Month(), p.To.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(last) {
		dates = append(dates, day.Format("2006-01-02"))
		day = day.AddDate(0, 0, 1)
	}
	return dates
}
