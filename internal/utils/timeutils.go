package utils

import (
	"fmt"
	"strings"
	"time"
)

// DayLayout is the calendar-day key format.
const DayLayout = "2006-01-02"

// DayPolicy assigns instants to calendar days in one fixed location. Every
// day-based grouping or filter goes through the same policy.
type DayPolicy struct {
	loc *time.Location
}

// UTCDays is the default policy.
var UTCDays = DayPolicy{loc: time.UTC}

// NewDayPolicy resolves an IANA zone name; "" and "UTC" give UTC, "Local" the host zone.
func NewDayPolicy(zone string) (DayPolicy, error) {
	switch strings.TrimSpace(zone) {
	case "", "UTC", "utc":
		return UTCDays, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return DayPolicy{}, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return DayPolicy{loc: loc}, nil
}

// Location returns the policy's zone.
func (p DayPolicy) Location() *time.Location {
	if p.loc == nil {
		return time.UTC
	}
	return p.loc
}

// Key returns the YYYY-MM-DD day t falls on.
func (p DayPolicy) Key(t time.Time) string {
	return t.In(p.Location()).Format(DayLayout)
}

// Start returns midnight of the day containing t.
func (p DayPolicy) Start(t time.Time) time.Time {
	local := t.In(p.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.Location())
}

// Parse reads a YYYY-MM-DD key as midnight in the policy's zone.
func (p DayPolicy) Parse(key string) (time.Time, error) {
	value := strings.TrimSpace(key)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty day value")
	}
	t, err := time.ParseInLocation(DayLayout, value, p.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", value, err)
	}
	return t, nil
}

// SameDay reports whether a and b fall on the same calendar day.
func (p DayPolicy) SameDay(a, b time.Time) bool {
	return p.Key(a) == p.Key(b)
}
