package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/stinkmap/stinkmap/internal/models"
	"github.com/stinkmap/stinkmap/internal/utils"
)

// TimeWindow restricts reports by age relative to the evaluation instant.
type TimeWindow string

const (
	WindowAll   TimeWindow = "all"
	WindowToday TimeWindow = "today"
	WindowWeek  TimeWindow = "week"
	WindowMonth TimeWindow = "month"
)

// ParseTimeWindow accepts the window names; "" means all.
func ParseTimeWindow(value string) (TimeWindow, error) {
	switch TimeWindow(strings.ToLower(strings.TrimSpace(value))) {
	case "", WindowAll:
		return WindowAll, nil
	case WindowToday:
		return WindowToday, nil
	case WindowWeek, "7d":
		return WindowWeek, nil
	case WindowMonth, "30d":
		return WindowMonth, nil
	default:
		return "", fmt.Errorf("unknown time window %q", value)
	}
}

// ParseCategoryFilter maps "all" or "" to the zero category (no filter).
func ParseCategoryFilter(value string) models.Category {
	if strings.EqualFold(strings.TrimSpace(value), "all") {
		return ""
	}
	return models.ParseCategory(value)
}

// FilterSpec composes independent predicates; the zero value matches all.
type FilterSpec struct {
	// Text is matched case-insensitively as a substring of the comment.
	Text string
	// Category must match exactly unless empty.
	Category models.Category
	Window   TimeWindow
}

// Matches evaluates every predicate of spec against r.
func (spec FilterSpec) Matches(r models.Report, now time.Time, days utils.DayPolicy) bool {
	return spec.matchesText(r) && spec.matchesCategory(r) && spec.matchesWindow(r, now, days)
}

func (spec FilterSpec) matchesText(r models.Report) bool {
	needle := strings.ToLower(strings.TrimSpace(spec.Text))
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Comment), needle)
}

func (spec FilterSpec) matchesCategory(r models.Report) bool {
	return spec.Category == "" || r.Category == spec.Category
}

func (spec FilterSpec) matchesWindow(r models.Report, now time.Time, days utils.DayPolicy) bool {
	switch spec.Window {
	case "", WindowAll:
		return true
	}
	if r.CreatedAt.IsZero() {
		return false
	}
	switch spec.Window {
	case WindowToday:
		return days.SameDay(r.CreatedAt, now)
	case WindowWeek:
		return !r.CreatedAt.Before(now.Add(-7 * 24 * time.Hour))
	case WindowMonth:
		return !r.CreatedAt.Before(now.Add(-30 * 24 * time.Hour))
	default:
		return true
	}
}

// Filter returns the reports matching spec, preserving their order.
func Filter(records []models.Report, spec FilterSpec, now time.Time, days utils.DayPolicy) []models.Report {
	out := make([]models.Report, 0, len(records))
	for _, r := range records {
		if spec.Matches(r, now, days) {
			out = append(out, r)
		}
	}
	return out
}

// OnDay returns the reports whose createdAt falls on dayKey under days.
func OnDay(records []models.Report, dayKey string, days utils.DayPolicy) []models.Report {
	out := make([]models.Report, 0)
	for _, r := range records {
		if !r.CreatedAt.IsZero() && days.Key(r.CreatedAt) == dayKey {
			out = append(out, r)
		}
	}
	return out
}
