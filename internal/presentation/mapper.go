// Package presentation derives display attributes from reports. Every
// function here is total: unknown inputs get a neutral fallback.
package presentation

import (
	"fmt"
	"time"

	"github.com/stinkmap/stinkmap/internal/models"
)

// FallbackColor is used for categories outside the known set.
const FallbackColor = "blue"

// AllSeriesColor is the aggregate series colour on trend charts.
const AllSeriesColor = "#3b82f6"

// ColorFor returns the pin colour for a category.
func ColorFor(category models.Category) string {
	switch category {
	case models.CategoryMild:
		return "green"
	case models.CategoryStrong:
		return "yellow"
	case models.CategorySevere:
		return "orange"
	case models.CategoryUnbearable:
		return "red"
	default:
		return FallbackColor
	}
}

// HexFor returns the chart/legend colour for a category.
func HexFor(category models.Category) string {
	switch category {
	case models.CategoryMild:
		return "#10b981"
	case models.CategoryStrong:
		return "#fbbf24"
	case models.CategorySevere:
		return "#f97316"
	case models.CategoryUnbearable:
		return "#ef4444"
	default:
		return "#6b7280"
	}
}

// OpacityFor fades a pin with age: under a day 1.0, under a week 0.8, under
// 30 days 0.6, under a year 0.4, older 0.2. Future timestamps count as fresh.
func OpacityFor(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0.2
	}
	hours := now.Sub(createdAt).Hours()
	switch {
	case hours < 24:
		return 1.0
	case hours < 24*7:
		return 0.8
	case hours < 24*30:
		return 0.6
	case hours < 24*365:
		return 0.4
	default:
		return 0.2
	}
}

// CategoryPhrase is the popup wording for a category.
func CategoryPhrase(category models.Category) string {
	switch category {
	case models.CategoryMild:
		return "a slight odor"
	case models.CategoryStrong:
		return "a strong odor"
	case models.CategorySevere:
		return "a really bad smell"
	case models.CategoryUnbearable:
		return "an unbearable stench"
	default:
		return "an odor"
	}
}

// DurationPhrase is the popup wording for a duration.
func DurationPhrase(duration models.Duration) string {
	switch duration {
	case models.DurationJustStarted:
		return "that just started"
	case models.DurationAWhile:
		return "that's been going for a bit"
	case models.DurationAllDay:
		return "that's been going all day"
	case models.DurationNeverEnding:
		return "that seems never-ending"
	default:
		return "for some time"
	}
}

// TimeSince renders a coarse relative age.
func TimeSince(createdAt, now time.Time) string {
	if createdAt.IsZero() {
		return "recently"
	}
	mins := int(now.Sub(createdAt).Minutes())
	if mins < 0 {
		mins = 0
	}
	if mins < 60 {
		return fmt.Sprintf("%d min(s) ago", mins)
	}
	hrs := mins / 60
	if hrs < 24 {
		return fmt.Sprintf("%d hr(s) ago", hrs)
	}
	return fmt.Sprintf("%d day(s) ago", hrs/24)
}

// Pin bundles everything a map marker needs.
type Pin struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
	Summary string  `json:"summary"`
}

// PinFor builds the marker for r as seen at now.
func PinFor(r models.Report, now time.Time) Pin {
	return Pin{
		Lat:     r.Position.Lat,
		Lng:     r.Position.Lng,
		Color:   ColorFor(r.Category),
		Opacity: OpacityFor(r.CreatedAt, now),
		Summary: fmt.Sprintf("Someone reported %s %s, %s.",
			CategoryPhrase(r.Category), DurationPhrase(r.Duration), TimeSince(r.CreatedAt, now)),
	}
}
