package models

import "strings"

// Category is the severity of a report. Values outside the four known keys
// are kept verbatim so they can still be listed and rendered.
type Category string

const (
	CategoryMild       Category = "mild"
	CategoryStrong     Category = "strong"
	CategorySevere     Category = "severe"
	CategoryUnbearable Category = "unbearable"
)

// Categories lists the known categories in severity order.
var Categories = []Category{CategoryMild, CategoryStrong, CategorySevere, CategoryUnbearable}

// ParseCategory maps an internal key or a wire label onto a Category.
func ParseCategory(value string) Category {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "mild", "a little":
		return CategoryMild
	case "strong", "a lot":
		return CategoryStrong
	case "severe", "really bad":
		return CategorySevere
	case "unbearable":
		return CategoryUnbearable
	default:
		return Category(trimmed)
	}
}

// Known reports whether c is one of the four categories.
func (c Category) Known() bool {
	switch c {
	case CategoryMild, CategoryStrong, CategorySevere, CategoryUnbearable:
		return true
	default:
		return false
	}
}

// Label is the wire and display label.
func (c Category) Label() string {
	switch c {
	case CategoryMild:
		return "A little"
	case CategoryStrong:
		return "A lot"
	case CategorySevere:
		return "Really bad"
	case CategoryUnbearable:
		return "unbearable"
	default:
		return string(c)
	}
}

// Duration is how long the odor has persisted.
type Duration string

const (
	DurationJustStarted Duration = "just-started"
	DurationAWhile      Duration = "a-while"
	DurationAllDay      Duration = "all-day"
	DurationNeverEnding Duration = "never-ending"
)

// Durations lists the known durations in rank order.
var Durations = []Duration{DurationJustStarted, DurationAWhile, DurationAllDay, DurationNeverEnding}

// ParseDuration maps an internal key or a wire label onto a Duration.
func ParseDuration(value string) Duration {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "just-started", "just started":
		return DurationJustStarted
	case "a-while", "been a minute":
		return DurationAWhile
	case "all-day", "all day":
		return DurationAllDay
	case "never-ending", "never ending":
		return DurationNeverEnding
	default:
		return Duration(trimmed)
	}
}

// Known reports whether d is one of the four durations.
func (d Duration) Known() bool {
	return d.Rank() > 0
}

// Rank orders durations for sorting; unknown values rank 0.
func (d Duration) Rank() int {
	switch d {
	case DurationJustStarted:
		return 1
	case DurationAWhile:
		return 2
	case DurationAllDay:
		return 3
	case DurationNeverEnding:
		return 4
	default:
		return 0
	}
}

// Label is the wire and display label.
func (d Duration) Label() string {
	switch d {
	case DurationJustStarted:
		return "Just started"
	case DurationAWhile:
		return "Been a minute"
	case DurationAllDay:
		return "All day"
	case DurationNeverEnding:
		return "Never ending"
	default:
		return string(d)
	}
}
