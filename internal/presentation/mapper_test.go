package presentation

import (
	"testing"
	"time"

	"github.com/stinkmap/stinkmap/internal/models"
)

func TestColorFor(t *testing.T) {
	cases := map[models.Category]string{
		models.CategoryMild:       "green",
		models.CategoryStrong:     "yellow",
		models.CategorySevere:     "orange",
		models.CategoryUnbearable: "red",
		models.Category("xyz"):    FallbackColor,
		models.Category(""):       FallbackColor,
	}
	for category, want := range cases {
		if got := ColorFor(category); got != want {
			t.Fatalf("ColorFor(%q) = %s, want %s", category, got, want)
		}
	}
}

func TestOpacityBands(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		age  time.Duration
		want float64
	}{
		{age: time.Hour, want: 1.0},
		{age: 23 * time.Hour, want: 1.0},
		{age: 24 * time.Hour, want: 0.8},
		{age: 6 * 24 * time.Hour, want: 0.8},
		{age: 7 * 24 * time.Hour, want: 0.6},
		{age: 29 * 24 * time.Hour, want: 0.6},
		{age: 30 * 24 * time.Hour, want: 0.4},
		{age: 364 * 24 * time.Hour, want: 0.4},
		{age: 365 * 24 * time.Hour, want: 0.2},
		{age: 3 * 365 * 24 * time.Hour, want: 0.2},
		{age: -time.Hour, want: 1.0},
	}
	for _, tc := range cases {
		if got := OpacityFor(now.Add(-tc.age), now); got != tc.want {
			t.Fatalf("age %s: got %v, want %v", tc.age, got, tc.want)
		}
	}
}

func TestTimeSince(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := TimeSince(now.Add(-5*time.Minute), now); got != "5 min(s) ago" {
		t.Fatalf("unexpected: %s", got)
	}
	if got := TimeSince(now.Add(-3*time.Hour), now); got != "3 hr(s) ago" {
		t.Fatalf("unexpected: %s", got)
	}
	if got := TimeSince(now.Add(-50*time.Hour), now); got != "2 day(s) ago" {
		t.Fatalf("unexpected: %s", got)
	}
}

func TestPinForUnknownCategory(t *testing.T) {
	now := time.Now()
	r := models.NewReport(1, 2, models.Category("xyz"), models.Duration("??"), "", now)
	pin := PinFor(r, now)
	if pin.Color != FallbackColor {
		t.Fatalf("expected fallback colour, got %s", pin.Color)
	}
	if pin.Summary != "Someone reported an odor for some time, 0 min(s) ago." {
		t.Fatalf("unexpected summary: %s", pin.Summary)
	}
}
