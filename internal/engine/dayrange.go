package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stinkmap/stinkmap/internal/utils"
)

// MaxRangeDays caps explicit ranges so a typo cannot allocate decades of buckets.
const MaxRangeDays = 3660

// DefaultTrailingDays is used when no usable range is configured.
const DefaultTrailingDays = 7

// DayRange is a dense, oldest-first run of calendar-day keys.
type DayRange struct {
	Days []string
}

// Len returns the number of days in the range.
func (r DayRange) Len() int { return len(r.Days) }

// Trailing returns the n days ending with the day containing now.
func Trailing(n int, now time.Time, days utils.DayPolicy) (DayRange, error) {
	if n <= 0 {
		return DayRange{}, fmt.Errorf("trailing range needs at least one day, got %d", n)
	}
	if n > MaxRangeDays {
		return DayRange{}, fmt.Errorf("trailing range of %d days exceeds %d", n, MaxRangeDays)
	}
	today := days.Start(now)
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		d := today.AddDate(0, 0, -(n - 1 - i))
		keys[i] = days.Key(d)
	}
	return DayRange{Days: keys}, nil
}

// Between returns every day from start to end inclusive.
func Between(start, end time.Time, days utils.DayPolicy) (DayRange, error) {
	first := days.Start(start)
	last := days.Start(end)
	if last.Before(first) {
		return DayRange{}, fmt.Errorf("start date %s is after end date %s", days.Key(start), days.Key(end))
	}
	keys := make([]string, 0, 32)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if len(keys) == MaxRangeDays {
			return DayRange{}, fmt.Errorf("range exceeds %d days", MaxRangeDays)
		}
		keys = append(keys, days.Key(d))
	}
	return DayRange{Days: keys}, nil
}

// RangeSpec is the user's chart range choice: a day count ("7", "14", "30",
// any positive integer) or "custom" with a YYYY-MM-DD start and end.
type RangeSpec struct {
	Value string
	Start string
	End   string
}

// RangeCustom selects an explicit start/end.
const RangeCustom = "custom"

// Validate rejects values Resolve would have to fall back from.
func (s RangeSpec) Validate(days utils.DayPolicy) error {
	value := strings.TrimSpace(s.Value)
	if value == RangeCustom {
		if s.Start == "" || s.End == "" {
			return fmt.Errorf("custom range needs both start and end dates")
		}
		start, err := days.Parse(s.Start)
		if err != nil {
			return err
		}
		end, err := days.Parse(s.End)
		if err != nil {
			return err
		}
		if end.Before(start) {
			return fmt.Errorf("start date must be before end date")
		}
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 || n > MaxRangeDays {
		return fmt.Errorf("invalid chart range %q", s.Value)
	}
	return nil
}

// Resolve turns s into days. A custom range missing either date, or an
// unparseable value, falls back to the trailing default.
func (s RangeSpec) Resolve(now time.Time, days utils.DayPolicy) (DayRange, error) {
	value := strings.TrimSpace(s.Value)
	if value == RangeCustom {
		if s.Start == "" || s.End == "" {
			return Trailing(DefaultTrailingDays, now, days)
		}
		start, err := days.Parse(s.Start)
		if err != nil {
			return DayRange{}, err
		}
		end, err := days.Parse(s.End)
		if err != nil {
			return DayRange{}, err
		}
		return Between(start, end, days)
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		n = DefaultTrailingDays
	}
	return Trailing(n, now, days)
}

// Title names the range for chart headings.
func (s RangeSpec) Title() string {
	if strings.TrimSpace(s.Value) == RangeCustom {
		return "Custom Range"
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s.Value)); err == nil && n > 0 {
		return fmt.Sprintf("%d days", n)
	}
	return fmt.Sprintf("%d days", DefaultTrailingDays)
}
