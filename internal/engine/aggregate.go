package engine

import (
	"time"

	"github.com/stinkmap/stinkmap/internal/models"
	"github.com/stinkmap/stinkmap/internal/presentation"
	"github.com/stinkmap/stinkmap/internal/utils"
)

// DailyCounts holds per-day totals aligned with Days.
type DailyCounts struct {
	Days        []string
	Total       []int
	PerCategory map[models.Category][]int
}

// Aggregator buckets reports into calendar days under one day policy.
type Aggregator struct {
	days utils.DayPolicy
}

// NewAggregator returns an Aggregator using days for bucket membership.
func NewAggregator(days utils.DayPolicy) *Aggregator {
	return &Aggregator{days: days}
}

// DailyCounts counts records per day of rng, overall and per category. Every
// day of rng appears in the output, zero-filled. Records outside rng or
// without a timestamp are ignored; records with other categories count only
// toward the total.
func (a *Aggregator) DailyCounts(records []models.Report, rng DayRange, categories []models.Category) DailyCounts {
	out := DailyCounts{
		Days:        append([]string(nil), rng.Days...),
		Total:       make([]int, len(rng.Days)),
		PerCategory: make(map[models.Category][]int, len(categories)),
	}
	for _, c := range categories {
		out.PerCategory[c] = make([]int, len(rng.Days))
	}

	index := make(map[string]int, len(rng.Days))
	for i, day := range rng.Days {
		index[day] = i
	}

	for _, r := range records {
		if r.CreatedAt.IsZero() {
			continue
		}
		i, ok := index[a.days.Key(r.CreatedAt)]
		if !ok {
			continue
		}
		out.Total[i]++
		if series, ok := out.PerCategory[r.Category]; ok {
			series[i]++
		}
	}
	return out
}

// Series is one line of a trend chart.
type Series struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Data  []int  `json:"data"`
}

// Chart is what the chart widget consumes: labels plus series.
type Chart struct {
	Title  string   `json:"title"`
	Days   []string `json:"days"`
	Labels []string `json:"labels"`
	Series []Series `json:"series"`
}

// Chart renders counts as an "All" series followed by one series per known
// category, in severity order.
func (a *Aggregator) Chart(title string, counts DailyCounts) Chart {
	labels := make([]string, len(counts.Days))
	for i, day := range counts.Days {
		labels[i] = day
		if t, err := a.days.Parse(day); err == nil {
			labels[i] = t.Format("Jan 2")
		}
	}

	series := []Series{{Label: "All", Color: presentation.AllSeriesColor, Data: counts.Total}}
	for _, c := range models.Categories {
		data, ok := counts.PerCategory[c]
		if !ok {
			continue
		}
		series = append(series, Series{Label: c.Label(), Color: presentation.HexFor(c), Data: data})
	}
	return Chart{
		Title:  "Odor Reports Trend (" + title + ")",
		Days:   counts.Days,
		Labels: labels,
		Series: series,
	}
}

// Statistics summarises the working set for the dashboard cards.
type Statistics struct {
	Total            int             `json:"total"`
	Today            int             `json:"today"`
	MostCommonToday  models.Category `json:"mostCommonToday,omitempty"`
	TodayCount       int             `json:"todayCount"`
	MostCommonAll    models.Category `json:"mostCommonOverall,omitempty"`
	MostCommonAllCnt int             `json:"overallCount"`
}

// Statistics computes totals and the most common category today and overall.
// Ties go to the more severe category.
func (a *Aggregator) Statistics(records []models.Report, now time.Time) Statistics {
	todayKey := a.days.Key(now)
	all := make(map[models.Category]int)
	today := make(map[models.Category]int)
	stats := Statistics{Total: len(records)}

	for _, r := range records {
		all[r.Category]++
		if !r.CreatedAt.IsZero() && a.days.Key(r.CreatedAt) == todayKey {
			stats.Today++
			today[r.Category]++
		}
	}
	stats.MostCommonToday, stats.TodayCount = mostCommon(today)
	stats.MostCommonAll, stats.MostCommonAllCnt = mostCommon(all)
	return stats
}

func mostCommon(counts map[models.Category]int) (models.Category, int) {
	var (
		best  models.Category
		count int
	)
	for _, c := range models.Categories {
		if n := counts[c]; n > 0 && n >= count {
			best, count = c, n
		}
	}
	return best, count
}
