// Package export writes the working set as CSV for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/stinkmap/stinkmap/internal/models"
	"github.com/stinkmap/stinkmap/internal/utils"
)

// Header is the fixed first row of every export.
var Header = []string{"lat", "lng", "stinkLevel", "stinkDuration", "comment", "createdAt"}

// WriteCSV writes the header and one row per report, in input order.
// Category and duration are written with their wire labels.
func WriteCSV(w io.Writer, reports []models.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range reports {
		row := []string{
			strconv.FormatFloat(r.Position.Lat, 'f', -1, 64),
			strconv.FormatFloat(r.Position.Lng, 'f', -1, 64),
			r.Category.Label(),
			r.Duration.Label(),
			r.Comment,
			r.CreatedAtString(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename names an export for the given category filter, e.g.
// stinks_all_2024-03-09.csv.
func Filename(category models.Category, now time.Time, days utils.DayPolicy) string {
	filter := string(category)
	if filter == "" {
		filter = "all"
	}
	return fmt.Sprintf("stinks_%s_%s.csv", filter, days.Key(now))
}
