// Package table sorts and filters reports for tabular display.
package table

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/stinkmap/stinkmap/internal/models"
	"github.com/stinkmap/stinkmap/internal/store"
	"github.com/stinkmap/stinkmap/internal/utils"
)

// Column identifies a sortable column.
type Column string

const (
	ColumnCategory  Column = "stinkLevel"
	ColumnDuration  Column = "stinkDuration"
	ColumnCreatedAt Column = "createdAt"
	ColumnComment   Column = "comment"
	ColumnLat       Column = "lat"
	ColumnLng       Column = "lng"
)

// Columns lists the table columns in display order.
var Columns = []Column{ColumnCategory, ColumnDuration, ColumnCreatedAt, ColumnComment, ColumnLat, ColumnLng}

// Title is the column header text.
func (c Column) Title() string {
	switch c {
	case ColumnCategory:
		return "Stink Level"
	case ColumnDuration:
		return "Duration"
	case ColumnCreatedAt:
		return "Date & Time"
	case ColumnComment:
		return "Comment"
	case ColumnLat:
		return "Latitude"
	case ColumnLng:
		return "Longitude"
	default:
		return string(c)
	}
}

// ParseColumn accepts a column key; unknown keys are an error.
func ParseColumn(value string) (Column, error) {
	for _, c := range Columns {
		if strings.EqualFold(string(c), strings.TrimSpace(value)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown sort column %q", value)
}

// Direction is ascending or descending.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts "asc"/"desc"; "" is ascending.
func ParseDirection(value string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	default:
		return "", fmt.Errorf("unknown sort direction %q", value)
	}
}

// SortState is the current sort key and direction.
type SortState struct {
	Column    Column
	Direction Direction
}

// DefaultSort shows newest reports first.
var DefaultSort = SortState{Column: ColumnCreatedAt, Direction: Desc}

// Toggle selects column: the same column flips direction, a new one starts
// ascending.
func (s SortState) Toggle(column Column) SortState {
	if s.Column == column {
		if s.Direction == Asc {
			return SortState{Column: column, Direction: Desc}
		}
		return SortState{Column: column, Direction: Asc}
	}
	return SortState{Column: column, Direction: Asc}
}

// Indicator is the header arrow for column under s.
func (s SortState) Indicator(column Column) string {
	if s.Column != column {
		return "↕"
	}
	if s.Direction == Asc {
		return "↑"
	}
	return "↓"
}

// Sort returns a stably sorted copy of records. Equal keys keep their input
// order in both directions.
func Sort(records []models.Report, state SortState) []models.Report {
	out := slices.Clone(records)
	compare := comparator(state.Column)
	slices.SortStableFunc(out, func(a, b models.Report) int {
		if state.Direction == Desc {
			return compare(b, a)
		}
		return compare(a, b)
	})
	return out
}

func comparator(column Column) func(a, b models.Report) int {
	switch column {
	case ColumnLat:
		return func(a, b models.Report) int { return cmp.Compare(a.Position.Lat, b.Position.Lat) }
	case ColumnLng:
		return func(a, b models.Report) int { return cmp.Compare(a.Position.Lng, b.Position.Lng) }
	case ColumnCreatedAt:
		return func(a, b models.Report) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case ColumnDuration:
		return func(a, b models.Report) int { return cmp.Compare(a.Duration.Rank(), b.Duration.Rank()) }
	case ColumnCategory:
		return func(a, b models.Report) int { return compareFold(a.Category.Label(), b.Category.Label()) }
	default:
		return func(a, b models.Report) int { return compareFold(a.Comment, b.Comment) }
	}
}

func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// View filters then sorts records for display.
func View(records []models.Report, spec store.FilterSpec, state SortState, now time.Time, days utils.DayPolicy) []models.Report {
	return Sort(store.Filter(records, spec, now, days), state)
}

// Model is the table's session state: the active filter and sort.
type Model struct {
	Filter store.FilterSpec
	Sort   SortState
}

// NewModel starts with no filter and newest-first sorting.
func NewModel() *Model {
	return &Model{Sort: DefaultSort}
}

// ToggleSort applies a header click.
func (m *Model) ToggleSort(column Column) {
	m.Sort = m.Sort.Toggle(column)
}

// Rows renders the store's contents under the model's filter and sort.
func (m *Model) Rows(s *store.RecordStore, now time.Time) []models.Report {
	return Sort(s.Filter(m.Filter, now), m.Sort)
}
