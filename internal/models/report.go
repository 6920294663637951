package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ISOLayout matches the millisecond ISO-8601 form browsers emit for createdAt.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// Position is a WGS84 coordinate in degrees.
type Position struct {
	Lat float64
	Lng float64
}

// Report is one odor observation. Reports are never edited after creation.
//
// CreatedAt is assigned by the submitting client, not the endpoint, and is
// trusted as-is.
type Report struct {
	Position  Position
	Category  Category
	Duration  Duration
	Comment   string
	CreatedAt time.Time

	// rawCreatedAt keeps an unparseable timestamp around for export.
	rawCreatedAt string
	missing      []string
}

// NewReport builds a client-side report stamped with createdAt.
func NewReport(lat, lng float64, category Category, duration Duration, comment string, createdAt time.Time) Report {
	return Report{
		Position:  Position{Lat: lat, Lng: lng},
		Category:  category,
		Duration:  duration,
		Comment:   comment,
		CreatedAt: createdAt.UTC(),
	}
}

// Malformed reports whether the record carries values outside the closed sets
// or lacks fields. Malformed records are still kept and rendered.
func (r Report) Malformed() bool {
	return len(r.missing) > 0 || !r.Category.Known() || !r.Duration.Known()
}

// MissingFields lists wire fields that were absent or unparseable.
func (r Report) MissingFields() []string {
	return append([]string(nil), r.missing...)
}

// CreatedAtString renders createdAt the way it travels on the wire.
func (r Report) CreatedAtString() string {
	if r.CreatedAt.IsZero() {
		return r.rawCreatedAt
	}
	return r.CreatedAt.UTC().Format(ISOLayout)
}

// Values encodes the report as submission query parameters.
func (r Report) Values() url.Values {
	v := url.Values{}
	v.Set("lat", strconv.FormatFloat(r.Position.Lat, 'f', -1, 64))
	v.Set("lng", strconv.FormatFloat(r.Position.Lng, 'f', -1, 64))
	v.Set("stinkLevel", r.Category.Label())
	v.Set("stinkDuration", r.Duration.Label())
	v.Set("comment", r.Comment)
	v.Set("createdAt", r.CreatedAtString())
	return v
}

type wireReport struct {
	Lat           json.RawMessage `json:"lat"`
	Lng           json.RawMessage `json:"lng"`
	StinkLevel    *string         `json:"stinkLevel"`
	StinkDuration *string         `json:"stinkDuration"`
	Comment       *string         `json:"comment"`
	CreatedAt     *string         `json:"createdAt"`
}

// UnmarshalJSON decodes the endpoint's record shape. Missing or odd values
// never fail the decode; they are recorded and surfaced by Malformed.
func (r *Report) UnmarshalJSON(data []byte) error {
	var w wireReport
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}

	out := Report{}
	if lat, ok := parseCoordinate(w.Lat); ok {
		out.Position.Lat = lat
	} else {
		out.missing = append(out.missing, "lat")
	}
	if lng, ok := parseCoordinate(w.Lng); ok {
		out.Position.Lng = lng
	} else {
		out.missing = append(out.missing, "lng")
	}
	if w.StinkLevel != nil {
		out.Category = ParseCategory(*w.StinkLevel)
	} else {
		out.missing = append(out.missing, "stinkLevel")
	}
	if w.StinkDuration != nil {
		out.Duration = ParseDuration(*w.StinkDuration)
	}
	if w.Comment != nil {
		out.Comment = *w.Comment
	}
	if w.CreatedAt != nil {
		if ts, err := ParseTimestamp(*w.CreatedAt); err == nil {
			out.CreatedAt = ts
		} else {
			out.rawCreatedAt = *w.CreatedAt
			out.missing = append(out.missing, "createdAt")
		}
	} else {
		out.missing = append(out.missing, "createdAt")
	}

	*r = out
	return nil
}

// MarshalJSON emits the same shape the endpoint serves.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"lat":           r.Position.Lat,
		"lng":           r.Position.Lng,
		"stinkLevel":    r.Category.Label(),
		"stinkDuration": r.Duration.Label(),
		"comment":       r.Comment,
		"createdAt":     r.CreatedAtString(),
	})
}

// ParseTimestamp accepts RFC3339 with or without fractional seconds.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return ts, nil
}

func parseCoordinate(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
