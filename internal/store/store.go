package store

import (
	"sync"
	"time"

	"github.com/stinkmap/stinkmap/internal/models"
	"github.com/stinkmap/stinkmap/internal/utils"
)

// RecordStore holds the working set from the last fetch. It is only ever
// replaced wholesale; readers never observe a partial update.
type RecordStore struct {
	days utils.DayPolicy

	mu        sync.RWMutex
	records   []models.Report
	malformed int
	updatedAt time.Time
}

// New returns an empty store using days for calendar-day predicates.
func New(days utils.DayPolicy) *RecordStore {
	return &RecordStore{days: days}
}

// ReplaceAll discards the previous contents and keeps a copy of records.
func (s *RecordStore) ReplaceAll(records []models.Report, at time.Time) {
	next := make([]models.Report, len(records))
	copy(next, records)
	malformed := 0
	for _, r := range next {
		if r.Malformed() {
			malformed++
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = next
	s.malformed = malformed
	s.updatedAt = at
}

// All returns a copy of the contents in arrival order.
func (s *RecordStore) All() []models.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Report, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of held reports.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// MalformedCount returns how many held reports need fallback presentation.
func (s *RecordStore) MalformedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.malformed
}

// UpdatedAt is when ReplaceAll last ran; zero before the first load.
func (s *RecordStore) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Days exposes the store's day policy so aggregations agree with ByDay.
func (s *RecordStore) Days() utils.DayPolicy {
	return s.days
}

// Filter applies spec relative to now.
func (s *RecordStore) Filter(spec FilterSpec, now time.Time) []models.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Filter(s.records, spec, now, s.days)
}

// ByDay returns the reports created on dayKey (YYYY-MM-DD).
func (s *RecordStore) ByDay(dayKey string) []models.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return OnDay(s.records, dayKey, s.days)
}
