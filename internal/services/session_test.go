package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stinkmap/stinkmap/internal/cache"
	"github.com/stinkmap/stinkmap/internal/engine"
	"github.com/stinkmap/stinkmap/internal/gate"
	"github.com/stinkmap/stinkmap/internal/models"
	"github.com/stinkmap/stinkmap/internal/prefs"
	"github.com/stinkmap/stinkmap/internal/rpc"
	"github.com/stinkmap/stinkmap/internal/store"
	"github.com/stinkmap/stinkmap/internal/table"
	"github.com/stinkmap/stinkmap/internal/utils"
)

type clientStub struct {
	mu        sync.Mutex
	records   []models.Report
	fetchErr  error
	submitErr error
	submitted []models.Report
	block     chan struct{}
}

func (c *clientStub) FetchAll(ctx context.Context) ([]models.Report, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records, c.fetchErr
}

func (c *clientStub) Submit(ctx context.Context, report models.Report) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	c.submitted = append(c.submitted, report)
	return json.RawMessage(`{"success":true}`), nil
}

var fixedNow = time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

func newTestSession(client *clientStub) *Session {
	return NewSession(Options{
		Client: client,
		Days:   utils.UTCDays,
		Now:    func() time.Time { return fixedNow },
		Prefs:  prefs.NewChartPreferences(cache.NewMemoryProvider(), utils.UTCDays),
	})
}

func sample() []models.Report {
	return []models.Report{
		models.NewReport(1, 1, models.CategoryMild, models.DurationAWhile, "garbage truck", time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)),
		models.NewReport(2, 2, models.CategoryMild, models.DurationAllDay, "sewer", time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)),
		models.NewReport(3, 3, models.CategoryStrong, models.DurationJustStarted, "Sewer again", time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)),
	}
}

func TestRefreshReplacesWorkingSet(t *testing.T) {
	client := &clientStub{records: sample()}
	s := newTestSession(client)

	n, err := s.Refresh(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("expected 3 records, got %d (%v)", n, err)
	}
	if !s.Healthy() {
		t.Fatalf("expected healthy after successful refresh")
	}

	client.records = nil
	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if s.Store().Len() != 0 {
		t.Fatalf("expected empty store after empty fetch, got %d", s.Store().Len())
	}
}

func TestRefreshFailureKeepsRecords(t *testing.T) {
	client := &clientStub{records: sample()}
	s := newTestSession(client)
	_, _ = s.Refresh(context.Background())

	client.fetchErr = rpc.ErrTimedOut
	if _, err := s.Refresh(context.Background()); !errors.Is(err, rpc.ErrTimedOut) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if s.Store().Len() != 3 {
		t.Fatalf("failed refresh must not touch records, got %d", s.Store().Len())
	}
	if s.Healthy() {
		t.Fatalf("expected unhealthy after failed refresh")
	}
}

func TestRefreshLoadGuard(t *testing.T) {
	client := &clientStub{records: sample(), block: make(chan struct{})}
	s := newTestSession(client)

	done := make(chan error, 1)
	go func() {
		_, err := s.Refresh(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !s.refreshing.Load() {
		if time.Now().After(deadline) {
			t.Fatalf("first refresh never started")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := s.Refresh(context.Background()); !errors.Is(err, ErrRefreshInProgress) {
		t.Fatalf("expected ErrRefreshInProgress, got %v", err)
	}
	close(client.block)
	if err := <-done; err != nil {
		t.Fatalf("first refresh: %v", err)
	}
}

func TestSubmitGated(t *testing.T) {
	client := &clientStub{}
	now := fixedNow
	s := NewSession(Options{Client: client, Days: utils.UTCDays, Now: func() time.Time { return now }})

	report := models.NewReport(1, 2, models.CategorySevere, models.DurationNeverEnding, "", time.Time{})
	got, err := s.Submit(context.Background(), report)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if !got.CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected createdAt stamped with session clock, got %s", got.CreatedAt)
	}

	now = fixedNow.Add(179 * time.Second)
	_, err = s.Submit(context.Background(), report)
	var blocked *gate.BlockedError
	if !errors.As(err, &blocked) || !errors.Is(err, gate.ErrRateLimited) {
		t.Fatalf("expected blocked error, got %v", err)
	}
	if blocked.RetryAfter != time.Second {
		t.Fatalf("expected 1s retry, got %s", blocked.RetryAfter)
	}
	if len(client.submitted) != 1 {
		t.Fatalf("blocked submit must not reach the endpoint")
	}
	if s.Store().Len() != 0 {
		t.Fatalf("submit must not mutate the working set")
	}
}

func TestSubmitServerError(t *testing.T) {
	client := &clientStub{submitErr: &rpc.ServerError{Message: "sheet locked"}}
	s := newTestSession(client)
	_, err := s.Submit(context.Background(), models.NewReport(0, 0, models.CategoryMild, models.DurationAWhile, "", fixedNow))
	if !rpc.IsServerError(err) {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestReportsAndRows(t *testing.T) {
	s := newTestSession(&clientStub{records: sample()})
	_, _ = s.Refresh(context.Background())

	rows := s.Reports(store.FilterSpec{Text: "sewer"}, table.SortState{Column: table.ColumnDuration, Direction: table.Asc})
	if len(rows) != 2 || rows[0].Duration != models.DurationJustStarted {
		t.Fatalf("unexpected rows %+v", rows)
	}

	s.Table().ToggleSort(table.ColumnLat)
	if got := s.Rows(); len(got) != 3 || got[0].Position.Lat != 1 {
		t.Fatalf("unexpected table rows %+v", got)
	}
}

func TestTrendPersistsPreference(t *testing.T) {
	s := newTestSession(&clientStub{records: sample()})
	_, _ = s.Refresh(context.Background())

	spec := engine.RangeSpec{Value: engine.RangeCustom, Start: "2024-01-01", End: "2024-01-02"}
	chart, _, err := s.Trend(context.Background(), &spec)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(chart.Days) != 2 || chart.Series[0].Data[0] != 2 || chart.Series[0].Data[1] != 1 {
		t.Fatalf("unexpected chart %+v", chart)
	}

	_, loaded, err := s.Trend(context.Background(), nil)
	if err != nil {
		t.Fatalf("trend from prefs: %v", err)
	}
	if loaded != spec {
		t.Fatalf("expected saved spec %+v, got %+v", spec, loaded)
	}

	bad := engine.RangeSpec{Value: engine.RangeCustom, Start: "2024-01-05", End: "2024-01-01"}
	_, _, err = s.Trend(context.Background(), &bad)
	if err == nil {
		t.Fatalf("expected inverted range to be rejected")
	}
	var appErr *utils.AppError
	if !errors.As(err, &appErr) || appErr.Msg != "invalid chart range" {
		t.Fatalf("expected app error with a summary message, got %v", err)
	}
	if cause := appErr.Err.Error(); strings.Count(err.Error(), cause) != 1 {
		t.Fatalf("cause repeated in %q", err.Error())
	}
}

func TestTrendDefaultsToSevenDays(t *testing.T) {
	s := newTestSession(&clientStub{})
	chart, spec, err := s.Trend(context.Background(), nil)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if spec.Value != "7" || len(chart.Days) != 7 {
		t.Fatalf("expected 7 zero-filled days, got %+v", chart.Days)
	}
	for _, v := range chart.Series[0].Data {
		if v != 0 {
			t.Fatalf("expected all zeros, got %v", chart.Series[0].Data)
		}
	}
}

func TestTrendFallsBackWhenStoredRangeIsInverted(t *testing.T) {
	ctx := context.Background()
	provider := cache.NewMemoryProvider()
	_ = provider.Set(ctx, prefs.KeyRange, []byte(engine.RangeCustom), 0)
	_ = provider.Set(ctx, prefs.KeyStartDate, []byte("2024-02-01"), 0)
	_ = provider.Set(ctx, prefs.KeyEndDate, []byte("2024-01-01"), 0)

	s := NewSession(Options{
		Client: &clientStub{records: sample()},
		Days:   utils.UTCDays,
		Now:    func() time.Time { return fixedNow },
		Prefs:  prefs.NewChartPreferences(provider, utils.UTCDays),
	})
	_, _ = s.Refresh(ctx)

	chart, spec, err := s.Trend(ctx, nil)
	if err != nil {
		t.Fatalf("stored inverted range should fall back, got %v", err)
	}
	if spec != prefs.DefaultRange || len(chart.Days) != 7 {
		t.Fatalf("expected default 7-day chart, got %+v over %d days", spec, len(chart.Days))
	}
}

func TestStatsPinsExport(t *testing.T) {
	s := newTestSession(&clientStub{records: sample()})
	_, _ = s.Refresh(context.Background())

	stats := s.Stats()
	if stats.Total != 3 || stats.Today != 1 || stats.MostCommonAll != models.CategoryMild {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if pins := s.Pins(); len(pins) != 3 {
		t.Fatalf("expected 3 pins, got %d", len(pins))
	}

	var buf bytes.Buffer
	name, err := s.ExportCSV(&buf, models.CategoryMild)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if name != "stinks_mild_2024-01-02.csv" {
		t.Fatalf("unexpected filename %q", name)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Fatalf("expected header plus 2 mild rows, got %d lines", lines)
	}
}

func TestNoClientConfigured(t *testing.T) {
	s := NewSession(Options{Days: utils.UTCDays})
	if _, err := s.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error without client")
	}
}
