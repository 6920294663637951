package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stinkmap/stinkmap/internal/engine"
	"github.com/stinkmap/stinkmap/internal/export"
	"github.com/stinkmap/stinkmap/internal/gate"
	"github.com/stinkmap/stinkmap/internal/metrics"
	"github.com/stinkmap/stinkmap/internal/models"
	"github.com/stinkmap/stinkmap/internal/prefs"
	"github.com/stinkmap/stinkmap/internal/presentation"
	"github.com/stinkmap/stinkmap/internal/rpc"
	"github.com/stinkmap/stinkmap/internal/store"
	"github.com/stinkmap/stinkmap/internal/table"
	"github.com/stinkmap/stinkmap/internal/utils"
)

// ErrRefreshInProgress is returned when a refresh is requested while another
// one is still waiting on the endpoint.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// ReportClient is the endpoint surface the session needs. *rpc.Client
// satisfies it.
type ReportClient interface {
	FetchAll(ctx context.Context) ([]models.Report, error)
	Submit(ctx context.Context, report models.Report) (json.RawMessage, error)
}

// Options collects a Session's collaborators. Nil fields get defaults.
type Options struct {
	Logger *slog.Logger
	Client ReportClient
	Gate   *gate.SubmissionGate
	Prefs  *prefs.ChartPreferences
	Days   utils.DayPolicy
	Now    func() time.Time
}

// Session is the state of one browsing session: the working set, sort and
// filter state, the rate-limit clock and chart preferences. Nothing here is
// process-global; two sessions never share state.
type Session struct {
	logger     *slog.Logger
	client     ReportClient
	gate       *gate.SubmissionGate
	prefs      *prefs.ChartPreferences
	days       utils.DayPolicy
	now        func() time.Time
	store      *store.RecordStore
	table      *table.Model
	aggregator *engine.Aggregator
	latencies  *utils.LatencyTracker

	refreshing atomic.Bool

	mu          sync.Mutex
	lastErr     error
	lastAttempt time.Time
}

// NewSession wires a session around opts.
func NewSession(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gate == nil {
		opts.Gate = gate.New(gate.DefaultCooldown)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Prefs == nil {
		opts.Prefs = prefs.NewChartPreferences(nil, opts.Days)
	}
	return &Session{
		logger:     opts.Logger,
		client:     opts.Client,
		gate:       opts.Gate,
		prefs:      opts.Prefs,
		days:       opts.Days,
		now:        opts.Now,
		store:      store.New(opts.Days),
		table:      table.NewModel(),
		aggregator: engine.NewAggregator(opts.Days),
		latencies:  utils.NewLatencyTracker(256),
	}
}

// Refresh replaces the working set with a fresh fetch. On failure the
// existing records are left untouched.
func (s *Session) Refresh(ctx context.Context) (int, error) {
	if s.client == nil {
		return 0, utils.NewAppError("refresh", "endpoint not configured", nil)
	}
	if !s.refreshing.CompareAndSwap(false, true) {
		return 0, ErrRefreshInProgress
	}
	defer s.refreshing.Store(false)

	start := time.Now()
	records, err := s.client.FetchAll(ctx)
	s.recordAttempt(err)
	if err != nil {
		s.logger.Warn("refresh failed", slog.Any("error", err))
		return 0, err
	}
	elapsed := time.Since(start)
	s.latencies.Observe(elapsed)

	s.store.ReplaceAll(records, s.now())
	malformed := s.store.MalformedCount()
	metrics.SetRecords(len(records), malformed)
	if malformed > 0 {
		s.logger.Debug("kept malformed records", slog.Int("count", malformed))
	}
	s.logger.Info("records refreshed", slog.Int("count", len(records)), slog.Duration("elapsed", elapsed))
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("refresh latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	return len(records), nil
}

// Submit sends report through the gate. A blocked attempt makes no network
// call and returns a *gate.BlockedError. On success the report is handed back
// for immediate display; the working set only changes on the next Refresh.
func (s *Session) Submit(ctx context.Context, report models.Report) (models.Report, error) {
	if s.client == nil {
		return models.Report{}, utils.NewAppError("submit", "endpoint not configured", nil)
	}
	now := s.now()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now.UTC()
	}

	decision := s.gate.TryAcquire(now)
	metrics.ObserveSubmission(decision.Allowed)
	if err := decision.Err(); err != nil {
		s.logger.Debug("submission blocked", slog.Duration("retry_after", decision.RetryAfter))
		return models.Report{}, err
	}

	ack, err := s.client.Submit(ctx, report)
	if err != nil {
		s.logger.Warn("submission failed", slog.Any("error", err))
		return models.Report{}, err
	}
	s.logger.Info("report submitted", slog.String("category", string(report.Category)), slog.String("ack", string(ack)))
	return report, nil
}

// Reports returns the filtered, stably sorted view.
func (s *Session) Reports(spec store.FilterSpec, sort table.SortState) []models.Report {
	return table.View(s.store.All(), spec, sort, s.now(), s.days)
}

// Table exposes the session's table state for interactive views.
func (s *Session) Table() *table.Model { return s.table }

// Rows renders the table model against the current working set.
func (s *Session) Rows() []models.Report { return s.table.Rows(s.store, s.now()) }

// Store exposes the working set read-only operations.
func (s *Session) Store() *store.RecordStore { return s.store }

// Days returns the session's day policy.
func (s *Session) Days() utils.DayPolicy { return s.days }

// Now returns the session clock's current time.
func (s *Session) Now() time.Time { return s.now() }

// Trend builds the trend chart. A nil spec uses the saved preference; a
// non-nil spec is validated and saved before use.
func (s *Session) Trend(ctx context.Context, spec *engine.RangeSpec) (engine.Chart, engine.RangeSpec, error) {
	var chosen engine.RangeSpec
	if spec == nil {
		loaded, err := s.prefs.Load(ctx)
		if err != nil {
			s.logger.Warn("load chart preference failed", slog.Any("error", err))
		}
		chosen = loaded
	} else {
		if err := s.prefs.Save(ctx, *spec); err != nil {
			return engine.Chart{}, *spec, err
		}
		chosen = *spec
	}

	rng, err := chosen.Resolve(s.now(), s.days)
	if err != nil && spec == nil {
		// A stale stored range is not the caller's fault.
		s.logger.Warn("stored chart range unusable, using default",
			slog.String("range", chosen.Value), slog.Any("error", err))
		chosen = prefs.DefaultRange
		rng, err = chosen.Resolve(s.now(), s.days)
	}
	if err != nil {
		return engine.Chart{}, chosen, utils.NewAppError("trend", "invalid chart range", err)
	}
	counts := s.aggregator.DailyCounts(s.store.All(), rng, models.Categories)
	return s.aggregator.Chart(chosen.Title(), counts), chosen, nil
}

// Stats summarises the working set.
func (s *Session) Stats() engine.Statistics {
	return s.aggregator.Statistics(s.store.All(), s.now())
}

// Pins maps every record to its map marker.
func (s *Session) Pins() []presentation.Pin {
	now := s.now()
	records := s.store.All()
	pins := make([]presentation.Pin, 0, len(records))
	for _, r := range records {
		pins = append(pins, presentation.PinFor(r, now))
	}
	return pins
}

// ExportCSV writes the records matching category (empty for all) to w and
// returns the suggested filename.
func (s *Session) ExportCSV(w io.Writer, category models.Category) (string, error) {
	now := s.now()
	records := s.store.Filter(store.FilterSpec{Category: category}, now)
	if err := export.WriteCSV(w, records); err != nil {
		return "", utils.NewAppError("export", "could not write export", err)
	}
	return export.Filename(category, now, s.days), nil
}

// Healthy reports whether the most recent refresh succeeded.
func (s *Session) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastAttempt.IsZero() && s.lastErr == nil
}

// LastError returns the error from the most recent refresh, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// RefreshLatencyP95 returns the p95 refresh latency.
func (s *Session) RefreshLatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

func (s *Session) recordAttempt(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAttempt = s.now()
	s.lastErr = err
}

var _ ReportClient = (*rpc.Client)(nil)
