// Package prefs persists the trend chart's range selection across sessions.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/stinkmap/stinkmap/internal/cache"
	"github.com/stinkmap/stinkmap/internal/engine"
	"github.com/stinkmap/stinkmap/internal/utils"
)

// Preference keys, shared with the browser build.
const (
	KeyRange     = "chartRange"
	KeyStartDate = "chartStartDate"
	KeyEndDate   = "chartEndDate"
)

// DefaultRange applies when nothing has been saved.
var DefaultRange = engine.RangeSpec{Value: strconv.Itoa(engine.DefaultTrailingDays)}

// ChartPreferences reads and writes the chart range over a cache.Provider.
type ChartPreferences struct {
	provider cache.Provider
	days     utils.DayPolicy
}

// NewChartPreferences wraps provider. A nil provider behaves like cache.NoopProvider.
func NewChartPreferences(provider cache.Provider, days utils.DayPolicy) *ChartPreferences {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &ChartPreferences{provider: provider, days: days}
}

// Load returns the saved range, or DefaultRange when none is stored.
// Dates are only read back for a custom range.
func (p *ChartPreferences) Load(ctx context.Context) (engine.RangeSpec, error) {
	value, err := p.get(ctx, KeyRange)
	if err != nil {
		return DefaultRange, err
	}
	if value == "" {
		return DefaultRange, nil
	}
	spec := engine.RangeSpec{Value: value}
	if value == engine.RangeCustom {
		if spec.Start, err = p.get(ctx, KeyStartDate); err != nil {
			return DefaultRange, err
		}
		if spec.End, err = p.get(ctx, KeyEndDate); err != nil {
			return DefaultRange, err
		}
	}
	return spec, nil
}

// Save validates spec and stores it. A non-custom range clears stale dates.
func (p *ChartPreferences) Save(ctx context.Context, spec engine.RangeSpec) error {
	if err := spec.Validate(p.days); err != nil {
		return utils.NewAppError("prefs.save", "invalid chart range", err)
	}
	if err := p.provider.Set(ctx, KeyRange, []byte(spec.Value), 0); err != nil {
		return fmt.Errorf("save %s: %w", KeyRange, err)
	}
	if spec.Value != engine.RangeCustom {
		for _, key := range []string{KeyStartDate, KeyEndDate} {
			if err := p.provider.Del(ctx, key); err != nil {
				return fmt.Errorf("clear %s: %w", key, err)
			}
		}
		return nil
	}
	if err := p.provider.Set(ctx, KeyStartDate, []byte(spec.Start), 0); err != nil {
		return fmt.Errorf("save %s: %w", KeyStartDate, err)
	}
	if err := p.provider.Set(ctx, KeyEndDate, []byte(spec.End), 0); err != nil {
		return fmt.Errorf("save %s: %w", KeyEndDate, err)
	}
	return nil
}

func (p *ChartPreferences) get(ctx context.Context, key string) (string, error) {
	raw, err := p.provider.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	return string(raw), nil
}
