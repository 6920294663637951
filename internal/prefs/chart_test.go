package prefs

import (
	"context"
	"errors"
	"testing"

	"github.com/stinkmap/stinkmap/internal/cache"
	"github.com/stinkmap/stinkmap/internal/engine"
	"github.com/stinkmap/stinkmap/internal/utils"
)

func TestLoadDefaultsWhenEmpty(t *testing.T) {
	p := NewChartPreferences(cache.NewMemoryProvider(), utils.UTCDays)
	spec, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if spec.Value != "7" {
		t.Fatalf("expected default 7, got %+v", spec)
	}
}

func TestSaveCustomRoundTrip(t *testing.T) {
	mem := cache.NewMemoryProvider()
	p := NewChartPreferences(mem, utils.UTCDays)
	want := engine.RangeSpec{Value: engine.RangeCustom, Start: "2024-01-01", End: "2024-01-10"}
	if err := p.Save(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := NewChartPreferences(mem, utils.UTCDays).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestSaveNumericClearsDates(t *testing.T) {
	mem := cache.NewMemoryProvider()
	p := NewChartPreferences(mem, utils.UTCDays)
	_ = p.Save(context.Background(), engine.RangeSpec{Value: engine.RangeCustom, Start: "2024-01-01", End: "2024-01-10"})
	if err := p.Save(context.Background(), engine.RangeSpec{Value: "30"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := mem.Get(context.Background(), KeyStartDate); err != cache.ErrCacheMiss {
		t.Fatalf("expected start date cleared, got %v", err)
	}
	got, _ := p.Load(context.Background())
	if got.Value != "30" || got.Start != "" {
		t.Fatalf("unexpected spec %+v", got)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	mem := cache.NewMemoryProvider()
	p := NewChartPreferences(mem, utils.UTCDays)
	cases := []engine.RangeSpec{
		{Value: "0"},
		{Value: "abc"},
		{Value: engine.RangeCustom, Start: "2024-02-01", End: "2024-01-01"},
		{Value: engine.RangeCustom, Start: "2024-02-01"},
	}
	for _, spec := range cases {
		if err := p.Save(context.Background(), spec); err == nil {
			t.Fatalf("expected %+v to be rejected", spec)
		}
	}
	if _, err := mem.Get(context.Background(), KeyRange); err != cache.ErrCacheMiss {
		t.Fatalf("invalid save must not write")
	}
}

type failingDel struct {
	*cache.MemoryProvider
}

func (failingDel) Del(context.Context, string) error { return errors.New("store offline") }

func TestSaveNumericReportsClearFailure(t *testing.T) {
	p := NewChartPreferences(failingDel{cache.NewMemoryProvider()}, utils.UTCDays)
	err := p.Save(context.Background(), engine.RangeSpec{Value: "14"})
	if err == nil {
		t.Fatalf("expected failed date clear to surface")
	}
	if got := err.Error(); got != "clear "+KeyStartDate+": store offline" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestNilProviderIsNoop(t *testing.T) {
	p := NewChartPreferences(nil, utils.UTCDays)
	if err := p.Save(context.Background(), engine.RangeSpec{Value: "14"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := p.Load(context.Background())
	if got.Value != "7" {
		t.Fatalf("noop provider should not persist, got %+v", got)
	}
}
