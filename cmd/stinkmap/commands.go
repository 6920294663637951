package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/stinkmap/stinkmap/internal/engine"
	"github.com/stinkmap/stinkmap/internal/gate"
	"github.com/stinkmap/stinkmap/internal/models"
	"github.com/stinkmap/stinkmap/internal/presentation"
	"github.com/stinkmap/stinkmap/internal/store"
	"github.com/stinkmap/stinkmap/internal/table"
	"github.com/stinkmap/stinkmap/internal/ui"
	"github.com/stinkmap/stinkmap/internal/utils"
)

// withLoadedApp loads config, refreshes once, and hands the app to fn.
func withLoadedApp(configPath string, fn func(context.Context, *app) error) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Endpoint.Timeout+time.Second)
	defer cancel()
	if _, err := a.session.Refresh(ctx); err != nil {
		return utils.NewAppError("refresh", "could not load reports: "+utils.UserMessage(err), err)
	}
	return fn(context.Background(), a)
}

func newFetchCmd(configPath *string) *cobra.Command {
	var asPins bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch every report and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLoadedApp(*configPath, func(_ context.Context, a *app) error {
				var out any = a.session.Store().All()
				if asPins {
					out = a.session.Pins()
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	cmd.Flags().BoolVar(&asPins, "pins", false, "print map markers (color, opacity, summary) instead of records")
	return cmd
}

func newSubmitCmd(configPath *string) *cobra.Command {
	var (
		lat, lng        float64
		level, duration string
		comment         string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one odor report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			category := models.ParseCategory(level)
			dur := models.ParseDuration(duration)
			if !category.Known() {
				return fmt.Errorf("unknown stink level %q", level)
			}
			if !dur.Known() {
				return fmt.Errorf("unknown duration %q", duration)
			}
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Endpoint.Timeout+time.Second)
			defer cancel()
			report, err := a.session.Submit(ctx, models.NewReport(lat, lng, category, dur, comment, time.Time{}))
			var blocked *gate.BlockedError
			if errors.As(err, &blocked) {
				return fmt.Errorf("please wait %s before submitting again", blocked.RetryAfter.Round(time.Second))
			}
			if err != nil {
				return err
			}
			pin := presentation.PinFor(report, report.CreatedAt)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "submitted: %s (%s)\n", pin.Summary, pin.Color)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude in degrees")
	cmd.Flags().StringVar(&level, "level", string(models.CategoryMild), "stink level: mild|strong|severe|unbearable")
	cmd.Flags().StringVar(&duration, "duration", string(models.DurationJustStarted), "duration: just-started|a-while|all-day|never-ending")
	cmd.Flags().StringVar(&comment, "comment", "", "optional comment")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func newTableCmd(configPath *string) *cobra.Command {
	var search, category, window, sortCol, sortDir string
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print reports as a filtered, sorted table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := store.ParseTimeWindow(window)
			if err != nil {
				return err
			}
			sort := table.DefaultSort
			if sortCol != "" {
				if sort.Column, err = table.ParseColumn(sortCol); err != nil {
					return err
				}
				if sort.Direction, err = table.ParseDirection(sortDir); err != nil {
					return err
				}
			}
			spec := store.FilterSpec{Text: search, Category: store.ParseCategoryFilter(category), Window: w}
			return withLoadedApp(*configPath, func(_ context.Context, a *app) error {
				return printTable(cmd.OutOrStdout(), a.session.Reports(spec, sort), sort, a.days)
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "q", "", "case-insensitive comment search")
	cmd.Flags().StringVar(&category, "category", "all", "category filter")
	cmd.Flags().StringVar(&window, "window", "all", "time window: all|today|week|month")
	cmd.Flags().StringVar(&sortCol, "sort", "", "sort column: stinkLevel|stinkDuration|createdAt|comment|lat|lng")
	cmd.Flags().StringVar(&sortDir, "dir", "asc", "sort direction: asc|desc")
	return cmd
}

func printTable(out io.Writer, rows []models.Report, sort table.SortState, days utils.DayPolicy) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, col := range table.Columns {
		if i > 0 {
			_, _ = fmt.Fprint(tw, "\t")
		}
		_, _ = fmt.Fprintf(tw, "%s %s", col.Title(), sort.Indicator(col))
	}
	_, _ = fmt.Fprintln(tw)
	for _, r := range rows {
		created := r.CreatedAtString()
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.In(days.Location()).Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Category.Label(), r.Duration.Label(), created, r.Comment,
			strconv.FormatFloat(r.Position.Lat, 'f', 4, 64),
			strconv.FormatFloat(r.Position.Lng, 'f', 4, 64))
	}
	return tw.Flush()
}

func newTrendCmd(configPath *string) *cobra.Command {
	var rangeValue, start, end string
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Print daily report counts; a given range is remembered",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLoadedApp(*configPath, func(ctx context.Context, a *app) error {
				var spec *engine.RangeSpec
				if rangeValue != "" {
					spec = &engine.RangeSpec{Value: rangeValue, Start: start, End: end}
				}
				chart, _, err := a.session.Trend(ctx, spec)
				if err != nil {
					return err
				}
				return printChart(cmd.OutOrStdout(), chart)
			})
		},
	}
	cmd.Flags().StringVar(&rangeValue, "range", "", `day count ("7", "14", "30", ...) or "custom"; empty uses the saved choice`)
	cmd.Flags().StringVar(&start, "start", "", "custom range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "custom range end (YYYY-MM-DD)")
	return cmd
}

func printChart(out io.Writer, chart engine.Chart) error {
	_, _ = fmt.Fprintln(out, chart.Title)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprint(tw, "Day\t")
	for _, s := range chart.Series {
		_, _ = fmt.Fprintf(tw, "%s\t", s.Label)
	}
	_, _ = fmt.Fprintln(tw)
	for i, day := range chart.Days {
		_, _ = fmt.Fprintf(tw, "%s\t", day)
		for _, s := range chart.Series {
			_, _ = fmt.Fprintf(tw, "%d\t", s.Data[i])
		}
		_, _ = fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func newStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print report totals and most common categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLoadedApp(*configPath, func(_ context.Context, a *app) error {
				st := a.session.Stats()
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "Total reports:      %d\n", st.Total)
				_, _ = fmt.Fprintf(out, "Reports today:      %d\n", st.Today)
				_, _ = fmt.Fprintf(out, "Most common today:  %s\n", describe(st.MostCommonToday, st.TodayCount))
				_, _ = fmt.Fprintf(out, "Most common ever:   %s\n", describe(st.MostCommonAll, st.MostCommonAllCnt))
				return nil
			})
		},
	}
}

func describe(c models.Category, n int) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprintf("%s (%d)", c.Label(), n)
}

func newExportCmd(configPath *string) *cobra.Command {
	var category, dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write reports to a CSV file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLoadedApp(*configPath, func(_ context.Context, a *app) error {
				tmp, err := os.CreateTemp(dir, "stinks-*.csv")
				if err != nil {
					return err
				}
				defer os.Remove(tmp.Name())

				name, err := a.session.ExportCSV(tmp, store.ParseCategoryFilter(category))
				if cerr := tmp.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				target := filepath.Join(dir, name)
				if err := os.Rename(tmp.Name(), target); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), target)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "all", "category filter")
	cmd.Flags().StringVar(&dir, "dir", ".", "output directory")
	return cmd
}

func newBrowseCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse reports interactively",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			_, err = tea.NewProgram(ui.New(a.session, a.cfg.Endpoint.Timeout+time.Second), tea.WithAltScreen()).Run()
			return err
		},
	}
}
