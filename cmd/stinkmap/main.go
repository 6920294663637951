package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/stinkmap/stinkmap/internal/cache"
	"github.com/stinkmap/stinkmap/internal/config"
	"github.com/stinkmap/stinkmap/internal/gate"
	"github.com/stinkmap/stinkmap/internal/metrics"
	"github.com/stinkmap/stinkmap/internal/prefs"
	"github.com/stinkmap/stinkmap/internal/rpc"
	"github.com/stinkmap/stinkmap/internal/services"
	"github.com/stinkmap/stinkmap/internal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, utils.UserMessage(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "stinkmap",
		Short:         "Browse, submit and chart odor reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newFetchCmd(&configPath))
	root.AddCommand(newSubmitCmd(&configPath))
	root.AddCommand(newTableCmd(&configPath))
	root.AddCommand(newTrendCmd(&configPath))
	root.AddCommand(newStatsCmd(&configPath))
	root.AddCommand(newExportCmd(&configPath))
	root.AddCommand(newBrowseCmd(&configPath))
	root.AddCommand(newShareCmd(&configPath))
	return root
}

// app holds everything one command invocation needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	days    utils.DayPolicy
	prefs   cache.Provider
	session *services.Session
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	days, err := utils.NewDayPolicy(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	provider := openPrefs(cfg.Prefs, logger)

	var client services.ReportClient
	if cfg.Endpoint.URL != "" {
		c, err := rpc.NewClient(cfg.Endpoint.URL, cfg.Endpoint.Timeout,
			rpc.WithLogger(logger),
			rpc.WithHTTPClient(&http.Client{Timeout: cfg.Endpoint.HTTPTimeout}),
		)
		if err != nil {
			return nil, err
		}
		client = c
	}

	session := services.NewSession(services.Options{
		Logger: logger,
		Client: client,
		Gate:   gate.New(cfg.Gate.Cooldown),
		Prefs:  prefs.NewChartPreferences(provider, days),
		Days:   days,
	})
	return &app{cfg: cfg, logger: logger, days: days, prefs: provider, session: session}, nil
}

func (a *app) Close() {
	if a.prefs != nil {
		_ = a.prefs.Close()
	}
}

// openPrefs builds the configured preference backend, degrading to memory
// when a durable backend cannot be reached.
func openPrefs(cfg config.PrefsConfig, logger *slog.Logger) cache.Provider {
	switch cfg.Backend {
	case config.BackendNoop:
		return cache.NoopProvider{}
	case config.BackendSQLite:
		p, err := cache.NewSQLiteProvider(cfg.SQLitePath)
		if err == nil {
			return p
		}
		logger.Warn("sqlite preferences unavailable", slog.String("path", cfg.SQLitePath), slog.Any("error", err))
	case config.BackendValkey:
		p, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Valkey.Addr,
			Username:     cfg.Valkey.Username,
			Password:     cfg.Valkey.Password,
			DB:           cfg.Valkey.DB,
			DialTimeout:  cfg.Valkey.DialTimeout,
			ReadTimeout:  cfg.Valkey.ReadTimeout,
			WriteTimeout: cfg.Valkey.WriteTimeout,
			MaxRetries:   cfg.Valkey.MaxRetries,
			TLS:          cfg.Valkey.TLS,
		})
		if err == nil {
			return p
		}
		logger.Warn("valkey preferences unavailable", slog.Any("error", err))
	}
	return cache.NewMemoryProvider()
}
