package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/stinkmap/stinkmap/internal/api"
	"github.com/stinkmap/stinkmap/internal/services"
)

func newServeCmd(configPath *string) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API, metrics and gRPC dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(a, interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "refresh-interval", 5*time.Minute, "How often to re-fetch reports (0 disables)")
	return cmd
}

func serve(a *app, interval time.Duration) error {
	logger, cfg := a.logger, a.cfg
	logger.Info("starting stinkmap", slog.String("address", cfg.Admin.Address), slog.String("grpc", cfg.Admin.GRPCAddress))

	grpcServer, err := api.NewGRPCServer(cfg.Admin.GRPCAddress, api.NewDashboardServer(a.session), cfg.Admin.GracefulTimeout)
	if err != nil {
		return err
	}

	onRefresh := func(err error) { grpcServer.SetServing(err == nil) }
	router := api.NewRouter(a.session, cfg.Admin.AccessKey, logger, api.WithRefreshHook(onRefresh))
	httpServer := &http.Server{
		Addr:         cfg.Admin.Address,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Endpoint.Timeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Admin.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Admin.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Admin.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Error("gRPC server exited", slog.Any("error", err))
			stop()
		}
	}()

	go func() {
		logger.Info("admin server listening", slog.String("address", cfg.Admin.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server exited", slog.Any("error", err))
			stop()
		}
	}()

	go refreshLoop(ctx, a.session, interval, cfg.Endpoint.Timeout, onRefresh, logger)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grpcServer.GracefulTimeout())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("admin server shutdown", slog.Any("error", err))
	}
	grpcServer.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("stinkmap stopped")
	return nil
}

// refreshLoop loads reports once immediately and then every interval.
// Failures are logged and leave the working set as it was.
func refreshLoop(ctx context.Context, session *services.Session, interval, timeout time.Duration, onRefresh func(error), logger *slog.Logger) {
	run := func() {
		callCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
		defer cancel()
		_, err := session.Refresh(callCtx)
		if errors.Is(err, services.ErrRefreshInProgress) {
			return
		}
		onRefresh(err)
	}

	run()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
