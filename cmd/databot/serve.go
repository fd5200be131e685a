package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/akhilsayshi/databot/adapters/clock"
	"github.com/akhilsayshi/databot/app"
	"github.com/akhilsayshi/databot/config"
	"github.com/akhilsayshi/databot/web"
)

var (
	devMode bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quota daemon",
	Long: `Start the quota daemon.

The daemon will:
  - Load configuration from databot.yaml (or --config), falling back to
    DATABOT_* environment variables
  - Connect the configured window store (memory, redis or sqlite)
  - Serve the operational API: /status, /healthz, /readyz and /metrics
  - Hot-reload quota limits on config file changes or SIGHUP`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "run with an in-process redis (no external services)")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}
	if devMode {
		// Dev mode runs against an in-process redis regardless of the
		// configured driver.
		cfg.Store.Driver = "redis"
	}
	logger := setupLogger(cfg)

	handles, err := buildStore(cfg, logger, devMode)
	if err != nil {
		return err
	}
	defer handles.close()

	admission := app.NewAdmissionService(app.AdmissionDeps{
		Store:  handles.store,
		Clock:  clock.Real{},
		Logger: logger,
	}, cfg.Quota.Limits())

	logger.Info().
		Str("instance", admission.InstanceID()).
		Str("store", cfg.Store.Driver).
		Int64("daily_limit", cfg.Quota.DailyLimit).
		Int64("hourly_limit", cfg.Quota.HourlyLimit).
		Int("per_minute_limit", cfg.Quota.PerMinuteLimit).
		Int("per_second_limit", cfg.Quota.PerSecondLimit).
		Msg("admission controller ready")

	// Hot reload only works off a config file; env-only deployments
	// restart to change limits.
	if _, statErr := os.Stat(cfgFile); statErr == nil {
		holder, holderErr := config.NewHolder(cfgFile, logger)
		if holderErr != nil {
			return holderErr
		}
		holder.OnChange(func(newCfg *config.Config) {
			admission.UpdateLimits(newCfg.Quota.Limits())
		})
		if watchErr := holder.WatchFile(); watchErr != nil {
			logger.Warn().Err(watchErr).Msg("config file watch unavailable")
		}
		holder.WatchSignals()
		defer holder.Stop()
	}

	// SQLite needs an occasional sweep of expired window rows.
	stopPurge := make(chan struct{})
	if handles.purge != nil {
		go purgeLoop(handles, logger, stopPurge)
	}
	defer close(stopPurge)

	handler := web.NewHandler(admission, handles.store, logger, web.Options{
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("status server listening")
		if srvErr := srv.ListenAndServe(); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
			errCh <- srvErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-errCh:
		return fmt.Errorf("status server: %w", err)
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func purgeLoop(handles *storeHandles, logger zerolog.Logger, stop chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := handles.purge(ctx)
			cancel()
			if err != nil {
				logger.Error().Err(err).Msg("expired window purge failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("rows", n).Msg("expired windows purged")
			}
		case <-stop:
			return
		}
	}
}
