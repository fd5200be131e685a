package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/akhilsayshi/databot/adapters/clock"
	"github.com/akhilsayshi/databot/app"
	"github.com/akhilsayshi/databot/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current quota usage",
	Long: `Show current daily and hourly quota usage from the configured
window store. Burst counters are per-process and read as zero here; check
the running daemon's /status endpoint for its live burst state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus() error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	handles, err := buildStore(cfg, logger, false)
	if err != nil {
		return err
	}
	defer handles.close()

	admission := app.NewAdmissionService(app.AdmissionDeps{
		Store:  handles.store,
		Clock:  clock.Real{},
		Logger: logger,
	}, cfg.Quota.Limits())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := admission.Status(ctx)
	if err != nil {
		return fmt.Errorf("read quota status: %w", err)
	}

	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
