package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akhilsayshi/databot/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithFallback(cfgFile)
		if err != nil {
			return err
		}

		fmt.Println("Configuration OK")
		fmt.Printf("  store:            %s\n", cfg.Store.Driver)
		fmt.Printf("  daily limit:      %d\n", cfg.Quota.DailyLimit)
		fmt.Printf("  hourly limit:     %d\n", cfg.Quota.HourlyLimit)
		fmt.Printf("  per-minute limit: %d\n", cfg.Quota.PerMinuteLimit)
		fmt.Printf("  per-second limit: %d\n", cfg.Quota.PerSecondLimit)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
