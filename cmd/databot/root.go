package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "databot",
	Short: "Quota-aware admission control for the metered video API",
	Long: `Databot's quota daemon tracks video API usage against daily, hourly,
per-minute and per-second budgets, and gates every outbound call so the
bot never exceeds the provider's quota.

Quick start:
  databot serve     # Start the quota daemon with the status API
  databot status    # Show current quota usage

Management:
  databot validate  # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "databot.yaml", "config file path")
}
