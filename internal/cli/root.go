// Package cli implements the opsgate command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "opsgate",
	Short: "Local action gatekeeper for AI agents",
	Long:  "Classifies proposed agent actions against blacklist, auto-approve, and level rules,\nprompts for approval when needed, and records every decision in a hash-chained audit trail.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default: ~/.opsgate/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
