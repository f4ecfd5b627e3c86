package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sarbstats/econ-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "econ-cli",
	Short: "SARB economic indicators pipeline",
	Long:  "Lands SARB indicator observations in a tiered warehouse (raw, validated, reporting), computes composite scores, and optionally attaches AI commentary.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
