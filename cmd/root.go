package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/stopcensus/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "stopcensus",
	Short: "Transit stop coverage by census dissemination area",
	Long:  "Counts transit stops per census dissemination area, derives density, income and commuting metrics, and writes interactive maps, correlation plots and a workbook.",
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
