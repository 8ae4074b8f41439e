package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edusignal/exam-intel/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "exam-intel",
	Short: "Exam analytics pipeline",
	Long:  "Ingests exam rosters, validates and quarantines rows, computes per-subject analytics and diagnostic insights, and consolidates them into per-student reports.",
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
