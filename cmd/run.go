package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full analytics pipeline over stored raw records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, runErr := env.Pipeline.Run(ctx)
		if report != nil {
			if runJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					zap.L().Warn("encode report", zap.Error(encErr))
				}
			} else {
				zap.L().Info("run report",
					zap.String("run_id", report.RunID),
					zap.Int("raw", report.RawCount),
					zap.Int("validated", report.ValidatedCount),
					zap.Int("rejected", report.RejectedCount),
					zap.Int("metrics", report.MetricCount),
					zap.Int("insights", report.InsightCount),
					zap.Int("narratives", report.NarrativeCount),
					zap.Int("consolidated", report.ConsolidatedCount),
					zap.Int("skipped_students", len(report.Skipped)),
				)
			}
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run report as JSON")
	rootCmd.AddCommand(runCmd)
}
