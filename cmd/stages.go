package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edusignal/exam-intel/internal/consolidate"
	"github.com/edusignal/exam-intel/internal/validate"
)

// Stage commands rerun one pipeline stage from the stored output of the
// previous one, for debugging threshold or rule changes without a full run.

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate stored raw records and rebuild the validated and quarantine tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		raws, err := env.Store.ListRawRecords(ctx)
		if err != nil {
			return eris.Wrap(err, "list raw records")
		}

		rules := validate.DefaultRules()
		if cfg.Validation.MinGrade > 0 {
			rules.MinGrade = cfg.Validation.MinGrade
		}
		if cfg.Validation.MaxGrade > 0 {
			rules.MaxGrade = cfg.Validation.MaxGrade
		}
		if cfg.Validation.DuplicatePolicy == string(validate.KeepLatest) {
			rules.DuplicatePolicy = validate.KeepLatest
		}

		res := validate.Validate(raws, rules)
		if err := env.Store.ReplaceValidated(ctx, res.Valid); err != nil {
			return eris.Wrap(err, "store validated records")
		}
		if err := env.Store.ReplaceRejects(ctx, res.Rejects); err != nil {
			return eris.Wrap(err, "store rejects")
		}

		zap.L().Info("validation complete",
			zap.Int("raw", len(raws)),
			zap.Int("valid", len(res.Valid)),
			zap.Int("rejected", len(res.Rejects)),
		)
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Recompute per-subject analytics from the validated table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		validated, err := env.Store.ListValidated(ctx)
		if err != nil {
			return eris.Wrap(err, "list validated records")
		}

		metrics := env.Analyzer.Analyze(validated)
		if err := env.Store.ReplaceMetrics(ctx, metrics); err != nil {
			return eris.Wrap(err, "store metrics")
		}

		zap.L().Info("analytics complete",
			zap.Int("records", len(validated)),
			zap.Int("metrics", len(metrics)),
		)
		return nil
	},
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Rebuild diagnostic insights from the analytics table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		metrics, err := env.Store.ListMetrics(ctx)
		if err != nil {
			return eris.Wrap(err, "list metrics")
		}

		insights := env.Engine.Explain(metrics)
		if err := env.Store.ReplaceInsights(ctx, insights); err != nil {
			return eris.Wrap(err, "store insights")
		}

		zap.L().Info("insights complete", zap.Int("insights", len(insights)))
		return nil
	},
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Rebuild per-student consolidations from stored insights and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		insights, err := env.Store.ListInsights(ctx)
		if err != nil {
			return eris.Wrap(err, "list insights")
		}
		metrics, err := env.Store.ListMetrics(ctx)
		if err != nil {
			return eris.Wrap(err, "list metrics")
		}

		byStudent := consolidate.GroupByStudent(insights, metrics)
		c := consolidate.New(env.Gen)
		saved := 0
		for _, sg := range byStudent {
			result, err := c.Consolidate(ctx, sg.StudentID, sg.Insights, sg.Metrics)
			if err != nil {
				zap.L().Warn("student skipped",
					zap.String("student_id", sg.StudentID),
					zap.Error(err),
				)
				continue
			}
			if err := env.Store.UpsertConsolidatedLatest(ctx, *result); err != nil {
				return eris.Wrapf(err, "save consolidation for %s", sg.StudentID)
			}
			if err := env.Store.AppendConsolidatedHistory(ctx, *result); err != nil {
				return eris.Wrapf(err, "save history for %s", sg.StudentID)
			}
			saved++
		}

		zap.L().Info("consolidation complete",
			zap.Int("students", len(byStudent)),
			zap.Int("saved", saved),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd, analyzeCmd, insightsCmd, consolidateCmd)
}
