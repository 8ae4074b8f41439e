package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var studentHistory bool

var studentCmd = &cobra.Command{
	Use:   "student <student-id>",
	Short: "Print a student's latest consolidated report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		studentID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if studentHistory {
			history, err := st.ListConsolidatedHistory(ctx, studentID)
			if err != nil {
				return eris.Wrap(err, "list history")
			}
			return enc.Encode(history)
		}

		c, err := st.GetConsolidatedLatest(ctx, studentID)
		if err != nil {
			return eris.Wrap(err, "get consolidation")
		}
		if c == nil {
			return eris.Errorf("no consolidation for student %s", studentID)
		}
		return enc.Encode(c)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline run reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		reports, err := st.ListRunReports(ctx, 0)
		if err != nil {
			return eris.Wrap(err, "list run reports")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	},
}

func init() {
	studentCmd.Flags().BoolVar(&studentHistory, "history", false, "print full consolidation history")
	rootCmd.AddCommand(studentCmd, runsCmd)
}
