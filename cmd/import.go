package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edusignal/exam-intel/internal/ingest"
	"github.com/edusignal/exam-intel/internal/model"
)

var (
	importFile   string
	importFTPURL string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an exam roster (CSV or XLSX, local or FTP) into the raw table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if (importFile == "") == (importFTPURL == "") {
			return eris.New("exactly one of --file or --ftp-url is required")
		}

		var (
			records []model.ExamRecord
			source  string
			err     error
		)
		switch {
		case importFile != "":
			source = importFile
			records, err = ingest.ReadFile(ctx, importFile)
		default:
			source = importFTPURL
			fetcher := ingest.NewFTPFetcher(ingest.FTPOptions{
				Timeout: time.Duration(cfg.Import.FTPTimeoutSecs) * time.Second,
			})
			records, err = fetcher.FetchRoster(ctx, importFTPURL)
		}
		if err != nil {
			return eris.Wrap(err, "read roster")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		if err := st.AppendRawRecords(ctx, records); err != nil {
			return eris.Wrap(err, "store raw records")
		}

		zap.L().Info("import complete",
			zap.Int("records", len(records)),
			zap.String("source", source),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to a local roster file")
	importCmd.Flags().StringVar(&importFTPURL, "ftp-url", "", "ftp:// URL of a roster file")
	rootCmd.AddCommand(importCmd)
}
