package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/press-directory/internal/batch"
)

var ingestUploadedBy string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.csv>",
	Short: "Bulk-load a press-release CSV export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}

		result, err := e.loader.Load(ctx, f, batch.Meta{
			Filename:   filepath.Base(path),
			FileSize:   info.Size(),
			UploadedBy: ingestUploadedBy,
		})
		if err != nil {
			return err
		}

		zap.L().Info("ingestion finished",
			zap.String("batch_id", result.BatchID),
			zap.Int64("staged", result.Staged),
			zap.Int64("promoted", result.Promoted),
			zap.Int("errors", result.Errors),
			zap.String("status", result.Status),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestUploadedBy, "uploaded-by", "", "operator recorded on the batch")
	rootCmd.AddCommand(ingestCmd)
}
