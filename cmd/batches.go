package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/press-directory/internal/model"
)

var batchesLimit int

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List recent upload batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		batches, err := e.tracker.List(ctx, batchesLimit)
		if err != nil {
			return err
		}

		for _, b := range batches {
			fmt.Printf("%s  %-10s  %6d/%d rows  %d errors  %s\n",
				b.CreatedAt.Format("2006-01-02 15:04"), b.Status,
				b.SuccessCount, b.TotalCount, b.ErrorCount, b.Filename)
		}
		return nil
	},
}

var batchesDeleteCmd = &cobra.Command{
	Use:   "delete <batch-id>",
	Short: "Delete a batch and every release it ingested",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		deleted, err := e.tracker.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("deleted batch %s (%d releases)\n", args[0], deleted)
		return nil
	},
}

var batchesProgressCmd = &cobra.Command{
	Use:   "progress <batch-id>",
	Short: "Show ingestion progress for one batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.tracker.Progress(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d/%d processed, %d errors (%s)\n",
			p.BatchID, p.Processed, p.Total, p.Errors, p.Status)
		if p.Status != model.StatusProcessing {
			fmt.Println("batch is finished")
		}
		return nil
	},
}

func init() {
	batchesCmd.Flags().IntVar(&batchesLimit, "limit", 50, "number of batches to list")
	batchesCmd.AddCommand(batchesDeleteCmd, batchesProgressCmd)
	rootCmd.AddCommand(batchesCmd)
}
