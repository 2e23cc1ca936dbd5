package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the snapshot and push all documents to the search engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if e.indexer == nil {
			return eris.New("search.engine_url is not configured")
		}

		pushed, err := e.indexer.SyncAll(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("reindex complete", zap.Int("documents", pushed))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}
