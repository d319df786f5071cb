package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sheetsDir string

var sheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "Merge previously fetched exports into the Google Sheet",
	Long:  "Reads the exports a fetch run persisted to disk and merges them into the configured spreadsheet, writing the audit trail alongside.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sheets"); err != nil {
			return err
		}

		ctx := cmd.Context()

		env, err := initRunner(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		dir := sheetsDir
		if dir == "" {
			dir = cfg.Fetch.OutDir
		}

		sync, err := env.Runner.RunSheets(ctx, dir)
		if err != nil {
			return eris.Wrap(err, "sheets")
		}

		zap.L().Info("sheets synced",
			zap.Int("added", sync.Added),
			zap.Int("updated", sync.Updated),
			zap.Int("audited", sync.Audited),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sync)
	},
}

func init() {
	sheetsCmd.Flags().StringVar(&sheetsDir, "dir", "", "exports directory (default from config)")
	rootCmd.AddCommand(sheetsCmd)
}
