package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bgvsync",
	Short: "BGV portal extraction and sheet sync",
	Long:  "Logs into the BGV compliance portal with mailbox OTP pickup, discovers the portal API from live browser traffic, fetches candidate records and documents in bulk, and merges the results into a shared Google Sheet.",
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
