package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one full login, fetch, and sheet sync cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		ctx := cmd.Context()

		env, err := initRunner(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Runner.RunFull(ctx, "cli")
		if err != nil {
			return eris.Wrap(err, "run")
		}

		zap.L().Info("run complete",
			zap.String("session_id", result.SessionID),
			zap.Int("candidates", result.Candidates),
			zap.Int("documents", result.Documents),
			zap.Int("failures", len(result.Failures)),
			zap.Bool("handed_off", result.HandedOff),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
