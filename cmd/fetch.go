package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fetchSession string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch candidates and documents using a persisted session",
	Long:  "Replays a saved session against the discovered portal API without opening a browser. Defaults to the newest persisted session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		ctx := cmd.Context()

		env, err := initRunner(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		id := fetchSession
		if id == "" {
			latest, err := env.Sessions.Latest()
			if err != nil {
				return eris.Wrap(err, "find latest session")
			}
			if latest == nil {
				return eris.New("no persisted sessions; run login first")
			}
			id = latest.ID
		}

		sess, err := env.Sessions.LoadSession(id)
		if err != nil {
			return eris.Wrap(err, "load session")
		}
		if sess == nil {
			return eris.Errorf("session %q not found; run login first", id)
		}
		m, err := env.Sessions.LoadEndpointMap(id)
		if err != nil {
			return eris.Wrap(err, "load endpoint map")
		}

		result, err := env.Runner.RunFetch(ctx, sess, m, "cli")
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		zap.L().Info("fetch complete",
			zap.String("session_id", result.SessionID),
			zap.Int("candidates", result.Candidates),
			zap.Int("documents", result.Documents),
			zap.Int("failures", len(result.Failures)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchSession, "session", "", "session id (default: newest persisted session)")
	rootCmd.AddCommand(fetchCmd)
}
