package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/runner"
	"github.com/talentops/bgvsync/internal/session"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in once, map the portal API, and persist the session",
	Long:  "Performs the scripted portal login with mailbox OTP pickup, records the API calls the portal makes while navigating the report tabs, and saves the session state and endpoint map for later fetch runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("login"); err != nil {
			return err
		}

		ctx := cmd.Context()

		sessions, err := session.NewStore(cfg.Browser.StateDir)
		if err != nil {
			return err
		}

		disc, err := runner.NewLive(cfg, sessions).LoginAndDiscover(ctx)
		if err != nil {
			return eris.Wrap(err, "login")
		}
		disc.Close()

		zap.L().Info("session established",
			zap.String("session_id", disc.Session.ID),
			zap.Int("endpoints", disc.Map.Total()),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"session_id": disc.Session.ID,
			"endpoints":  disc.Map.Total(),
			"map_path":   sessions.MapPath(disc.Session.ID),
		})
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
