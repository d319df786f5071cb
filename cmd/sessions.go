package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/session"
)

var pruneKeep int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and rotate persisted portal sessions",
}

type sessionRow struct {
	ID      string    `json:"id"`
	SavedAt time.Time `json:"saved_at"`
}

// listSessions returns the persisted sessions newest first.
func listSessions(sessions *session.Store) ([]sessionRow, error) {
	entries, err := sessions.Sessions()
	if err != nil {
		return nil, err
	}
	rows := make([]sessionRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, sessionRow{ID: e.ID, SavedAt: e.SavedAt})
	}
	return rows, nil
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := session.NewStore(cfg.Browser.StateDir)
		if err != nil {
			return err
		}
		rows, err := listSessions(sessions)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	},
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop all but the newest sessions and their endpoint maps",
	RunE: func(cmd *cobra.Command, args []string) error {
		keep := pruneKeep
		if keep == 0 {
			keep = cfg.Sessions.Keep
		}

		sessions, err := session.NewStore(cfg.Browser.StateDir)
		if err != nil {
			return err
		}
		removed, err := sessions.Rotate(keep)
		if err != nil {
			return err
		}

		zap.L().Info("sessions pruned",
			zap.Int("keep", keep),
			zap.Strings("removed", removed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"keep":    keep,
			"removed": removed,
		})
	},
}

func init() {
	sessionsPruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "sessions to keep (default from config)")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsPruneCmd)
	rootCmd.AddCommand(sessionsCmd)
}
