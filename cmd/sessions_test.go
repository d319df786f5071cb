package main

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentops/bgvsync/internal/model"
	"github.com/talentops/bgvsync/internal/session"
)

func seedSessionStore(t *testing.T, n int) *session.Store {
	t.Helper()
	sessions, err := session.NewStore(t.TempDir())
	require.NoError(t, err)

	base := time.Now().Add(-time.Duration(n) * time.Hour)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("sess-%d", i)
		require.NoError(t, sessions.SaveSession(&model.Session{ID: id, CreatedAt: base}))
		require.NoError(t, sessions.SaveEndpointMap(model.NewEndpointMap(id)))
		// Distinct mtimes, oldest first.
		mtime := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(sessions.SessionPath(id), mtime, mtime))
	}
	return sessions
}

func TestListSessions_NewestFirst(t *testing.T) {
	sessions := seedSessionStore(t, 3)

	rows, err := listSessions(sessions)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "sess-2", rows[0].ID)
	assert.Equal(t, "sess-0", rows[2].ID)
}

func TestListSessions_Empty(t *testing.T) {
	sessions, err := session.NewStore(t.TempDir())
	require.NoError(t, err)

	rows, err := listSessions(sessions)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSessionsPrune_KeepsNewest(t *testing.T) {
	sessions := seedSessionStore(t, 5)

	removed, err := sessions.Rotate(3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sess-0", "sess-1"}, removed)

	rows, err := listSessions(sessions)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "sess-4", rows[0].ID)
}

func TestSessionsCommand_Registered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range sessionsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["prune"])

	keep := sessionsPruneCmd.Flags().Lookup("keep")
	require.NotNil(t, keep)
	assert.Equal(t, "0", keep.DefValue)
}
