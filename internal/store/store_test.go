package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentops/bgvsync/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "manual")
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusQueued, run.Status)
		assert.Equal(t, "manual", run.Trigger)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, model.RunStatusQueued, got.Status)
		assert.Equal(t, "manual", got.Trigger)
		assert.Empty(t, got.SessionID)
		assert.Nil(t, got.Result)
	})

	t.Run("UpdateRunStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "schedule")
		require.NoError(t, err)

		err = s.UpdateRunStatus(ctx, run.ID, model.RunStatusFetching)
		require.NoError(t, err)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFetching, got.Status)
	})

	t.Run("UpdateRunStatusNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.UpdateRunStatus(ctx, "nonexistent-id", model.RunStatusFetching)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("UpdateRunSession", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "schedule")
		require.NoError(t, err)

		err = s.UpdateRunSession(ctx, run.ID, "20260314_090000")
		require.NoError(t, err)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, "20260314_090000", got.SessionID)
	})

	t.Run("UpdateRunResultComplete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "manual")
		require.NoError(t, err)

		result := &model.RunResult{
			SessionID:     "20260314_090000",
			EndpointsSeen: 12,
			Tabs: []model.TabResult{
				{Tab: "Submitted to PwC", Rows: 40, Source: model.SourceAPI},
			},
			Candidates:  40,
			Documents:   173,
			FormsParsed: 38,
			Sync:        &model.SyncResult{Added: 5, Updated: 7, Audited: 13},
			DurationMS:  95000,
		}

		err = s.UpdateRunResult(ctx, run.ID, result)
		require.NoError(t, err)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusComplete, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, 40, got.Result.Candidates)
		assert.Equal(t, 173, got.Result.Documents)
		require.Len(t, got.Result.Tabs, 1)
		assert.Equal(t, "Submitted to PwC", got.Result.Tabs[0].Tab)
		require.NotNil(t, got.Result.Sync)
		assert.Equal(t, 5, got.Result.Sync.Added)
	})

	t.Run("UpdateRunResultFailed", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "schedule")
		require.NoError(t, err)

		result := &model.RunResult{Error: "login unverified"}
		err = s.UpdateRunResult(ctx, run.ID, result)
		require.NoError(t, err)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, "login unverified", got.Result.Error)
	})

	t.Run("UpdateRunResultNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.UpdateRunResult(ctx, "nonexistent", &model.RunResult{Candidates: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetRun(ctx, "nonexistent")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateRun(ctx, "schedule")
		require.NoError(t, err)
		run2, err := s.CreateRun(ctx, "manual")
		require.NoError(t, err)
		err = s.UpdateRunStatus(ctx, run2.ID, model.RunStatusSyncing)
		require.NoError(t, err)

		// List all
		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		// Filter by status
		queued, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusQueued})
		require.NoError(t, err)
		assert.Len(t, queued, 1)
		assert.Equal(t, "schedule", queued[0].Trigger)

		syncing, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusSyncing})
		require.NoError(t, err)
		assert.Len(t, syncing, 1)
		assert.Equal(t, run2.ID, syncing[0].ID)

		// Filter by trigger
		manual, err := s.ListRuns(ctx, RunFilter{Trigger: "manual"})
		require.NoError(t, err)
		assert.Len(t, manual, 1)
		assert.Equal(t, run2.ID, manual[0].ID)

		// Limit
		limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("ListRunsWithOffset", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for range 3 {
			_, err := s.CreateRun(ctx, "schedule")
			require.NoError(t, err)
		}

		// Offset 1, limit 1 should skip the first result
		paged, err := s.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Len(t, paged, 1)
	})

	t.Run("ListRunsEmpty", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		runs, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run("RecordAndListCandidateOutcomes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "manual")
		require.NoError(t, err)

		base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
		err = s.RecordCandidate(ctx, model.CandidateOutcome{
			RunID:       run.ID,
			CandidateID: "4821",
			Name:        "Asha Rao",
			Tab:         "Submitted to PwC",
			Source:      model.SourceAPI,
			Documents:   5,
			FormParsed:  true,
			RecordedAt:  base,
		})
		require.NoError(t, err)

		err = s.RecordCandidate(ctx, model.CandidateOutcome{
			RunID:       run.ID,
			CandidateID: "4822",
			Name:        "Vikram Iyer",
			Tab:         "Submitted to PwC",
			Source:      model.SourceFailed,
			Error:       "no document endpoint answered",
			RecordedAt:  base.Add(time.Second),
		})
		require.NoError(t, err)

		outcomes, err := s.ListCandidateOutcomes(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, outcomes, 2)

		assert.Equal(t, "4821", outcomes[0].CandidateID)
		assert.Equal(t, "Asha Rao", outcomes[0].Name)
		assert.Equal(t, model.SourceAPI, outcomes[0].Source)
		assert.Equal(t, 5, outcomes[0].Documents)
		assert.True(t, outcomes[0].FormParsed)
		assert.Empty(t, outcomes[0].Error)

		assert.Equal(t, "4822", outcomes[1].CandidateID)
		assert.Equal(t, model.SourceFailed, outcomes[1].Source)
		assert.Equal(t, "no document endpoint answered", outcomes[1].Error)
		assert.False(t, outcomes[1].FormParsed)
	})

	t.Run("RecordCandidateIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "manual")
		require.NoError(t, err)

		outcome := model.CandidateOutcome{
			RunID:       run.ID,
			CandidateID: "4821",
			Name:        "Asha Rao",
			Tab:         "Submitted to PwC",
			Source:      model.SourceBrowser,
			Documents:   2,
		}
		require.NoError(t, s.RecordCandidate(ctx, outcome))

		// Re-recording the same candidate replaces, never duplicates.
		outcome.Documents = 6
		outcome.FormParsed = true
		require.NoError(t, s.RecordCandidate(ctx, outcome))

		outcomes, err := s.ListCandidateOutcomes(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		assert.Equal(t, 6, outcomes[0].Documents)
		assert.True(t, outcomes[0].FormParsed)
	})

	t.Run("RecordCandidatesBatch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "schedule")
		require.NoError(t, err)

		batch := []model.CandidateOutcome{
			{RunID: run.ID, CandidateID: "100", Tab: "Drafted Candidates", Source: model.SourceAPI, Documents: 1},
			{RunID: run.ID, CandidateID: "101", Tab: "Drafted Candidates", Source: model.SourceBrowser, Documents: 3},
			{RunID: run.ID, CandidateID: "102", Tab: "Drafted Candidates", Source: model.SourceFailed, Error: "portal timeout"},
		}
		require.NoError(t, s.RecordCandidates(ctx, batch))

		outcomes, err := s.ListCandidateOutcomes(ctx, run.ID)
		require.NoError(t, err)
		assert.Len(t, outcomes, 3)

		// An empty batch is a no-op.
		require.NoError(t, s.RecordCandidates(ctx, nil))
	})

	t.Run("ListCandidateOutcomesEmpty", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "manual")
		require.NoError(t, err)

		outcomes, err := s.ListCandidateOutcomes(ctx, run.ID)
		require.NoError(t, err)
		assert.Empty(t, outcomes)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(context.Background(), "", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, ok := s.(*SQLiteStore)
	assert.True(t, ok)
}
