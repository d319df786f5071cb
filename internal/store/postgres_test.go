package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentops/bgvsync/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "", "schedule", "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "schedule")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "schedule", run.Trigger)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, session_id, triggered_by, status, result, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("fetching", pgxmock.AnyArg(), "missing-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing-run", model.RunStatusFetching)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunResult_TerminalStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// A result carrying an error lands the run in "failed".
	mock.ExpectExec(`UPDATE runs SET result`).
		WithArgs(pgxmock.AnyArg(), "failed", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateRunResult(context.Background(), "run-1", &model.RunResult{Error: "login unverified"})
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE runs SET result`).
		WithArgs(pgxmock.AnyArg(), "complete", pgxmock.AnyArg(), "run-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = s.UpdateRunResult(context.Background(), "run-2", &model.RunResult{Candidates: 40})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordCandidate_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), "run-1", "4821", "Asha Rao", "Submitted to PwC",
			"api", 5, true, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordCandidate(context.Background(), model.CandidateOutcome{
		RunID:       "run-1",
		CandidateID: "4821",
		Name:        "Asha Rao",
		Tab:         "Submitted to PwC",
		Source:      model.SourceAPI,
		Documents:   5,
		FormParsed:  true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordCandidates_Bulk(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_candidate_outcomes"}, outcomeColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "candidate_outcomes"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := s.RecordCandidates(context.Background(), []model.CandidateOutcome{
		{RunID: "run-1", CandidateID: "100", Source: model.SourceAPI, Documents: 2},
		{RunID: "run-1", CandidateID: "101", Source: model.SourceFailed, Error: "portal timeout"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCandidateOutcomes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	recorded := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"run_id", "candidate_id", "name", "tab", "source",
		"documents", "form_parsed", "error", "recorded_at",
	}).AddRow("run-1", "4821", "Asha Rao", "Submitted to PwC", model.SourceAPI, 5, true, "", recorded)

	mock.ExpectQuery(`FROM candidate_outcomes WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(rows)

	outcomes, err := s.ListCandidateOutcomes(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "4821", outcomes[0].CandidateID)
	assert.Equal(t, model.SourceAPI, outcomes[0].Source)
	assert.Equal(t, 5, outcomes[0].Documents)
	assert.True(t, outcomes[0].FormParsed)
	assert.Equal(t, recorded, outcomes[0].RecordedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
