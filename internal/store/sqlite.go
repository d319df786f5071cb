package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/talentops/bgvsync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL DEFAULT '',
	triggered_by TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	result       TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS candidate_outcomes (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	candidate_id TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	tab          TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL,
	documents    INTEGER NOT NULL DEFAULT 0,
	form_parsed  INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	recorded_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_outcomes_run_candidate ON candidate_outcomes(run_id, candidate_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_candidate ON candidate_outcomes(candidate_id);
`

const sqliteUpsertOutcome = `
INSERT INTO candidate_outcomes (id, run_id, candidate_id, name, tab, source, documents, form_parsed, error, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, candidate_id) DO UPDATE SET
	name = excluded.name, tab = excluded.tab, source = excluded.source,
	documents = excluded.documents, form_parsed = excluded.form_parsed,
	error = excluded.error, recorded_at = excluded.recorded_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, trigger string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, triggered_by, status, created_at, updated_at) VALUES (?, '', ?, ?, ?, ?)`,
		id, trigger, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Trigger:   trigger,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunSession(ctx context.Context, runID, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET session_id = ?, updated_at = ? WHERE id = ?`,
		sessionID, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run session %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(terminalStatus(result)), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, triggered_by, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, session_id, triggered_by, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Trigger != "" {
		query += ` AND triggered_by = ?`
		args = append(args, filter.Trigger)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordCandidate(ctx context.Context, outcome model.CandidateOutcome) error {
	_, err := s.db.ExecContext(ctx, sqliteUpsertOutcome, outcomeArgs(outcome)...)
	return eris.Wrapf(err, "sqlite: record candidate %s", outcome.CandidateID)
}

func (s *SQLiteStore) RecordCandidates(ctx context.Context, outcomes []model.CandidateOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin record candidates")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertOutcome)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare record candidates")
	}
	defer stmt.Close()

	for _, outcome := range outcomes {
		if _, err := stmt.ExecContext(ctx, outcomeArgs(outcome)...); err != nil {
			return eris.Wrapf(err, "sqlite: record candidate %s", outcome.CandidateID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit record candidates")
}

func (s *SQLiteStore) ListCandidateOutcomes(ctx context.Context, runID string) ([]model.CandidateOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, candidate_id, name, tab, source, documents, form_parsed, error, recorded_at
		 FROM candidate_outcomes WHERE run_id = ?
		 ORDER BY recorded_at, candidate_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidate outcomes")
	}
	defer rows.Close()

	var outcomes []model.CandidateOutcome
	for rows.Next() {
		var oc model.CandidateOutcome
		if err := rows.Scan(&oc.RunID, &oc.CandidateID, &oc.Name, &oc.Tab, &oc.Source,
			&oc.Documents, &oc.FormParsed, &oc.Error, &oc.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate outcome")
		}
		outcomes = append(outcomes, oc)
	}
	return outcomes, eris.Wrap(rows.Err(), "sqlite: list candidate outcomes iterate")
}

// helpers

func outcomeArgs(oc model.CandidateOutcome) []any {
	recordedAt := oc.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	return []any{
		uuid.New().String(), oc.RunID, oc.CandidateID, oc.Name, oc.Tab,
		string(oc.Source), oc.Documents, oc.FormParsed, oc.Error, recordedAt,
	}
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &r.SessionID, &r.Trigger, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
