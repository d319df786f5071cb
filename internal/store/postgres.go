package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/talentops/bgvsync/internal/db"
	"github.com/talentops/bgvsync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// outcomeColumns is the insert column order for candidate_outcomes rows,
// shared by the single upsert and the bulk path.
var outcomeColumns = []string{
	"id", "run_id", "candidate_id", "name", "tab",
	"source", "documents", "form_parsed", "error", "recorded_at",
}

const postgresUpsertOutcome = `
INSERT INTO candidate_outcomes (id, run_id, candidate_id, name, tab, source, documents, form_parsed, error, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id, candidate_id) DO UPDATE SET
	name = EXCLUDED.name, tab = EXCLUDED.tab, source = EXCLUDED.source,
	documents = EXCLUDED.documents, form_parsed = EXCLUDED.form_parsed,
	error = EXCLUDED.error, recorded_at = EXCLUDED.recorded_at`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, session_id, triggered_by, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"update_run_result": `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, session_id, triggered_by, status, result, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_outcome":    postgresUpsertOutcome,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id   TEXT NOT NULL DEFAULT '',
	triggered_by TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	result       JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS candidate_outcomes (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	candidate_id TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	tab          TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL,
	documents    INTEGER NOT NULL DEFAULT 0,
	form_parsed  BOOLEAN NOT NULL DEFAULT false,
	error        TEXT NOT NULL DEFAULT '',
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (run_id, candidate_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON candidate_outcomes(run_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_candidate ON candidate_outcomes(candidate_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, trigger string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, session_id, triggered_by, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, "", trigger, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Trigger:   trigger,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunSession(ctx context.Context, runID, sessionID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET session_id = $1, updated_at = $2 WHERE id = $3`,
		sessionID, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run session %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(terminalStatus(result)), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, session_id, triggered_by, status, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, session_id, triggered_by, status, result, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Trigger != "" {
		query += fmt.Sprintf(` AND triggered_by = $%d`, argIdx)
		args = append(args, filter.Trigger)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordCandidate(ctx context.Context, outcome model.CandidateOutcome) error {
	_, err := s.pool.Exec(ctx, postgresUpsertOutcome, outcomeArgs(outcome)...)
	return eris.Wrapf(err, "postgres: record candidate %s", outcome.CandidateID)
}

// RecordCandidates upserts the whole batch in one round trip. COPY into a
// temp table plus INSERT ON CONFLICT keeps re-recording a run idempotent.
func (s *PostgresStore) RecordCandidates(ctx context.Context, outcomes []model.CandidateOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(outcomes))
	for _, outcome := range outcomes {
		rows = append(rows, outcomeArgs(outcome))
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "candidate_outcomes",
		Columns:      outcomeColumns,
		ConflictKeys: []string{"run_id", "candidate_id"},
		UpdateCols:   []string{"name", "tab", "source", "documents", "form_parsed", "error", "recorded_at"},
	}, rows)
	return eris.Wrap(err, "postgres: record candidates")
}

func (s *PostgresStore) ListCandidateOutcomes(ctx context.Context, runID string) ([]model.CandidateOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, candidate_id, name, tab, source, documents, form_parsed, error, recorded_at
		 FROM candidate_outcomes WHERE run_id = $1
		 ORDER BY recorded_at, candidate_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidate outcomes")
	}
	defer rows.Close()

	var outcomes []model.CandidateOutcome
	for rows.Next() {
		var oc model.CandidateOutcome
		if err := rows.Scan(&oc.RunID, &oc.CandidateID, &oc.Name, &oc.Tab, &oc.Source,
			&oc.Documents, &oc.FormParsed, &oc.Error, &oc.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate outcome")
		}
		outcomes = append(outcomes, oc)
	}
	return outcomes, eris.Wrap(rows.Err(), "postgres: list candidate outcomes iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var resultNull *[]byte

	err := row.Scan(&r.ID, &r.SessionID, &r.Trigger, &r.Status, &resultNull, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	if resultNull != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(*resultNull, r.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal result")
		}
	}
	return &r, nil
}
