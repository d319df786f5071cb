package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/talentops/bgvsync/internal/model"
)

// ErrRunNotFound is returned by GetRun when no run has the given id.
var ErrRunNotFound = eris.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Trigger string          `json:"trigger,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run ledger. Every full run
// and every candidate processed within it leaves a row here, so a candidate
// can never drop out of a run without a trace.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, trigger string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunSession(ctx context.Context, runID, sessionID string) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Candidate ledger
	RecordCandidate(ctx context.Context, outcome model.CandidateOutcome) error
	RecordCandidates(ctx context.Context, outcomes []model.CandidateOutcome) error
	ListCandidateOutcomes(ctx context.Context, runID string) ([]model.CandidateOutcome, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open builds the configured store driver. SQLite is the default; Postgres
// is for server deployments where several processes share one ledger.
func Open(ctx context.Context, driver, databaseURL string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(databaseURL)
	case "postgres":
		return NewPostgres(ctx, databaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// terminalStatus picks the final run status a result implies.
func terminalStatus(result *model.RunResult) model.RunStatus {
	if result != nil && result.Error != "" {
		return model.RunStatusFailed
	}
	return model.RunStatusComplete
}
