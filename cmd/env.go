package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/talentops/bgvsync/internal/runner"
	"github.com/talentops/bgvsync/internal/session"
	"github.com/talentops/bgvsync/internal/store"
)

// runnerEnv holds the shared dependencies of the serve, run, fetch, and
// sheets commands. Close releases them in reverse order of acquisition.
type runnerEnv struct {
	Ledger   store.Store
	Sessions *session.Store
	Runner   *runner.Runner
}

// Close releases all initialized resources.
func (e *runnerEnv) Close() {
	if e.Ledger != nil {
		_ = e.Ledger.Close()
	}
}

// openLedger builds the configured run ledger and applies migrations.
func openLedger(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate ledger")
	}
	return st, nil
}

// initRunner initializes the ledger, the session store, and the runner with
// the production stage wiring. Callers should defer env.Close().
func initRunner(ctx context.Context) (*runnerEnv, error) {
	st, err := openLedger(ctx)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewStore(cfg.Browser.StateDir)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &runnerEnv{
		Ledger:   st,
		Sessions: sessions,
		Runner:   runner.New(cfg, st, runner.NewLive(cfg, sessions)),
	}, nil
}
