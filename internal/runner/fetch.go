package runner

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/model"
	"github.com/talentops/bgvsync/internal/pipeline"
)

// ErrNoSession is returned when a fetch is requested without a session to
// ride on. Session stores report a missing id as nil, so callers that load
// by id hit this rather than a nil dereference.
var ErrNoSession = eris.New("runner: fetch requires a session")

// RunFetch executes the fetch and sync phases against an already-discovered
// session. It competes for the same run slot as full runs: the portal and the
// sheet tolerate one consumer at a time.
func (r *Runner) RunFetch(ctx context.Context, sess *model.Session, m *model.EndpointMap, trigger string) (*model.RunResult, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	if !r.state.CompareAndSwap(stateIdle, stateRunning) {
		return nil, ErrRunInProgress
	}
	defer r.state.Store(stateIdle)

	return r.executeFetch(ctx, r.createRun(ctx, trigger), sess, m, trigger)
}

// StartFetch begins a fetch run in the background and returns its ledger
// entry immediately. ctx must outlive the run; callers pass a process-scoped
// context, not a request context.
func (r *Runner) StartFetch(ctx context.Context, sess *model.Session, m *model.EndpointMap, trigger string) (*model.Run, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	if !r.state.CompareAndSwap(stateIdle, stateRunning) {
		return nil, ErrRunInProgress
	}

	run := r.createRun(ctx, trigger)
	go func() {
		defer r.state.Store(stateIdle)
		if _, err := r.executeFetch(ctx, run, sess, m, trigger); err != nil {
			r.log.Error("background fetch run failed",
				zap.String("trigger", trigger), zap.Error(err))
		}
	}()
	return run, nil
}

func (r *Runner) executeFetch(ctx context.Context, run *model.Run, sess *model.Session, m *model.EndpointMap, trigger string) (*model.RunResult, error) {
	start := time.Now()
	log := r.log.With(
		zap.String("trigger", trigger),
		zap.String("session_id", sess.ID))
	if run != nil {
		log = log.With(zap.String("run_id", run.ID))
	}
	log.Info("fetch run started")
	r.recordSession(ctx, run, sess.ID)

	result := &model.RunResult{SessionID: sess.ID}
	if m != nil {
		result.EndpointsSeen = m.Total()
	}

	r.setStatus(ctx, run, model.RunStatusFetching)
	summary, err := r.stages.Fetch(ctx, &Discovery{Session: sess, Map: m}, nil)
	if err != nil {
		result.Error = err.Error()
		return r.finish(ctx, run, result, start, log, err)
	}
	result.Tabs = summary.Tabs
	result.Candidates = len(summary.Outcomes)
	result.Documents = summary.Documents
	result.FormsParsed = summary.FormsParsed
	result.Failures = summary.Failures
	r.recordOutcomesBulk(ctx, run, summary.Outcomes)

	r.setStatus(ctx, run, model.RunStatusSyncing)
	sync, err := r.stages.Sync(ctx, summary)
	if err != nil {
		result.Error = err.Error()
		return r.finish(ctx, run, result, start, log, err)
	}
	result.Sync = sync

	return r.finish(ctx, run, result, start, log, nil)
}

// recordOutcomesBulk writes the whole outcome batch in one upsert. Fetch
// runs have the complete batch in hand once the pipeline returns, unlike
// full runs that stream outcomes as the pool drains.
func (r *Runner) recordOutcomesBulk(ctx context.Context, run *model.Run, outcomes []model.CandidateOutcome) {
	if run == nil || len(outcomes) == 0 {
		return
	}
	batch := make([]model.CandidateOutcome, len(outcomes))
	copy(batch, outcomes)
	for i := range batch {
		batch[i].RunID = run.ID
	}
	if err := r.ledger.RecordCandidates(ctx, batch); err != nil {
		r.log.Error("ledger: record candidate outcomes",
			zap.Int("count", len(batch)), zap.Error(err))
	}
}

// RunSheets merges a previous fetch's persisted exports into the tracking
// sheet. It holds the run slot for the duration: the sheet must never take
// two interleaved merges.
func (r *Runner) RunSheets(ctx context.Context, dir string) (*model.SyncResult, error) {
	if !r.state.CompareAndSwap(stateIdle, stateRunning) {
		return nil, ErrRunInProgress
	}
	defer r.state.Store(stateIdle)

	exports, err := pipeline.ReadExports(dir)
	if err != nil {
		return nil, err
	}
	r.log.Info("syncing persisted exports",
		zap.String("dir", dir), zap.Int("tabs", len(exports)))
	return r.stages.Sync(ctx, &model.FetchSummary{Exports: exports})
}
