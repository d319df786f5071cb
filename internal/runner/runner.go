// Package runner owns the full-run lifecycle: at most one run at a time,
// every run recorded in the ledger as it moves through
// queued → logging_in → discovering → fetching → syncing → complete|failed.
// Overlapping triggers are rejected synchronously, never queued.
package runner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/config"
	"github.com/talentops/bgvsync/internal/model"
	"github.com/talentops/bgvsync/internal/store"
)

// ErrRunInProgress is returned when a trigger arrives while a run is active.
var ErrRunInProgress = eris.New("runner: run already in progress")

const (
	stateIdle int32 = iota
	stateRunning
)

// Stages performs the phases of a full run. The production implementation
// (Live) wires the browser, mailbox, portal client, and sheet sync; tests
// substitute fakes so the state machine can be exercised without Chrome.
type Stages interface {
	// LoginAndDiscover rotates old sessions, authenticates a fresh browser
	// session, and returns the persisted session plus its endpoint map.
	LoginAndDiscover(ctx context.Context) (*Discovery, error)
	// Fetch runs the fetch pipeline against a discovered session. A non-nil
	// onOutcome receives each candidate outcome as the pool produces it.
	Fetch(ctx context.Context, d *Discovery, onOutcome func(model.CandidateOutcome)) (*model.FetchSummary, error)
	// Sync merges the fetched tab exports into the tracking sheet.
	Sync(ctx context.Context, summary *model.FetchSummary) (*model.SyncResult, error)
}

// Runner drives full runs under a single mutual-exclusion slot held as an
// atomic state enum. The compare-and-swap transition is the only guard; there
// is no queueing.
type Runner struct {
	cfg    *config.Config
	ledger store.Store
	stages Stages
	peer   *PeerClient
	state  atomic.Int32
	log    *zap.Logger
}

// New creates a Runner. When server.peer_url is configured the fetch phase
// is handed off to that peer instead of running in-process.
func New(cfg *config.Config, ledger store.Store, stages Stages) *Runner {
	r := &Runner{
		cfg:    cfg,
		ledger: ledger,
		stages: stages,
		log:    zap.L().With(zap.String("component", "runner")),
	}
	if cfg.Server.PeerURL != "" {
		r.peer = NewPeerClient(cfg.Server.PeerURL)
	}
	return r
}

// Running reports whether a run currently holds the slot.
func (r *Runner) Running() bool {
	return r.state.Load() == stateRunning
}

// State reports the run slot as "idle" or "running" for the health surface.
func (r *Runner) State() string {
	if r.Running() {
		return "running"
	}
	return "idle"
}

// RunFull executes one complete run synchronously and returns its result.
// A second concurrent call returns ErrRunInProgress without touching the
// browser or the ledger.
func (r *Runner) RunFull(ctx context.Context, trigger string) (*model.RunResult, error) {
	if !r.state.CompareAndSwap(stateIdle, stateRunning) {
		return nil, ErrRunInProgress
	}
	defer r.state.Store(stateIdle)

	return r.execute(ctx, r.createRun(ctx, trigger), trigger)
}

// Start begins a full run in the background and returns its ledger entry
// immediately. ctx must outlive the run; callers pass a process-scoped
// context, not a request context.
func (r *Runner) Start(ctx context.Context, trigger string) (*model.Run, error) {
	if !r.state.CompareAndSwap(stateIdle, stateRunning) {
		return nil, ErrRunInProgress
	}

	run := r.createRun(ctx, trigger)
	go func() {
		defer r.state.Store(stateIdle)
		if _, err := r.execute(ctx, run, trigger); err != nil {
			r.log.Error("background run failed",
				zap.String("trigger", trigger), zap.Error(err))
		}
	}()
	return run, nil
}

// execute walks the run through its phases. The caller holds the run slot.
func (r *Runner) execute(ctx context.Context, run *model.Run, trigger string) (*model.RunResult, error) {
	start := time.Now()
	log := r.log.With(zap.String("trigger", trigger))
	if run != nil {
		log = log.With(zap.String("run_id", run.ID))
	}
	log.Info("run started")

	r.setStatus(ctx, run, model.RunStatusLoggingIn)
	disc, err := r.stages.LoginAndDiscover(ctx)
	if err != nil {
		return r.finish(ctx, run, &model.RunResult{Error: err.Error()}, start, log, err)
	}
	defer disc.Close()

	result := &model.RunResult{
		SessionID:     disc.Session.ID,
		EndpointsSeen: disc.Map.Total(),
	}
	r.recordSession(ctx, run, disc.Session.ID)
	r.setStatus(ctx, run, model.RunStatusDiscovering)
	log.Info("session established",
		zap.String("session_id", disc.Session.ID),
		zap.Int("endpoints_seen", result.EndpointsSeen))

	if r.peer != nil {
		if err := r.peer.TriggerFetch(ctx, disc.Session, disc.Map); err != nil {
			result.Error = err.Error()
			return r.finish(ctx, run, result, start, log, err)
		}
		result.HandedOff = true
		log.Info("fetch handed off to peer", zap.String("peer", r.peer.Base()))
		return r.finish(ctx, run, result, start, log, nil)
	}

	r.setStatus(ctx, run, model.RunStatusFetching)
	summary, err := r.stages.Fetch(ctx, disc, func(oc model.CandidateOutcome) {
		r.recordOutcome(ctx, run, oc)
	})
	if err != nil {
		result.Error = err.Error()
		return r.finish(ctx, run, result, start, log, err)
	}
	result.Tabs = summary.Tabs
	result.Candidates = len(summary.Outcomes)
	result.Documents = summary.Documents
	result.FormsParsed = summary.FormsParsed
	result.Failures = summary.Failures

	r.setStatus(ctx, run, model.RunStatusSyncing)
	sync, err := r.stages.Sync(ctx, summary)
	if err != nil {
		result.Error = err.Error()
		return r.finish(ctx, run, result, start, log, err)
	}
	result.Sync = sync

	return r.finish(ctx, run, result, start, log, nil)
}

// finish stamps the duration, writes the terminal ledger entry, and returns
// the result alongside the fatal error, if any.
func (r *Runner) finish(ctx context.Context, run *model.Run, result *model.RunResult, start time.Time, log *zap.Logger, cause error) (*model.RunResult, error) {
	result.DurationMS = time.Since(start).Milliseconds()
	if run != nil {
		if err := r.ledger.UpdateRunResult(ctx, run.ID, result); err != nil {
			log.Error("ledger: record run result", zap.Error(err))
		}
	}
	if cause != nil {
		log.Error("run failed",
			zap.Int64("duration_ms", result.DurationMS),
			zap.Error(cause))
		return result, cause
	}
	log.Info("run complete",
		zap.String("session_id", result.SessionID),
		zap.Int("candidates", result.Candidates),
		zap.Int("documents", result.Documents),
		zap.Int("failures", len(result.Failures)),
		zap.Int64("duration_ms", result.DurationMS))
	return result, nil
}

// Ledger writes never abort a run: a broken database loses bookkeeping, not
// a login that already succeeded. Each helper tolerates a nil run from a
// failed CreateRun.

func (r *Runner) createRun(ctx context.Context, trigger string) *model.Run {
	run, err := r.ledger.CreateRun(ctx, trigger)
	if err != nil {
		r.log.Error("ledger: create run", zap.Error(err))
		return nil
	}
	return run
}

func (r *Runner) setStatus(ctx context.Context, run *model.Run, status model.RunStatus) {
	if run == nil {
		return
	}
	if err := r.ledger.UpdateRunStatus(ctx, run.ID, status); err != nil {
		r.log.Error("ledger: update run status",
			zap.String("status", string(status)), zap.Error(err))
	}
}

func (r *Runner) recordSession(ctx context.Context, run *model.Run, sessionID string) {
	if run == nil {
		return
	}
	if err := r.ledger.UpdateRunSession(ctx, run.ID, sessionID); err != nil {
		r.log.Error("ledger: record run session", zap.Error(err))
	}
}

// recordOutcome streams one candidate outcome into the ledger as the fetch
// pool produces it, so a run that dies mid-batch still leaves its finished
// candidates on record.
func (r *Runner) recordOutcome(ctx context.Context, run *model.Run, oc model.CandidateOutcome) {
	if run == nil {
		return
	}
	oc.RunID = run.ID
	if err := r.ledger.RecordCandidate(ctx, oc); err != nil {
		r.log.Error("ledger: record candidate outcome",
			zap.String("candidate_id", oc.CandidateID), zap.Error(err))
	}
}
