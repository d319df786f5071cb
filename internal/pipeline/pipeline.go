// Package pipeline orchestrates the fetch phase of a run: export every
// report tab, then walk the deduplicated candidates with a bounded worker
// pool, downloading documents and extracting the PIF form for each. Items
// fall back from direct API calls to browser retrieval, and per-item
// failures are recorded without stopping the batch.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/talentops/bgvsync/internal/config"
	"github.com/talentops/bgvsync/internal/extract"
	"github.com/talentops/bgvsync/internal/model"
	"github.com/talentops/bgvsync/internal/portal"
	"github.com/talentops/bgvsync/pkg/gdrive"
)

// API is the direct portal surface the orchestrator fetches through.
// *portal.Client implements it.
type API interface {
	FetchTabExport(ctx context.Context, m *model.EndpointMap, tab string) (*model.TabExport, error)
	FetchProfile(ctx context.Context, m *model.EndpointMap, candidateID string) ([]byte, error)
	ListDocuments(ctx context.Context, m *model.EndpointMap, candidateID string) ([]portal.DocRef, error)
	DownloadDocument(ctx context.Context, m *model.EndpointMap, candidateID string, ref portal.DocRef, path string) (int64, error)
}

// Fallback drives the authenticated browser session for items the API could
// not serve. A nil Fallback disables browser retrieval.
type Fallback interface {
	ExportTab(ctx context.Context, tab string) (string, error)
	CandidateDocuments(ctx context.Context, candidateID string) ([]portal.DocRef, error)
	DownloadDocument(ctx context.Context, candidateID string, ref portal.DocRef, destDir string) (string, error)
	DownloadPIF(ctx context.Context, candidateID, destDir string) (string, error)
}

type formParser interface {
	ParseForm(ctx context.Context, pdfPath string) (*model.FormData, error)
}

// Orchestrator runs the fetch phase against one session's endpoint map.
type Orchestrator struct {
	api       API
	fallback  Fallback
	forms     formParser
	drive     gdrive.Client
	driveRoot string
	onOutcome func(model.CandidateOutcome)
	cfg       config.FetchConfig
	driveCfg  config.DriveConfig
	log       *zap.Logger
}

// New creates an Orchestrator. forms and drive may be nil, disabling PIF
// parsing and Drive upload respectively.
func New(cfg config.FetchConfig, api API, fb Fallback, forms *extract.Cascade, drive gdrive.Client, driveCfg config.DriveConfig) *Orchestrator {
	o := &Orchestrator{
		api:      api,
		fallback: fb,
		drive:    drive,
		cfg:      cfg,
		driveCfg: driveCfg,
		log:      zap.L().With(zap.String("component", "pipeline")),
	}
	if forms != nil {
		o.forms = forms
	}
	return o
}

// OnOutcome registers a callback invoked for each candidate outcome as the
// pool produces it, so callers can stream results into a ledger instead of
// waiting for the summary. fn is called from pool workers and must be safe
// for concurrent use.
func (o *Orchestrator) OnOutcome(fn func(model.CandidateOutcome)) {
	o.onOutcome = fn
}

// Run executes the fetch phase: tab exports first, then the candidate pool.
// The endpoint map must belong to the given session; a mismatched map is
// refused outright rather than risking calls shaped by another session's
// traffic.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, m *model.EndpointMap) (*model.FetchSummary, error) {
	if m != nil && m.SessionID != sessionID {
		return nil, eris.Errorf("pipeline: endpoint map belongs to session %s, not %s", m.SessionID, sessionID)
	}
	if err := os.MkdirAll(o.cfg.OutDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "pipeline: create output dir %s", o.cfg.OutDir)
	}

	tabs, err := portal.Tabs(o.cfg)
	if err != nil {
		return nil, err
	}

	summary := &model.FetchSummary{
		SessionID: sessionID,
		OutDir:    o.cfg.OutDir,
	}

	// Tab exports run sequentially: each is one bulk call (or one browser
	// walk), and the portal throttles aggressively.
	for _, tab := range tabs {
		exp, res := o.exportTab(ctx, m, tab)
		summary.Tabs = append(summary.Tabs, res)
		if exp != nil {
			summary.Exports = append(summary.Exports, *exp)
		}
		if res.Error != "" {
			summary.Failures = append(summary.Failures, fmt.Sprintf("tab %s: %s", tab, res.Error))
		}
	}
	if len(summary.Exports) == 0 {
		return summary, eris.New("pipeline: every tab export failed")
	}
	if path, err := WriteExports(o.cfg.OutDir, summary.Exports); err != nil {
		o.log.Warn("persist exports failed", zap.Error(err))
	} else {
		o.log.Debug("exports persisted", zap.String("path", path))
	}

	if o.drive != nil {
		rootID, err := o.drive.EnsureFolder(ctx, o.driveCfg.RootFolder, "")
		if err != nil {
			o.log.Warn("drive root folder unavailable, uploads disabled", zap.Error(err))
			o.drive = nil
		} else {
			o.driveRoot = rootID
		}
	}

	candidates := dedupeCandidates(summary.Exports)
	total := len(candidates)
	o.log.Info("fetching candidates",
		zap.Int("candidates", total),
		zap.Int("concurrency", o.maxConcurrent()))

	outcomes := make([]model.CandidateOutcome, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent())

	for i, cand := range candidates {
		if i > 0 {
			if err := sleep(gctx, o.candidateDelay()); err != nil {
				break
			}
		}
		g.Go(func() error {
			outcomes[i] = o.processCandidate(gctx, m, cand, i, total)
			if o.onOutcome != nil {
				o.onOutcome(outcomes[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "pipeline: candidate pool")
	}
	if ctx.Err() != nil {
		return summary, eris.Wrap(ctx.Err(), "pipeline: run canceled")
	}

	for _, out := range outcomes {
		if out.CandidateID == "" {
			continue // dispatch loop broke before this slot was filled
		}
		summary.Outcomes = append(summary.Outcomes, out)
		summary.Documents += out.Documents
		if out.FormParsed {
			summary.FormsParsed++
		}
		if out.Error != "" {
			summary.Failures = append(summary.Failures, fmt.Sprintf("candidate %s: %s", out.CandidateID, out.Error))
		}
	}

	o.log.Info("fetch complete",
		zap.Int("tabs", len(summary.Tabs)),
		zap.Int("candidates", len(summary.Outcomes)),
		zap.Int("documents", summary.Documents),
		zap.Int("forms_parsed", summary.FormsParsed),
		zap.Int("failures", len(summary.Failures)))
	return summary, nil
}

// exportTab fetches one tab's export, API first, browser second.
func (o *Orchestrator) exportTab(ctx context.Context, m *model.EndpointMap, tab string) (*model.TabExport, model.TabResult) {
	exp, err := o.api.FetchTabExport(ctx, m, tab)
	if err == nil {
		o.log.Info("tab exported",
			zap.String("tab", tab), zap.Int("rows", len(exp.Rows)), zap.String("source", string(exp.Source)))
		return exp, model.TabResult{Tab: tab, Rows: len(exp.Rows), Source: exp.Source}
	}
	o.log.Warn("tab export via API failed", zap.String("tab", tab), zap.Error(err))

	if o.fallback != nil {
		path, fbErr := o.fallback.ExportTab(ctx, tab)
		if fbErr == nil {
			exp, fbErr = portal.ReadExportFile(path, tab)
		}
		if fbErr == nil {
			o.log.Info("tab exported",
				zap.String("tab", tab), zap.Int("rows", len(exp.Rows)), zap.String("source", string(exp.Source)))
			return exp, model.TabResult{Tab: tab, Rows: len(exp.Rows), Source: exp.Source}
		}
		o.log.Error("tab export fallback failed", zap.String("tab", tab), zap.Error(fbErr))
		return nil, model.TabResult{Tab: tab, Source: model.SourceFailed, Error: fbErr.Error()}
	}
	return nil, model.TabResult{Tab: tab, Source: model.SourceFailed, Error: err.Error()}
}

// dedupeCandidates flattens the exports into one work list, keeping the
// first occurrence of each candidate id. Rows without an id were already
// dropped at parse time.
func dedupeCandidates(exports []model.TabExport) []model.CandidateRecord {
	var out []model.CandidateRecord
	seen := make(map[string]bool)
	for _, exp := range exports {
		for _, c := range exp.Rows {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	return out
}

func (o *Orchestrator) maxConcurrent() int {
	if o.cfg.MaxConcurrentCandidates < 1 {
		return 5
	}
	return o.cfg.MaxConcurrentCandidates
}

func (o *Orchestrator) candidateDelay() time.Duration {
	return time.Duration(o.cfg.CandidateProcessDelay * float64(time.Second))
}

func (o *Orchestrator) documentDelay() time.Duration {
	return time.Duration(o.cfg.DocumentDownloadDelay * float64(time.Second))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
