package runner

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/browser"
	"github.com/talentops/bgvsync/internal/config"
	"github.com/talentops/bgvsync/internal/extract"
	"github.com/talentops/bgvsync/internal/login"
	"github.com/talentops/bgvsync/internal/mailbox"
	"github.com/talentops/bgvsync/internal/model"
	"github.com/talentops/bgvsync/internal/observer"
	"github.com/talentops/bgvsync/internal/pipeline"
	"github.com/talentops/bgvsync/internal/portal"
	"github.com/talentops/bgvsync/internal/session"
	"github.com/talentops/bgvsync/internal/sheetsync"
	"github.com/talentops/bgvsync/pkg/gdrive"
	"github.com/talentops/bgvsync/pkg/gmail"
	"github.com/talentops/bgvsync/pkg/gsheets"
)

// Discovery is what login+discovery hands to the fetch phase: the persisted
// session, its endpoint map, and the still-open browser for per-item fallback
// retrieval. Both session and map are read-only from here on.
type Discovery struct {
	Session *model.Session
	Map     *model.EndpointMap

	browser *browser.Session
}

// Close releases the browser once the run is done with it. Safe on a
// Discovery built without one.
func (d *Discovery) Close() {
	if d != nil && d.browser != nil {
		d.browser.Close()
	}
}

// Live is the production Stages implementation.
type Live struct {
	cfg      *config.Config
	sessions *session.Store
	log      *zap.Logger
}

// NewLive wires the real browser, mailbox, portal, and sheet dependencies
// into the run phases.
func NewLive(cfg *config.Config, sessions *session.Store) *Live {
	return &Live{
		cfg:      cfg,
		sessions: sessions,
		log:      zap.L().With(zap.String("component", "runner.live")),
	}
}

// LoginAndDiscover rotates stale sessions, walks the portal login with OTP
// retrieval from the mailbox, and captures the endpoint map observed along
// the way. The returned Discovery keeps the browser open for the fetch
// phase's fallback path.
func (l *Live) LoginAndDiscover(ctx context.Context) (*Discovery, error) {
	if removed, err := l.sessions.Rotate(l.cfg.Sessions.Keep); err != nil {
		l.log.Warn("session rotation failed", zap.Error(err))
	} else if len(removed) > 0 {
		l.log.Info("rotated sessions", zap.Strings("removed", removed))
	}

	bs, err := browser.New(ctx, l.cfg.Browser)
	if err != nil {
		return nil, err
	}

	sessionID := newSessionID()
	collector := observer.NewCollector(sessionID)
	if err := collector.Attach(bs.Context()); err != nil {
		bs.Close()
		return nil, err
	}

	gm, err := gmail.New(ctx, l.cfg.Mailbox.CredentialsJSON, l.cfg.Mailbox.User)
	if err != nil {
		bs.Close()
		return nil, err
	}
	codes := mailbox.NewPoller(gm, l.cfg.Mailbox)

	flow := login.New(bs, codes, l.cfg.Portal, l.cfg.Browser.StateDir)
	res, err := flow.Run(ctx)
	if err != nil {
		if res != nil && res.Screenshot != "" {
			l.log.Warn("login failed, diagnostic screenshot captured",
				zap.String("screenshot", res.Screenshot))
		}
		bs.Close()
		return nil, err
	}
	l.log.Info("login verified", zap.String("verified_by", res.VerifiedBy))

	tabs, err := portal.Tabs(l.cfg.Fetch)
	if err != nil {
		l.log.Warn("tabs file unreadable, walking stock tabs", zap.Error(err))
		tabs = portal.DefaultTabs()
	}
	walkReportTabs(ctx, bs, l.cfg.Portal.BaseURL, tabs, tabSettleDelay, l.log)

	state, err := bs.CaptureStorageState()
	if err != nil {
		bs.Close()
		return nil, err
	}
	sess := &model.Session{
		ID:           sessionID,
		CreatedAt:    time.Now().UTC(),
		StorageState: state,
	}
	m := collector.Finalize()

	if err := l.sessions.SaveSession(sess); err != nil {
		bs.Close()
		return nil, err
	}
	if err := l.sessions.SaveEndpointMap(m); err != nil {
		bs.Close()
		return nil, err
	}

	return &Discovery{Session: sess, Map: m, browser: bs}, nil
}

// newSessionID names a fresh session the same way run ids are named, so
// session files and ledger rows share one id convention.
func newSessionID() string {
	return uuid.NewString()
}

// tabSettleDelay is how long each clicked tab gets to fire its data calls
// before the walk moves on.
const tabSettleDelay = 1500 * time.Millisecond

// tabWalker is the slice of browser.Session the discovery walk drives.
type tabWalker interface {
	Navigate(url string) error
	ClickText(pattern string) (bool, error)
}

var _ tabWalker = (*browser.Session)(nil)

// walkReportTabs opens the portal home and clicks through each report tab so
// the attached collector sees the export and candidate calls the tabs fire.
// A tab whose control is missing is skipped: fetch still reaches unobserved
// endpoints through the stock paths.
func walkReportTabs(ctx context.Context, w tabWalker, baseURL string, tabs []string, settle time.Duration, log *zap.Logger) {
	if err := w.Navigate(strings.TrimRight(baseURL, "/") + "/"); err != nil {
		log.Warn("portal home navigation failed, skipping tab walk", zap.Error(err))
		return
	}
	for _, tab := range tabs {
		clicked, err := w.ClickText(regexp.QuoteMeta(tab))
		if err != nil {
			log.Warn("tab walk stopped", zap.String("tab", tab), zap.Error(err))
			return
		}
		if !clicked {
			log.Debug("no control for tab", zap.String("tab", tab))
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(settle):
		}
	}
}

// Fetch runs the fetch pipeline. When the Discovery carries a live browser
// the pipeline gets a fallback path; a Discovery rebuilt from a handoff
// payload fetches through the API alone.
func (l *Live) Fetch(ctx context.Context, d *Discovery, onOutcome func(model.CandidateOutcome)) (*model.FetchSummary, error) {
	client := portal.NewClient(l.cfg.Portal.BaseURL, d.Session.StorageState, portal.Options{})

	var fb pipeline.Fallback
	if d.browser != nil {
		fb = pipeline.NewBrowserFallback(d.browser, l.cfg.Portal.BaseURL, l.cfg.Browser)
	}

	var drive gdrive.Client
	if l.cfg.Drive.Enabled {
		dc, err := gdrive.New(ctx, l.cfg.Drive.CredentialsJSON)
		if err != nil {
			l.log.Warn("drive client unavailable, uploads disabled", zap.Error(err))
		} else {
			drive = dc
		}
	}

	orch := pipeline.New(l.cfg.Fetch, client, fb, extract.NewCascade(l.cfg.Extract), drive, l.cfg.Drive)
	if onOutcome != nil {
		orch.OnOutcome(onOutcome)
	}
	return orch.Run(ctx, d.Session.ID, d.Map)
}

// Sync merges the fetched exports into the tracking spreadsheet.
func (l *Live) Sync(ctx context.Context, summary *model.FetchSummary) (*model.SyncResult, error) {
	sc, err := gsheets.New(ctx, l.cfg.Sheets.CredentialsJSON, l.cfg.Sheets.SpreadsheetID)
	if err != nil {
		return nil, err
	}
	return sheetsync.New(sc, l.cfg.Sheets.AuditSheet).SyncAll(ctx, summary.Exports)
}
