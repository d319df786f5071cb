package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/browser"
	"github.com/talentops/bgvsync/internal/config"
	"github.com/talentops/bgvsync/internal/portal"
)

// clickHrefJS clicks the anchor whose href attribute equals the given value.
const clickHrefJS = `(() => {
	const want = %s;
	for (const a of document.querySelectorAll('a[href]')) {
		if (a.getAttribute('href') !== want) continue;
		a.click();
		return true;
	}
	return false;
})()`

// collectDocLinksJS gathers anchors that look like document links.
const collectDocLinksJS = `(() => {
	const out = [];
	for (const a of document.querySelectorAll('a[href]')) {
		const href = a.getAttribute('href') || '';
		const lower = href.toLowerCase();
		if (!lower.includes('document') && !lower.includes('download')) continue;
		out.push({href: href, text: (a.textContent || '').trim()});
	}
	return JSON.stringify(out);
})()`

// pageContainsJS reports whether the rendered page mentions the needle.
const pageContainsJS = `(() => {
	const body = document.body;
	return !!body && body.innerText.includes(%s);
})()`

func jsArg(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// candidatePagePaths are the portal UI routes a candidate page may live at.
var candidatePagePaths = []string{"/candidate/%s", "/candidates/%s", "/bgv/candidate/%s"}

// BrowserFallback retrieves items through the live browser session when the
// direct API path fails, walking the portal UI the way an operator would:
// open the page, click the control, wait for the download.
type BrowserFallback struct {
	session *browser.Session
	base    string
	staging string
	timeout time.Duration
	log     *zap.Logger

	dlOnce sync.Once
	dlErr  error
}

// NewBrowserFallback wraps an authenticated session. Downloads are staged
// under the browser state dir before moving to their artifact location.
func NewBrowserFallback(s *browser.Session, baseURL string, cfg config.BrowserConfig) *BrowserFallback {
	timeout := time.Duration(cfg.DownloadTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BrowserFallback{
		session: s,
		base:    strings.TrimRight(baseURL, "/"),
		staging: filepath.Join(cfg.StateDir, "downloads"),
		timeout: timeout,
		log:     zap.L().With(zap.String("component", "fallback")),
	}
}

func (f *BrowserFallback) ensureDownloads() error {
	f.dlOnce.Do(func() {
		f.dlErr = f.session.EnableDownloads(f.staging)
	})
	return f.dlErr
}

// ExportTab opens the portal, switches to the named report tab, and triggers
// its export control. It returns the path of the downloaded workbook.
func (f *BrowserFallback) ExportTab(ctx context.Context, tab string) (string, error) {
	if err := f.ensureDownloads(); err != nil {
		return "", err
	}
	if err := f.session.Navigate(f.base + "/"); err != nil {
		return "", err
	}
	if err := f.clickByText(regexp.QuoteMeta(tab)); err != nil {
		return "", eris.Wrapf(err, "pipeline: open tab %q", tab)
	}
	if err := sleep(ctx, time.Second); err != nil {
		return "", err
	}

	before := browser.SnapshotDir(f.staging)
	if err := f.clickByText(`export|download|excel`); err != nil {
		return "", eris.Wrapf(err, "pipeline: trigger export for tab %q", tab)
	}
	path, err := f.session.WaitDownload(f.staging, before, f.timeout)
	if err != nil {
		return "", err
	}
	f.log.Debug("tab exported via browser", zap.String("tab", tab), zap.String("path", path))
	return path, nil
}

// CandidateDocuments scrapes the candidate page for document links. The
// returned refs carry the link href as their id so DownloadDocument can
// click the same anchor.
func (f *BrowserFallback) CandidateDocuments(ctx context.Context, candidateID string) ([]portal.DocRef, error) {
	if err := f.openCandidatePage(ctx, candidateID); err != nil {
		return nil, err
	}

	var raw string
	if err := chromedp.Run(f.session.Context(), chromedp.Evaluate(collectDocLinksJS, &raw)); err != nil {
		return nil, eris.Wrap(err, "pipeline: collect document links")
	}
	var links []struct {
		Href string `json:"href"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &links); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode document links")
	}

	refs := make([]portal.DocRef, 0, len(links))
	for _, l := range links {
		name := l.Text
		if name == "" {
			name = filepath.Base(l.Href)
		}
		refs = append(refs, portal.DocRef{ID: l.Href, Name: name})
	}
	if len(refs) == 0 {
		return nil, eris.Errorf("pipeline: no document links on candidate page %s", candidateID)
	}
	return refs, nil
}

// DownloadDocument clicks the document's link on the candidate page and
// waits for the download, returning the file's final path under destDir.
func (f *BrowserFallback) DownloadDocument(ctx context.Context, candidateID string, ref portal.DocRef, destDir string) (string, error) {
	if err := f.ensureDownloads(); err != nil {
		return "", err
	}
	if err := f.openCandidatePage(ctx, candidateID); err != nil {
		return "", err
	}

	before := browser.SnapshotDir(f.staging)
	// Browser-listed refs carry their href; API-listed refs fall back to a
	// text match on the document name.
	if err := f.clickHref(ref.ID); err != nil {
		if err := f.clickByText(regexp.QuoteMeta(ref.Name)); err != nil {
			return "", eris.Wrapf(err, "pipeline: no link for document %q", ref.Name)
		}
	}
	got, err := f.session.WaitDownload(f.staging, before, f.timeout)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "pipeline: create %s", destDir)
	}
	dest := filepath.Join(destDir, sanitizeName(filepath.Base(got)))
	if err := moveFile(got, dest); err != nil {
		return got, nil
	}
	return dest, nil
}

// DownloadPIF clicks the PIF link on the candidate page and stores the
// download as pif.pdf under destDir.
func (f *BrowserFallback) DownloadPIF(ctx context.Context, candidateID, destDir string) (string, error) {
	if err := f.ensureDownloads(); err != nil {
		return "", err
	}
	if err := f.openCandidatePage(ctx, candidateID); err != nil {
		return "", err
	}

	before := browser.SnapshotDir(f.staging)
	if err := f.clickByText(pifLinkText); err != nil {
		return "", eris.Wrapf(err, "pipeline: no PIF link on candidate page %s", candidateID)
	}
	got, err := f.session.WaitDownload(f.staging, before, f.timeout)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(destDir, "pif.pdf")
	if err := moveFile(got, dest); err != nil {
		return "", eris.Wrapf(err, "pipeline: move PIF to %s", dest)
	}
	f.log.Debug("PIF fetched via browser", zap.String("candidate_id", candidateID))
	return dest, nil
}

// openCandidatePage tries the known candidate routes until one renders a
// page that mentions the candidate.
func (f *BrowserFallback) openCandidatePage(ctx context.Context, candidateID string) error {
	var lastErr error
	for _, pat := range candidatePagePaths {
		u := f.base + fmt.Sprintf(pat, url.PathEscape(candidateID))
		if err := f.session.Navigate(u); err != nil {
			lastErr = err
			continue
		}
		if err := sleep(ctx, 500*time.Millisecond); err != nil {
			return err
		}
		var found bool
		if err := chromedp.Run(f.session.Context(),
			chromedp.Evaluate(fmt.Sprintf(pageContainsJS, jsArg(candidateID)), &found)); err != nil {
			lastErr = err
			continue
		}
		if found {
			return nil
		}
	}
	if lastErr != nil {
		return eris.Wrapf(lastErr, "pipeline: no candidate page for %s", candidateID)
	}
	return eris.Errorf("pipeline: no candidate page for %s", candidateID)
}

func (f *BrowserFallback) clickByText(pattern string) error {
	clicked, err := f.session.ClickText(pattern)
	if err != nil {
		return err
	}
	if !clicked {
		return eris.Errorf("pipeline: no visible control matching %q", pattern)
	}
	return nil
}

func (f *BrowserFallback) clickHref(href string) error {
	var clicked bool
	err := chromedp.Run(f.session.Context(),
		chromedp.Evaluate(fmt.Sprintf(clickHrefJS, jsArg(href)), &clicked))
	if err != nil {
		return eris.Wrap(err, "pipeline: click link")
	}
	if !clicked {
		return eris.Errorf("pipeline: no anchor with href %q", href)
	}
	return nil
}
