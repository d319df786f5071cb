// Package browser manages the headless Chrome session used for portal login,
// traffic observation, and fallback fetching. One Session maps to one browser
// process; login/discovery drive it strictly sequentially.
package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/config"
)

// UserAgent is sent on direct portal API calls made outside the browser, so
// they blend with the session's own traffic.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Session owns one Chrome instance and its root page context.
type Session struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// New launches Chrome and returns a ready Session. The caller must Close it.
func New(ctx context.Context, cfg config.BrowserConfig) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 900),
		chromedp.UserAgent(UserAgent),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	// Start the browser process now so failures surface here, not on the
	// first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, eris.Wrap(err, "browser: launch chrome")
	}

	zap.L().Debug("browser session started",
		zap.Bool("headless", cfg.Headless),
		zap.String("exec_path", cfg.ExecPath),
	)

	return &Session{
		ctx:         browserCtx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
	}, nil
}

// Context returns the chromedp context for running actions against the
// session's root page.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Navigate loads the given URL and waits for the body to be ready.
func (s *Session) Navigate(url string) error {
	err := chromedp.Run(s.ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return eris.Wrapf(err, "browser: navigate %s", url)
}

// Close tears down the page context and the browser process.
func (s *Session) Close() {
	s.cancelCtx()
	s.cancelAlloc()
}

// WaitVisible polls for the selector within the timeout. It wraps the
// chromedp wait in its own deadline so a missing element fails fast instead
// of hanging on the session context.
func (s *Session) WaitVisible(sel string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
		return eris.Wrapf(err, "browser: wait visible %q", sel)
	}
	return nil
}
