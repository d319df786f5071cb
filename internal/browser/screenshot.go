package browser

import (
	"os"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// Screenshot captures the full page to path. Used for login failure
// diagnostics; errors are reported but callers typically only log them.
func (s *Session) Screenshot(path string) error {
	var buf []byte
	if err := chromedp.Run(s.ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return eris.Wrap(err, "browser: capture screenshot")
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return eris.Wrapf(err, "browser: write screenshot %s", path)
	}
	return nil
}
