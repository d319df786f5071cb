package browser

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// EnableDownloads routes browser downloads into dir.
func (s *Session) EnableDownloads(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "browser: create download dir %s", dir)
	}
	err := chromedp.Run(s.ctx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
	)
	return eris.Wrap(err, "browser: set download behavior")
}

// WaitDownload polls dir until a new, fully written file appears (Chrome
// drops the .crdownload suffix when a download completes) and returns its
// path. before is the set of filenames present when the download was
// triggered; see SnapshotDir.
func (s *Session) WaitDownload(dir string, before map[string]bool, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", eris.Wrapf(err, "browser: read download dir %s", dir)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || before[name] || strings.HasSuffix(name, ".crdownload") || strings.HasSuffix(name, ".tmp") {
				continue
			}
			return filepath.Join(dir, name), nil
		}
		if time.Now().After(deadline) {
			return "", eris.Errorf("browser: no download completed in %s within %s", dir, timeout)
		}
		select {
		case <-s.ctx.Done():
			return "", eris.Wrap(s.ctx.Err(), "browser: wait download")
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// SnapshotDir records the current filenames in dir, for WaitDownload to
// diff against.
func SnapshotDir(dir string) map[string]bool {
	seen := make(map[string]bool)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return seen
	}
	for _, e := range entries {
		seen[e.Name()] = true
	}
	return seen
}
