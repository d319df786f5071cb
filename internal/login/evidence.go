package login

import (
	"context"
	"net/url"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/browser"
)

// Evidence is one independent signal that the browser session ended up
// authenticated. Checks run in rank order and the first positive one
// decides the vote; its name is recorded so operators can see which signal
// carried a given run.
type Evidence struct {
	Name  string
	Check func(ctx context.Context) (bool, error)
}

// Verify walks the checks in order and returns the name of the first
// positive one. A check that errors counts as negative; it never sinks the
// whole vote.
func Verify(ctx context.Context, checks []Evidence) (string, bool) {
	for _, ev := range checks {
		ok, err := ev.Check(ctx)
		if err != nil {
			zap.L().Debug("evidence check errored",
				zap.String("check", ev.Name), zap.Error(err))
			continue
		}
		if ok {
			return ev.Name, true
		}
	}
	return "", false
}

// DefaultEvidence is the production check ranking: landing URL, then an
// authenticated-only element, then an auth cookie, then a page-text
// heuristic as the weakest signal.
func DefaultEvidence(s *browser.Session, baseURL string) []Evidence {
	return []Evidence{
		urlEvidence(baseURL),
		elementEvidence(),
		cookieEvidence(s),
		pageTextEvidence(),
	}
}

func urlEvidence(baseURL string) Evidence {
	return Evidence{
		Name: "portal_url",
		Check: func(ctx context.Context) (bool, error) {
			var loc string
			if err := chromedp.Run(ctx, chromedp.Location(&loc)); err != nil {
				return false, err
			}
			cur, err := url.Parse(loc)
			if err != nil {
				return false, err
			}
			want, err := url.Parse(baseURL)
			if err != nil {
				return false, err
			}
			if !strings.EqualFold(cur.Host, want.Host) {
				return false, nil
			}
			path := strings.ToLower(cur.Path)
			return !strings.Contains(path, "login") && !strings.Contains(path, "signin"), nil
		},
	}
}

func elementEvidence() Evidence {
	return Evidence{
		Name: "authenticated_element",
		Check: func(ctx context.Context) (bool, error) {
			sel, err := scanFrames(ctx, authedSelectors)
			if err != nil {
				return false, err
			}
			return sel != "", nil
		},
	}
}

func cookieEvidence(s *browser.Session) Evidence {
	markers := []string{"auth", "sess", "token"}
	return Evidence{
		Name: "auth_cookie",
		Check: func(ctx context.Context) (bool, error) {
			st, err := s.CaptureStorageState()
			if err != nil {
				return false, err
			}
			for _, c := range st.Cookies {
				if c.Value == "" {
					continue
				}
				name := strings.ToLower(c.Name)
				for _, m := range markers {
					if strings.Contains(name, m) {
						return true, nil
					}
				}
			}
			return false, nil
		},
	}
}

// pageTextEvidence is a heuristic of last resort: a substantial page that no
// longer shows sign-in prompts.
func pageTextEvidence() Evidence {
	prompts := []string{"sign in", "log in", "verification code", "one-time"}
	return Evidence{
		Name: "page_text",
		Check: func(ctx context.Context) (bool, error) {
			text, err := bodyText(ctx)
			if err != nil {
				return false, err
			}
			if len(text) < 500 {
				return false, nil
			}
			low := strings.ToLower(text)
			for _, p := range prompts {
				if strings.Contains(low, p) {
					return false, nil
				}
			}
			return true, nil
		},
	}
}
