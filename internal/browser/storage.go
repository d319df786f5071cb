package browser

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"github.com/talentops/bgvsync/internal/model"
)

// CaptureStorageState reads all cookies and the current origin's
// localStorage out of the session.
func (s *Session) CaptureStorageState() (model.StorageState, error) {
	var st model.StorageState

	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			st.Cookies = append(st.Cookies, model.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  c.Expires,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
				SameSite: string(c.SameSite),
			})
		}
		return nil
	}))
	if err != nil {
		return st, eris.Wrap(err, "browser: get cookies")
	}

	var origin string
	var local map[string]string
	err = chromedp.Run(s.ctx,
		chromedp.Evaluate(`window.location.origin`, &origin),
		chromedp.Evaluate(`(() => {
			const out = {};
			for (let i = 0; i < localStorage.length; i++) {
				const k = localStorage.key(i);
				out[k] = localStorage.getItem(k);
			}
			return out;
		})()`, &local),
	)
	if err != nil {
		// Cookies alone are enough to reuse the session; localStorage is
		// best-effort.
		return st, nil
	}
	if len(local) > 0 {
		st.Origins = append(st.Origins, model.OriginState{Origin: origin, LocalStorage: local})
	}

	return st, nil
}

// RestoreStorageState installs the cookies from a persisted session into the
// browser before navigation.
func (s *Session) RestoreStorageState(st model.StorageState) error {
	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range st.Cookies {
			param := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				param = param.WithExpires(&expires)
			}
			if c.SameSite != "" {
				param = param.WithSameSite(network.CookieSameSite(c.SameSite))
			}
			if err := param.Do(ctx); err != nil {
				return eris.Wrapf(err, "set cookie %q", c.Name)
			}
		}
		return nil
	}))
	return eris.Wrap(err, "browser: restore cookies")
}

// CookieHeader renders the storage state as a Cookie header value for direct
// API calls. Cookies scoped to the given domain are preferred; when none
// match (some portals scope everything to a parent domain), all cookies are
// sent.
func CookieHeader(st model.StorageState, domain string) string {
	var pairs []string
	for _, c := range st.Cookies {
		if strings.Contains(c.Domain, domain) || strings.Contains(domain, strings.TrimPrefix(c.Domain, ".")) {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
	}
	if len(pairs) == 0 {
		for _, c := range st.Cookies {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
	}
	return strings.Join(pairs, "; ")
}
