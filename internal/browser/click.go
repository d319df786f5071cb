package browser

import (
	"encoding/json"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// clickTextJS clicks the first visible control whose text, value, or
// aria-label matches the pattern.
const clickTextJS = `(() => {
	const pattern = new RegExp(%s, 'i');
	const nodes = document.querySelectorAll('a, button, [role="button"], [role="tab"], input[type="button"], input[type="submit"]');
	for (const el of nodes) {
		const text = ((el.textContent || el.value || '') + ' ' + (el.getAttribute('aria-label') || '')).trim();
		if (!pattern.test(text)) continue;
		if (el.offsetParent === null) continue;
		el.click();
		return true;
	}
	return false;
})()`

// ClickText clicks the first visible control whose text, value, or
// aria-label matches the case-insensitive pattern, reporting whether
// anything was clicked.
func (s *Session) ClickText(pattern string) (bool, error) {
	arg, err := json.Marshal(pattern)
	if err != nil {
		return false, eris.Wrap(err, "browser: encode click pattern")
	}
	var clicked bool
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(fmt.Sprintf(clickTextJS, arg), &clicked)); err != nil {
		return false, eris.Wrapf(err, "browser: click control %s", pattern)
	}
	return clicked, nil
}
