package login

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/chromedp"
)

// The login widgets are frequently served inside same-origin iframes, where
// querySelector on the top document cannot see them. These helpers run a
// recursive scan over the frame tree in page JavaScript instead of walking
// CDP frame targets one by one.

const scanFramesJS = `(() => {
	const sels = %s;
	const scan = (doc) => {
		if (!doc) return null;
		for (const sel of sels) {
			try { if (doc.querySelector(sel)) return sel; } catch (e) {}
		}
		for (const f of doc.querySelectorAll('iframe')) {
			try { const r = scan(f.contentDocument); if (r) return r; } catch (e) {}
		}
		return null;
	};
	return scan(document) || "";
})()`

const fillFramesJS = `(() => {
	const sels = %s;
	const value = %s;
	const fill = (doc) => {
		if (!doc) return false;
		for (const sel of sels) {
			try {
				const el = doc.querySelector(sel);
				if (el) {
					el.focus();
					el.value = value;
					el.dispatchEvent(new Event('input', { bubbles: true }));
					el.dispatchEvent(new Event('change', { bubbles: true }));
					return true;
				}
			} catch (e) {}
		}
		for (const f of doc.querySelectorAll('iframe')) {
			try { if (fill(f.contentDocument)) return true; } catch (e) {}
		}
		return false;
	};
	return fill(document);
})()`

const clickFramesJS = `(() => {
	const sels = %s;
	const pattern = new RegExp(%s, 'i');
	const visible = (el) => el.offsetParent !== null && !el.disabled;
	const click = (doc) => {
		if (!doc) return false;
		for (const sel of sels) {
			try {
				const el = doc.querySelector(sel);
				if (el && visible(el)) { el.click(); return true; }
			} catch (e) {}
		}
		for (const el of doc.querySelectorAll('button, input[type="submit"], input[type="button"], a, label')) {
			const text = (el.innerText || el.value || '').trim();
			if (visible(el) && text && pattern.test(text)) { el.click(); return true; }
		}
		for (const f of doc.querySelectorAll('iframe')) {
			try { if (click(f.contentDocument)) return true; } catch (e) {}
		}
		return false;
	};
	return click(document);
})()`

// clickWhenEnabledJS reports "clicked", "waiting" when the control exists
// but is still disabled, or "missing".
const clickWhenEnabledJS = `(() => {
	const sels = %s;
	const pattern = new RegExp(%s, 'i');
	const find = (doc) => {
		if (!doc) return null;
		for (const sel of sels) {
			try {
				const el = doc.querySelector(sel);
				if (el && el.offsetParent !== null) return el;
			} catch (e) {}
		}
		for (const el of doc.querySelectorAll('button, input[type="submit"]')) {
			const text = (el.innerText || el.value || '').trim();
			if (el.offsetParent !== null && text && pattern.test(text)) return el;
		}
		for (const f of doc.querySelectorAll('iframe')) {
			try { const r = find(f.contentDocument); if (r) return r; } catch (e) {}
		}
		return null;
	};
	const el = find(document);
	if (!el) return "missing";
	if (el.disabled) return "waiting";
	el.click();
	return "clicked";
})()`

const bodyTextJS = `(() => document.body ? document.body.innerText : "")()`

func jsArg(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func scanFrames(ctx context.Context, sels []string) (string, error) {
	var matched string
	err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(scanFramesJS, jsArg(sels)), &matched))
	return matched, err
}

func fillFrames(ctx context.Context, sels []string, value string) (bool, error) {
	var ok bool
	err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(fillFramesJS, jsArg(sels), jsArg(value)), &ok))
	return ok, err
}

func clickFrames(ctx context.Context, sels []string, textPattern string) (bool, error) {
	var ok bool
	err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(clickFramesJS, jsArg(sels), jsArg(textPattern)), &ok))
	return ok, err
}

func clickWhenEnabled(ctx context.Context, sels []string, textPattern string) (string, error) {
	var state string
	err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(clickWhenEnabledJS, jsArg(sels), jsArg(textPattern)), &state))
	return state, err
}

func bodyText(ctx context.Context) (string, error) {
	var text string
	err := chromedp.Run(ctx, chromedp.Evaluate(bodyTextJS, &text))
	return text, err
}
