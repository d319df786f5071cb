package login

// Selector lists are ordered most specific first; the flow walks each list
// until one matches. The portal periodically reworks its login markup, so
// every list ends with at least one broad fallback.

var emailSelectors = []string{
	`input[type="email"]`,
	`#email`,
	`input[name="email"]`,
	`input[name="username"]`,
	`#username`,
	`input[autocomplete="username"]`,
}

var passwordSelectors = []string{
	`input[type="password"]`,
	`#password`,
	`input[name="password"]`,
	`input[autocomplete="current-password"]`,
}

// signInTextPattern matches the label of sign-in controls when the page has
// no typed submit control.
const signInTextPattern = `sign\s*in|log\s*in|continue|next`

var mfaEmailSelectors = []string{
	`input[type="radio"][value*="email" i]`,
	`[data-channel*="email" i]`,
	`button[id*="email" i]`,
	`label[for*="email" i]`,
}

const mfaEmailTextPattern = `email`

var sendCodeSelectors = []string{
	`button[id*="send" i]`,
	`button[name*="send" i]`,
	`button[type="submit"]`,
}

const sendCodeTextPattern = `send\s*(me\s*)?(a\s*|the\s*)?code|get\s*code`

var otpSelectors = []string{
	`input[autocomplete="one-time-code"]`,
	`input[name*="otp" i]`,
	`input[id*="otp" i]`,
	`input[name*="passcode" i]`,
	`input[name*="code" i]`,
	`input[id*="code" i]`,
	`input[inputmode="numeric"]`,
	`input[type="tel"]`,
	`input[maxlength="6"]`,
}

const otpSubmitTextPattern = `verify|submit|confirm|continue`

// authedSelectors mark elements that only render once the portal considers
// the session signed in.
var authedSelectors = []string{
	`[href*="logout" i]`,
	`[href*="signout" i]`,
	`[aria-label*="profile" i]`,
	`.dashboard`,
	`#dashboard`,
	`nav[role="navigation"]`,
}
