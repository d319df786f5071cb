package login

import "github.com/rotisserie/eris"

// Terminal failures of the login flow. Each maps to one transition of the
// state machine; all of them abort the run and capture a diagnostic
// screenshot.
var (
	ErrAuthFieldNotFound  = eris.New("login: credential field not found")
	ErrMfaSelectionFailed = eris.New("login: mfa email channel selection failed")
	ErrOtpFieldNotFound   = eris.New("login: otp input field not found")
	ErrOtpRetrievalFailed = eris.New("login: otp retrieval from mailbox failed")
	ErrOtpSubmitFailed    = eris.New("login: otp submit control not found")
	ErrLoginUnverified    = eris.New("login: no evidence of authenticated session")
)
