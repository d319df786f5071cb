// Package login drives the compliance portal's credential and MFA pages up
// to a verified browser session.
package login

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/browser"
	"github.com/talentops/bgvsync/internal/config"
)

// State names a stage of the login flow. The flow only moves forward; any
// failure parks it in StateFailed.
type State string

const (
	StateNotStarted           State = "not_started"
	StateCredentialsSubmitted State = "credentials_submitted"
	StateMfaChannelSelected   State = "mfa_channel_selected"
	StateOtpAwaited           State = "otp_awaited"
	StateOtpSubmitted         State = "otp_submitted"
	StateVerified             State = "verified"
	StateFailed               State = "failed"
)

const (
	fieldWait       = 15 * time.Second
	scanInterval    = 500 * time.Millisecond
	mfaPollInterval = time.Second
	mfaPollAttempts = 10
	otpScanBudget   = 30 * time.Second
	settleDelay     = 2 * time.Second
)

// CodeSource produces the one-time passcode for the MFA challenge.
type CodeSource interface {
	Code(ctx context.Context) (string, error)
}

// Flow walks one login attempt through the portal. It is not safe for
// concurrent use; build a fresh Flow per attempt.
type Flow struct {
	session  *browser.Session
	codes    CodeSource
	cfg      config.PortalConfig
	stateDir string
	evidence []Evidence
	state    State
	log      *zap.Logger
}

// Result reports the terminal state of a login attempt.
type Result struct {
	State      State  `json:"state"`
	VerifiedBy string `json:"verified_by,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

func New(s *browser.Session, codes CodeSource, cfg config.PortalConfig, stateDir string) *Flow {
	return &Flow{
		session:  s,
		codes:    codes,
		cfg:      cfg,
		stateDir: stateDir,
		evidence: DefaultEvidence(s, cfg.BaseURL),
		state:    StateNotStarted,
		log:      zap.L().With(zap.String("component", "login")),
	}
}

// State reports the flow's current stage.
func (f *Flow) State() State {
	return f.state
}

// Run executes the full flow. On failure the returned Result still carries
// the diagnostic screenshot path when one could be captured.
func (f *Flow) Run(ctx context.Context) (*Result, error) {
	target := f.cfg.BaseURL + f.cfg.LoginPath
	f.log.Info("opening portal", zap.String("url", target))
	if err := f.session.Navigate(target); err != nil {
		return f.fail(eris.Wrap(err, "login: open portal"))
	}

	if err := f.submitCredentials(ctx); err != nil {
		return f.fail(err)
	}
	if err := f.selectMfaChannel(ctx); err != nil {
		return f.fail(err)
	}
	if err := f.awaitOtpField(ctx); err != nil {
		return f.fail(err)
	}
	code, err := f.fetchCode(ctx)
	if err != nil {
		return f.fail(err)
	}
	if err := f.submitOtp(code); err != nil {
		return f.fail(err)
	}
	return f.verify(ctx)
}

func (f *Flow) submitCredentials(ctx context.Context) error {
	bctx := f.session.Context()

	sel, err := f.awaitAny(ctx, emailSelectors, fieldWait)
	if err != nil {
		return err
	}
	if sel == "" {
		return eris.Wrap(ErrAuthFieldNotFound, "email field")
	}
	if ok, err := fillFrames(bctx, emailSelectors, f.cfg.Email); err != nil || !ok {
		return eris.Wrap(ErrAuthFieldNotFound, "fill email field")
	}
	if ok, err := fillFrames(bctx, passwordSelectors, f.cfg.Password); err != nil || !ok {
		return eris.Wrap(ErrAuthFieldNotFound, "password field")
	}
	submit := []string{`button[type="submit"]`, `input[type="submit"]`}
	if ok, err := clickFrames(bctx, submit, signInTextPattern); err != nil || !ok {
		return eris.Wrap(ErrAuthFieldNotFound, "sign-in control")
	}

	f.state = StateCredentialsSubmitted
	f.log.Info("credentials submitted")
	return sleep(ctx, settleDelay)
}

// selectMfaChannel picks the email channel and presses the send-code
// control once it enables. Tenants whose portal auto-sends the code skip
// straight to the passcode field, which counts as success here.
func (f *Flow) selectMfaChannel(ctx context.Context) error {
	bctx := f.session.Context()

	if ok, _ := clickFrames(bctx, mfaEmailSelectors, mfaEmailTextPattern); ok {
		f.log.Debug("mfa email channel clicked")
	}

	for attempt := 1; attempt <= mfaPollAttempts; attempt++ {
		state, err := clickWhenEnabled(bctx, sendCodeSelectors, sendCodeTextPattern)
		if err == nil && state == "clicked" {
			f.state = StateMfaChannelSelected
			f.log.Info("passcode send requested", zap.Int("attempt", attempt))
			return nil
		}
		if field, _ := scanFrames(bctx, otpSelectors); field != "" {
			f.state = StateMfaChannelSelected
			f.log.Info("passcode field already present, send assumed automatic")
			return nil
		}
		f.log.Debug("send control not ready",
			zap.String("state", state), zap.Int("attempt", attempt))
		if err := sleep(ctx, mfaPollInterval); err != nil {
			return err
		}
	}
	return eris.Wrapf(ErrMfaSelectionFailed, "send control not ready after %d polls", mfaPollAttempts)
}

func (f *Flow) awaitOtpField(ctx context.Context) error {
	sel, err := f.awaitAny(ctx, otpSelectors, otpScanBudget)
	if err != nil {
		return err
	}
	if sel == "" {
		return eris.Wrapf(ErrOtpFieldNotFound, "no match in any frame within %s", otpScanBudget)
	}
	f.state = StateOtpAwaited
	f.log.Info("passcode field found", zap.String("selector", sel))
	return nil
}

func (f *Flow) fetchCode(ctx context.Context) (string, error) {
	code, err := f.codes.Code(ctx)
	if err != nil {
		return "", eris.Wrapf(ErrOtpRetrievalFailed, "%v", err)
	}
	f.log.Info("passcode retrieved from mailbox")
	return code, nil
}

func (f *Flow) submitOtp(code string) error {
	bctx := f.session.Context()

	if ok, err := fillFrames(bctx, otpSelectors, code); err != nil || !ok {
		return eris.Wrap(ErrOtpSubmitFailed, "fill passcode field")
	}
	submit := []string{`button[type="submit"]`, `input[type="submit"]`}
	if ok, err := clickFrames(bctx, submit, otpSubmitTextPattern); err != nil || !ok {
		return eris.Wrap(ErrOtpSubmitFailed, "no visible submit control")
	}
	f.state = StateOtpSubmitted
	f.log.Info("passcode submitted")
	return nil
}

func (f *Flow) verify(ctx context.Context) (*Result, error) {
	// Let the post-MFA redirect land before sampling evidence.
	if err := sleep(ctx, settleDelay); err != nil {
		return f.fail(err)
	}
	by, ok := Verify(f.session.Context(), f.evidence)
	if !ok {
		return f.fail(ErrLoginUnverified)
	}
	f.state = StateVerified
	f.log.Info("login verified", zap.String("evidence", by))
	return &Result{State: StateVerified, VerifiedBy: by}, nil
}

// awaitAny polls the selector list across all frames until one matches or
// the budget runs out. An empty selector with nil error means not found.
func (f *Flow) awaitAny(ctx context.Context, sels []string, budget time.Duration) (string, error) {
	bctx := f.session.Context()
	deadline := time.Now().Add(budget)
	for {
		if sel, err := scanFrames(bctx, sels); err == nil && sel != "" {
			return sel, nil
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		if err := sleep(ctx, scanInterval); err != nil {
			return "", err
		}
	}
}

func (f *Flow) fail(err error) (*Result, error) {
	f.state = StateFailed
	f.log.Error("login failed", zap.Error(err))

	shot := filepath.Join(f.stateDir,
		fmt.Sprintf("login_failure_%s.png", time.Now().UTC().Format("20060102T150405Z")))
	if serr := f.session.Screenshot(shot); serr != nil {
		f.log.Warn("diagnostic screenshot failed", zap.Error(serr))
		shot = ""
	} else {
		f.log.Info("diagnostic screenshot captured", zap.String("path", shot))
	}
	return &Result{State: StateFailed, Screenshot: shot}, err
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
