// Package mailbox retrieves the portal's one-time passcodes from the
// operator mailbox.
package mailbox

import (
	"context"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/config"
	"github.com/talentops/bgvsync/internal/resilience"
	"github.com/talentops/bgvsync/pkg/gmail"
)

// ErrNoCode means the newest matching message carried no recognizable
// passcode.
var ErrNoCode = eris.New("mailbox: no passcode in message")

// The portal sends six-digit codes. First match wins, so a sender that ever
// embeds another six-digit number ahead of the code will need a tighter
// pattern here.
var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

// ExtractCode pulls the first six-digit code out of message text.
func ExtractCode(text string) (string, error) {
	m := codePattern.FindStringSubmatch(text)
	if m == nil {
		return "", ErrNoCode
	}
	return m[1], nil
}

// Source lists the newest message matching a mailbox query.
type Source interface {
	Newest(ctx context.Context, query string) (*gmail.Message, error)
}

// Poller polls the mailbox on a fixed cadence until a passcode shows up or
// the attempt budget runs out. It satisfies the login flow's CodeSource.
type Poller struct {
	source Source
	cfg    config.MailboxConfig
	log    *zap.Logger
}

func NewPoller(source Source, cfg config.MailboxConfig) *Poller {
	return &Poller{
		source: source,
		cfg:    cfg,
		log:    zap.L().With(zap.String("component", "mailbox")),
	}
}

// Code fetches the newest matching message and extracts its passcode,
// retrying on the configured fixed cadence. Every miss is retried: the
// message usually just has not arrived yet.
func (p *Poller) Code(ctx context.Context) (string, error) {
	rc := resilience.FixedRetryConfig(p.cfg.PollAttempts, time.Duration(p.cfg.PollDelaySecs)*time.Second)
	rc.ShouldRetry = func(error) bool { return true }
	rc.OnRetry = resilience.RetryLogger("gmail", "fetch_otp")

	return resilience.DoVal(ctx, rc, func(ctx context.Context) (string, error) {
		msg, err := p.source.Newest(ctx, p.cfg.Query)
		if err != nil {
			return "", err
		}
		code, err := ExtractCode(msg.Text())
		if err != nil {
			return "", err
		}
		p.log.Info("passcode located", zap.String("message_id", msg.ID))
		return code, nil
	})
}
