// Package gmail wraps the Gmail API for one purpose: finding the newest
// message matching a query and returning its text, so a one-time passcode
// can be extracted from it.
package gmail

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrNoMessages is returned when the query matches nothing.
var ErrNoMessages = eris.New("gmail: no messages match query")

// Message is the subset of a Gmail message the caller needs.
type Message struct {
	ID      string
	Subject string
	Snippet string
	Body    string
}

// Text returns subject, snippet, and body concatenated, which is what the
// passcode extractor scans.
func (m *Message) Text() string {
	return m.Subject + "\n" + m.Snippet + "\n" + m.Body
}

// Client reads messages from one mailbox.
type Client interface {
	Newest(ctx context.Context, query string) (*Message, error)
}

// Option configures the client.
type Option func(*gmailClient)

// WithService overrides the underlying Gmail service (used in tests).
func WithService(svc *gmailapi.Service) Option {
	return func(c *gmailClient) {
		c.svc = svc
	}
}

type gmailClient struct {
	svc  *gmailapi.Service
	user string
}

// New creates a Gmail client. The service account in the credentials file
// must have domain-wide delegation for the given user; "me" reads the
// account's own mailbox.
func New(ctx context.Context, credentialsPath, user string, opts ...Option) (Client, error) {
	if user == "" {
		user = "me"
	}
	c := &gmailClient{user: user}
	for _, o := range opts {
		o(c)
	}

	if c.svc == nil {
		data, err := os.ReadFile(credentialsPath)
		if err != nil {
			return nil, eris.Wrap(err, "gmail: read credentials")
		}
		jwt, err := google.JWTConfigFromJSON(data, gmailapi.GmailReadonlyScope)
		if err != nil {
			return nil, eris.Wrap(err, "gmail: parse credentials")
		}
		if user != "me" {
			jwt.Subject = user
		}
		svc, err := gmailapi.NewService(ctx, option.WithTokenSource(jwt.TokenSource(ctx)))
		if err != nil {
			return nil, eris.Wrap(err, "gmail: create service")
		}
		c.svc = svc
	}

	return c, nil
}

// Newest returns the most recent message matching the Gmail search query.
func (c *gmailClient) Newest(ctx context.Context, query string) (*Message, error) {
	list, err := c.svc.Users.Messages.List(c.user).
		Q(query).
		MaxResults(1).
		Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrapf(err, "gmail: list messages for query %q", query)
	}
	if len(list.Messages) == 0 {
		return nil, ErrNoMessages
	}

	full, err := c.svc.Users.Messages.Get(c.user, list.Messages[0].Id).
		Format("full").
		Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrap(err, "gmail: get message")
	}

	msg := &Message{
		ID:      full.Id,
		Snippet: full.Snippet,
	}
	if full.Payload != nil {
		for _, h := range full.Payload.Headers {
			if strings.EqualFold(h.Name, "Subject") {
				msg.Subject = h.Value
				break
			}
		}
		msg.Body = extractBody(full.Payload)
	}

	return msg, nil
}

// extractBody walks the MIME tree and returns the first text/plain part,
// falling back to text/html.
func extractBody(p *gmailapi.MessagePart) string {
	if text := findPart(p, "text/plain"); text != "" {
		return text
	}
	return findPart(p, "text/html")
}

func findPart(p *gmailapi.MessagePart, mimeType string) string {
	if p == nil {
		return ""
	}
	if strings.HasPrefix(p.MimeType, mimeType) && p.Body != nil && p.Body.Data != "" {
		return decodeBody(p.Body.Data)
	}
	for _, part := range p.Parts {
		if text := findPart(part, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func decodeBody(data string) string {
	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		// Some senders pad their base64url payloads.
		decoded, err = base64.URLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}
