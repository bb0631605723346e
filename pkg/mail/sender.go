// Package mail delivers outreach email over SMTP.
package mail

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Email is one outbound message.
type Email struct {
	To       string
	ToName   string
	Subject  string
	TextBody string
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// SMTPSender delivers mail via go-mail over a direct SMTP connection.
type SMTPSender struct {
	client    *gomail.Client
	fromName  string
	fromEmail string

	// demoRecipient, when set, redirects every message there so demo runs
	// never email real prospects.
	demoRecipient string
}

// SMTPConfig holds the connection settings for NewSMTPSender.
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	FromEmail     string
	FromName      string
	DemoRecipient string
}

// NewSMTPSender creates a sender with a reusable SMTP client.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "mail: create smtp client")
	}

	return &SMTPSender{
		client:        client,
		fromName:      cfg.FromName,
		fromEmail:     cfg.FromEmail,
		demoRecipient: cfg.DemoRecipient,
	}, nil
}

// Send delivers one message. When a demo recipient is configured the mail is
// redirected there and the original recipient is recorded in a header.
func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	to, redirected := resolveRecipient(email.To, s.demoRecipient)

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return eris.Wrap(err, "mail: set from")
	}
	if err := msg.To(to); err != nil {
		return eris.Wrapf(err, "mail: set recipient %s", to)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, email.TextBody)
	if redirected {
		msg.SetGenHeader("X-Original-To", email.To)
	}

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return eris.Wrapf(err, "mail: send to %s", to)
	}

	zap.L().Debug("mail: sent",
		zap.String("to", to),
		zap.String("subject", email.Subject),
		zap.Bool("redirected", redirected))
	return nil
}

// resolveRecipient applies the demo redirect. Returns the effective address
// and whether a redirect happened.
func resolveRecipient(to, demoRecipient string) (string, bool) {
	if demoRecipient != "" && demoRecipient != to {
		return demoRecipient, true
	}
	return to, false
}

// RecordingSender captures messages instead of delivering them. Used in dry
// runs and tests.
type RecordingSender struct {
	mu   sync.Mutex
	sent []Email

	// Err, when set, is returned from every Send.
	Err error
}

func (r *RecordingSender) Send(_ context.Context, email Email) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, email)
	return nil
}

// Sent returns a copy of the captured messages.
func (r *RecordingSender) Sent() []Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Email, len(r.sent))
	copy(out, r.sent)
	return out
}
