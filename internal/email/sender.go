package email

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/config"
)

// Sender defines the interface for sending emails on behalf of a user.
// Implementations return apperr kinds: Auth when the user has no usable
// provider credentials, Network when the provider rejects or fails the send.
type Sender interface {
	Send(ctx context.Context, id auth.Identity, msg *Message) error
}

// relayEnvelope is used by providers sending from the service's own address.
// The user's mailbox becomes the Reply-To.
func relayEnvelope(cfg *config.Config, id auth.Identity) Envelope {
	return Envelope{From: cfg.SmtpFromAddress, FromName: id.Name, ReplyTo: id.Email}
}

// SMTPSender implements the Sender interface over SMTP.
type SMTPSender struct {
	cfg    *config.Config
	dialer *gomail.Dialer
}

// NewSMTPSender creates a new SMTPSender.
// Without an SMTP host configured it falls back to a LoggingSender.
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		logrus.Warn("SMTP host not configured, using logging email sender")
		return NewLoggingSender(cfg)
	}
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.SmtpHost, cfg.SmtpPort, cfg.SmtpUsername, cfg.SmtpPassword),
	}
}

// Send sends an email using SMTP.
func (s *SMTPSender) Send(ctx context.Context, id auth.Identity, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return apperr.Network("Email send cancelled", err)
	}
	m := newGomailMessage(relayEnvelope(s.cfg, id), msg)
	if err := s.dialer.DialAndSend(m); err != nil {
		logrus.WithError(err).WithField("to", msg.To).Error("failed to send email via SMTP")
		return apperr.Network("Failed to send email", fmt.Errorf("smtp error: %w", err))
	}
	logrus.WithFields(logrus.Fields{"to": msg.To, "subject": msg.Subject}).Info("email sent via SMTP")
	return nil
}

// LoggingSender only logs the messages it is given.
type LoggingSender struct {
	cfg *config.Config
}

// NewLoggingSender creates a LoggingSender.
func NewLoggingSender(cfg *config.Config) *LoggingSender {
	return &LoggingSender{cfg: cfg}
}

// Send logs the email details instead of sending.
func (s *LoggingSender) Send(ctx context.Context, id auth.Identity, msg *Message) error {
	fields := logrus.Fields{
		"from":    s.cfg.SmtpFromAddress,
		"user":    id.Email,
		"to":      msg.To,
		"subject": msg.Subject,
	}
	if msg.Attachment != nil {
		fields["attachment"] = msg.Attachment.Filename
	}
	logrus.WithFields(fields).Info("email logged")
	logrus.Debug(msg.Text())
	return nil
}
