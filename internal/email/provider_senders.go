package email

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mrz1836/postmark"
	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/config"
)

// PostmarkSender sends through Postmark's transactional API.
type PostmarkSender struct {
	cfg    *config.Config
	client *postmark.Client
}

// NewPostmarkSender creates a PostmarkSender. The server token is required.
func NewPostmarkSender(cfg *config.Config) (*PostmarkSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("POSTMARK_SERVER_TOKEN is required for the postmark provider")
	}
	return &PostmarkSender{
		cfg:    cfg,
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
	}, nil
}

// Client exposes the underlying API client.
func (s *PostmarkSender) Client() *postmark.Client {
	return s.client
}

func (s *PostmarkSender) Send(ctx context.Context, id auth.Identity, msg *Message) error {
	env := relayEnvelope(s.cfg, id)
	email := postmark.Email{
		From:     env.From,
		To:       msg.To,
		ReplyTo:  env.ReplyTo,
		Subject:  msg.Subject,
		HTMLBody: msg.HTML,
		TextBody: msg.Text(),
	}
	if a := msg.Attachment; a != nil {
		email.Attachments = []postmark.Attachment{{
			Name:        a.Filename,
			Content:     base64.StdEncoding.EncodeToString(a.Data),
			ContentType: a.ContentType,
		}}
	}

	resp, err := s.client.SendEmail(ctx, email)
	if err != nil {
		return apperr.Network("Failed to send email", err)
	}
	if resp.ErrorCode > 0 {
		return apperr.Network("Failed to send email", fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}

	logrus.WithFields(logrus.Fields{"to": msg.To, "message_id": resp.MessageID}).Info("email sent via Postmark")
	return nil
}

// ResendSender sends through the Resend API.
type ResendSender struct {
	cfg    *config.Config
	client *resend.Client
}

// NewResendSender creates a ResendSender. The API key is required.
func NewResendSender(cfg *config.Config) (*ResendSender, error) {
	if cfg.ResendAPIKey == "" {
		return nil, fmt.Errorf("RESEND_API_KEY is required for the resend provider")
	}
	return &ResendSender{cfg: cfg, client: resend.NewClient(cfg.ResendAPIKey)}, nil
}

// Client exposes the underlying API client.
func (s *ResendSender) Client() *resend.Client {
	return s.client
}

func (s *ResendSender) Send(ctx context.Context, id auth.Identity, msg *Message) error {
	env := relayEnvelope(s.cfg, id)
	from := env.From
	if env.FromName != "" {
		from = fmt.Sprintf("%s <%s>", env.FromName, env.From)
	}
	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text(),
	}
	if a := msg.Attachment; a != nil {
		params.Attachments = []*resend.Attachment{{
			Filename:    a.Filename,
			Content:     a.Data,
			ContentType: a.ContentType,
		}}
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return apperr.Network("Failed to send email", err)
	}

	logrus.WithFields(logrus.Fields{"to": msg.To, "message_id": sent.Id}).Info("email sent via Resend")
	return nil
}
