package email

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/auth"
)

// GmailSender sends from the signed-in user's own Gmail account with the
// token granted at sign-in.
type GmailSender struct {
	oauth    auth.IGoogleOAuth
	tokens   auth.ITokenStore
	endpoint string
}

// NewGmailSender creates a GmailSender.
func NewGmailSender(oauth auth.IGoogleOAuth, tokens auth.ITokenStore) *GmailSender {
	return &GmailSender{oauth: oauth, tokens: tokens}
}

// WithEndpoint points the sender at another Gmail API base URL.
func (s *GmailSender) WithEndpoint(endpoint string) *GmailSender {
	s.endpoint = endpoint
	return s
}

func (s *GmailSender) Send(ctx context.Context, id auth.Identity, msg *Message) error {
	tok, err := s.tokens.LoadToken(ctx, id.UserID)
	if err != nil {
		return err
	}

	ts := s.oauth.TokenSource(ctx, tok)
	fresh, err := ts.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return apperr.Auth("Mail provider access expired, please sign in again")
		}
		return apperr.Network("Failed to send email", err)
	}
	if fresh.AccessToken != tok.AccessToken {
		if err := s.tokens.SaveToken(ctx, id.UserID, fresh); err != nil {
			logrus.WithError(err).WithField("user_id", id.UserID).Warn("failed to persist refreshed token")
		}
	}

	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return apperr.Network("Failed to send email", err)
	}

	raw, err := BuildMessage(Envelope{From: id.Email, FromName: id.Name}, msg)
	if err != nil {
		return apperr.Network("Failed to send email", err)
	}

	_, err = svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 401 {
			return apperr.Auth("Mail provider rejected the access token, please sign in again")
		}
		logrus.WithError(err).WithField("to", msg.To).Error("failed to send email via Gmail")
		return apperr.Network("Failed to send email", err)
	}

	logrus.WithFields(logrus.Fields{"to": msg.To, "user_id": id.UserID}).Info("email sent via Gmail")
	return nil
}
