package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/config"
)

const mockEmailTTL = 5 * time.Minute

// MockEmail is what RedisSender records for a message.
type MockEmail struct {
	To         string    `json:"to"`
	From       string    `json:"from"`
	ReplyTo    string    `json:"reply_to,omitempty"`
	Subject    string    `json:"subject"`
	HTML       string    `json:"html"`
	Text       string    `json:"text"`
	Attachment string    `json:"attachment,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// RedisSender implements the Sender interface by storing emails in Redis,
// where the service API can read them back.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender
func NewRedisSender(client *redis.Client, cfg *config.Config) *RedisSender {
	return &RedisSender{client: client, cfg: cfg}
}

func mockEmailKey(recipient string) string {
	return fmt.Sprintf("mockemail:%s", strings.ToLower(recipient))
}

// Send stores the latest email per recipient.
func (s *RedisSender) Send(ctx context.Context, id auth.Identity, msg *Message) error {
	env := relayEnvelope(s.cfg, id)
	record := MockEmail{
		To:      msg.To,
		From:    env.From,
		ReplyTo: env.ReplyTo,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text(),
		SentAt:  time.Now().UTC(),
	}
	if msg.Attachment != nil {
		record.Attachment = msg.Attachment.Filename
	}

	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := mockEmailKey(msg.To)
	if err := s.client.Set(ctx, key, jsonData, mockEmailTTL).Err(); err != nil {
		return apperr.Network("Failed to send email", fmt.Errorf("failed to store email in Redis key '%s': %w", key, err))
	}

	logrus.WithFields(logrus.Fields{"key": key, "to": msg.To, "subject": msg.Subject}).Info("mock email stored in Redis")
	return nil
}

// LastEmail returns the latest mock email stored for recipient.
func (s *RedisSender) LastEmail(ctx context.Context, recipient string) (*MockEmail, error) {
	data, err := s.client.Get(ctx, mockEmailKey(recipient)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperr.NotFound("No email recorded for " + recipient)
		}
		return nil, fmt.Errorf("failed to read mock email: %w", err)
	}
	var record MockEmail
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mock email: %w", err)
	}
	return &record, nil
}
