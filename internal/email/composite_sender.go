package email

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"instasend/mailer/internal/auth"
)

// CompositeEmailSender implements the Sender interface and delegates sending to multiple Senders.
type CompositeEmailSender struct {
	senders []Sender
}

// NewCompositeEmailSender creates a new CompositeEmailSender.
func NewCompositeEmailSender(senders ...Sender) *CompositeEmailSender {
	return &CompositeEmailSender{senders: senders}
}

// AddSender adds a sender to the composite sender's list.
func (cs *CompositeEmailSender) AddSender(sender Sender) {
	if sender != nil {
		cs.senders = append(cs.senders, sender)
	}
}

// Send calls every registered sender. Only the first sender decides the
// outcome; the rest are best effort and their failures are logged.
func (cs *CompositeEmailSender) Send(ctx context.Context, id auth.Identity, msg *Message) error {
	if len(cs.senders) == 0 {
		return fmt.Errorf("no senders configured in CompositeEmailSender")
	}

	primaryErr := cs.senders[0].Send(ctx, id, msg)
	for i, sender := range cs.senders[1:] {
		if err := sender.Send(ctx, id, msg); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"user_id": id.UserID,
				"sender":  i + 1,
			}).Warn("secondary email sender failed")
		}
	}
	return primaryErr
}
