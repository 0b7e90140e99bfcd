package compose

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/config"
	"instasend/mailer/internal/email"
	"instasend/mailer/internal/models"
	"instasend/mailer/internal/storage"
	"instasend/mailer/internal/tasks"
)

// sendGuardMargin keeps the send slot held a little past the send timeout.
const sendGuardMargin = 10 * time.Second

// TemplateGetter loads a template owned by the caller.
type TemplateGetter interface {
	Get(ctx context.Context, id auth.Identity, templateID string) (*models.Template, error)
}

// IService is the composition API used by the HTTP handlers.
type IService interface {
	Get(ctx context.Context, id auth.Identity) (*Session, error)
	SelectTemplate(ctx context.Context, id auth.Identity, templateID string) (*Session, error)
	UpdateDraft(ctx context.Context, id auth.Identity, subject, body *string) (*Session, error)
	SetPlaceholder(ctx context.Context, id auth.Identity, key, value string) (*Session, error)
	SetRecipient(ctx context.Context, id auth.Identity, recipient string) (*Session, error)
	Attach(ctx context.Context, id auth.Identity, filename, contentType string, data []byte) (*Session, error)
	RemoveAttachment(ctx context.Context, id auth.Identity) (*Session, error)
	Preview(ctx context.Context, id auth.Identity) (Rendered, *Session, error)
	Back(ctx context.Context, id auth.Identity) (*Session, error)
	Send(ctx context.Context, id auth.Identity) (*Session, error)
	Acknowledge(ctx context.Context, id auth.Identity) (*Session, error)
	Promote(ctx context.Context, id auth.Identity, t *models.Template) (bool, error)
	Discard(ctx context.Context, id auth.Identity) error
}

// Service runs composition operations against the user's stored session.
type Service struct {
	cfg       *config.Config
	store     Store
	templates TemplateGetter
	sender    email.Sender
	storage   storage.IAttachmentStorage
	purger    tasks.IAttachmentPurger
}

// NewService creates a composition Service.
func NewService(
	cfg *config.Config,
	store Store,
	templates TemplateGetter,
	sender email.Sender,
	storage storage.IAttachmentStorage,
	purger tasks.IAttachmentPurger,
) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		templates: templates,
		sender:    sender,
		storage:   storage,
		purger:    purger,
	}
}

func (s *Service) load(ctx context.Context, id auth.Identity) (*Session, error) {
	if id.UserID == "" {
		return nil, apperr.Auth("Unauthorized")
	}
	sess, err := s.store.Load(ctx, id.UserID)
	if err != nil {
		return nil, apperr.Network("Failed to load composition", err)
	}
	if sess.State == StateSending {
		// A send whose guard expired died with its process.
		held, err := s.store.SendHeld(ctx, id.UserID)
		if err == nil && !held {
			sess.State = StateSendFailed
		}
	}
	return sess, nil
}

func (s *Service) save(ctx context.Context, id auth.Identity, sess *Session) error {
	if err := s.store.Save(ctx, id.UserID, sess); err != nil {
		return apperr.Network("Failed to save composition", err)
	}
	return nil
}

// mutate loads the session, applies fn and stores the result.
func (s *Service) mutate(ctx context.Context, id auth.Identity, fn func(*Session) error) (*Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.save(ctx, id, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// purge schedules removal of a staged attachment. Failures only leave an
// orphaned object behind, so they are logged.
func (s *Service) purge(ctx context.Context, a *models.Attachment) {
	if a == nil || s.purger == nil {
		return
	}
	if err := s.purger.PurgeAttachment(ctx, a.Key); err != nil {
		logrus.WithError(err).WithField("key", a.Key).Warn("failed to schedule attachment purge")
	}
}

func (s *Service) Get(ctx context.Context, id auth.Identity) (*Session, error) {
	return s.load(ctx, id)
}

// SelectTemplate loads templateID and makes it the composition's template.
func (s *Service) SelectTemplate(ctx context.Context, id auth.Identity, templateID string) (*Session, error) {
	t, err := s.templates.Get(ctx, id, templateID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(sess *Session) error {
		return sess.Select(t)
	})
}

// UpdateDraft changes the working subject and/or body. Nil leaves a field as is.
func (s *Service) UpdateDraft(ctx context.Context, id auth.Identity, subject, body *string) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		if subject != nil {
			if err := sess.SetSubject(*subject); err != nil {
				return err
			}
		}
		if body != nil {
			if err := sess.SetBody(*body); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) SetPlaceholder(ctx context.Context, id auth.Identity, key, value string) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		return sess.SetValue(key, value)
	})
}

func (s *Service) SetRecipient(ctx context.Context, id auth.Identity, recipient string) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		return sess.SetRecipient(recipient)
	})
}

// Attach stages data in storage and attaches it, replacing any previous
// attachment.
func (s *Service) Attach(ctx context.Context, id auth.Identity, filename, contentType string, data []byte) (*Session, error) {
	if filename == "" || len(data) == 0 {
		return nil, apperr.Validation("Attachment is empty")
	}
	if int64(len(data)) > s.cfg.AttachmentMaxBytes() {
		return nil, apperr.Validation("Attachment exceeds %d MB", s.cfg.AttachmentMaxSizeMB)
	}
	if !s.cfg.AttachmentTypeAllowed(contentType) {
		return nil, apperr.Validation("Attachment type %q is not allowed", contentType)
	}

	// Fail fast before uploading when a send is in flight.
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := current.guardSending(); err != nil {
		return nil, err
	}

	key, err := s.storage.Put(ctx, id.UserID, filename, contentType, data)
	if err != nil {
		return nil, err
	}
	staged := &models.Attachment{Key: key, Filename: filename, ContentType: contentType, Size: int64(len(data))}

	var replaced *models.Attachment
	sess, err := s.mutate(ctx, id, func(sess *Session) error {
		var err error
		replaced, err = sess.SetAttachment(staged)
		return err
	})
	if err != nil {
		s.purge(ctx, staged)
		return nil, err
	}
	s.purge(ctx, replaced)
	return sess, nil
}

func (s *Service) RemoveAttachment(ctx context.Context, id auth.Identity) (*Session, error) {
	var removed *models.Attachment
	sess, err := s.mutate(ctx, id, func(sess *Session) error {
		var err error
		removed, err = sess.ClearAttachment()
		return err
	})
	if err != nil {
		return nil, err
	}
	s.purge(ctx, removed)
	return sess, nil
}

func (s *Service) Preview(ctx context.Context, id auth.Identity) (Rendered, *Session, error) {
	var rendered Rendered
	sess, err := s.mutate(ctx, id, func(sess *Session) error {
		var err error
		rendered, err = sess.Preview()
		return err
	})
	if err != nil {
		return Rendered{}, nil, err
	}
	return rendered, sess, nil
}

func (s *Service) Back(ctx context.Context, id auth.Identity) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		return sess.Back()
	})
}

// Send validates the composition and hands it to the mail provider. Only one
// send per user runs at a time; a concurrent call gets ErrSendInProgress.
// Once started the send is not bound to ctx's cancellation, only to the
// configured send timeout. On failure the error is returned and the session
// keeps its working values in the send_failed state.
func (s *Service) Send(ctx context.Context, id auth.Identity) (*Session, error) {
	if id.UserID == "" {
		return nil, apperr.Auth("Unauthorized")
	}

	acquired, err := s.store.AcquireSend(ctx, id.UserID, s.cfg.SendTimeout+sendGuardMargin)
	if err != nil {
		return nil, apperr.Network("Failed to start send", err)
	}
	if !acquired {
		return nil, ErrSendInProgress
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SendTimeout)
	defer cancel()
	defer func() {
		if err := s.store.ReleaseSend(sendCtx, id.UserID); err != nil {
			logrus.WithError(err).WithField("user_id", id.UserID).Warn("failed to release send guard")
		}
	}()

	sess, err := s.load(sendCtx, id)
	if err != nil {
		return nil, err
	}
	if sess.State == StateSending {
		// This call owns the slot, so a stored sending state is left over
		// from a send that never finished.
		sess.State = StateSendFailed
	}
	rendered, err := sess.BeginSend()
	if err != nil {
		return nil, err
	}
	if err := s.save(sendCtx, id, sess); err != nil {
		return nil, err
	}

	recipient, attachment := sess.Recipient, sess.Attachment
	sendErr := s.deliver(sendCtx, id, recipient, rendered, attachment)

	logger := logrus.WithFields(logrus.Fields{"user_id": id.UserID, "to": recipient})
	sess.CompleteSend(sendErr)
	if err := s.save(sendCtx, id, sess); err != nil {
		logger.WithError(err).WithField("send_failed", sendErr != nil).Error("send outcome was not stored")
	}

	if sendErr != nil {
		logger.WithError(sendErr).Warn("composition send failed")
		return sess, sendErr
	}
	s.purge(sendCtx, attachment)
	logger.Info("composition sent")
	return sess, nil
}

func (s *Service) deliver(ctx context.Context, id auth.Identity, to string, r Rendered, a *models.Attachment) error {
	msg := &email.Message{To: to, Subject: r.Subject, HTML: r.Body}
	if a != nil {
		data, err := s.storage.Get(ctx, a.Key)
		if err != nil {
			return err
		}
		msg.Attachment = &email.Attachment{Filename: a.Filename, ContentType: a.ContentType, Data: data}
	}
	return s.sender.Send(ctx, id, msg)
}

func (s *Service) Acknowledge(ctx context.Context, id auth.Identity) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		sess.Acknowledge()
		return nil
	})
}

// Promote applies a saved template to the composition when it is the selected
// one. It reports whether the composition changed.
func (s *Service) Promote(ctx context.Context, id auth.Identity, t *models.Template) (bool, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	applied, err := sess.Promote(t)
	if err != nil || !applied {
		return false, err
	}
	if err := s.save(ctx, id, sess); err != nil {
		return false, err
	}
	return true, nil
}

// Discard throws the composition away.
func (s *Service) Discard(ctx context.Context, id auth.Identity) error {
	sess, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	attachment, err := sess.Discard()
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id.UserID); err != nil {
		return apperr.Network("Failed to discard composition", err)
	}
	s.purge(ctx, attachment)
	return nil
}
