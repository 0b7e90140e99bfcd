// Package compose holds a user's in-progress email: the selected template,
// working subject and body, placeholder values, recipient and attachment.
package compose

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/models"
	"instasend/mailer/internal/placeholder"
)

// State is the step a composition is at.
type State string

const (
	StateNoTemplate       State = "no_template"
	StateTemplateSelected State = "template_selected"
	StatePreviewing       State = "previewing"
	StateSending          State = "sending"
	StateSendFailed       State = "send_failed"
)

// ErrSendInProgress rejects a second send, or any edit, while a send is in flight.
var ErrSendInProgress = apperr.Conflict("A send is already in progress")

var validate = validator.New()

// Session is one user's composition. It is a plain value; Service loads and
// stores it around every operation.
type Session struct {
	State        State                `json:"state"`
	Template     *models.Template     `json:"template,omitempty"`
	Subject      string               `json:"subject"`
	Body         string               `json:"body"`
	Placeholders []models.Placeholder `json:"placeholders"`
	Recipient    string               `json:"recipient"`
	Attachment   *models.Attachment   `json:"attachment,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Rendered is a subject and body with placeholder values substituted.
type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSession returns an empty composition.
func NewSession() *Session {
	return &Session{State: StateNoTemplate, Placeholders: []models.Placeholder{}}
}

func (s *Session) guardSending() error {
	if s.State == StateSending {
		return ErrSendInProgress
	}
	return nil
}

// edited returns a previewing or failed composition to editing.
func (s *Session) edited() {
	if s.Template != nil {
		s.State = StateTemplateSelected
	}
}

func (s *Session) requireTemplate() error {
	if s.Template == nil {
		return apperr.Validation("Please select a template")
	}
	return nil
}

// Select makes t the composition's template. Placeholder values are reset to
// empty and the working subject and body are copied from t. Recipient and
// attachment are kept.
func (s *Session) Select(t *models.Template) error {
	if err := s.guardSending(); err != nil {
		return err
	}
	s.Template = t
	s.Subject = t.Subject
	s.Body = t.Body
	s.Placeholders = placeholder.Seed(t.Placeholders)
	s.State = StateTemplateSelected
	return nil
}

func (s *Session) SetSubject(subject string) error {
	if err := s.guardSending(); err != nil {
		return err
	}
	if err := s.requireTemplate(); err != nil {
		return err
	}
	s.Subject = subject
	s.edited()
	return nil
}

func (s *Session) SetBody(body string) error {
	if err := s.guardSending(); err != nil {
		return err
	}
	if err := s.requireTemplate(); err != nil {
		return err
	}
	s.Body = body
	s.edited()
	return nil
}

// SetValue fills the placeholder key.
func (s *Session) SetValue(key, value string) error {
	if err := s.guardSending(); err != nil {
		return err
	}
	if err := s.requireTemplate(); err != nil {
		return err
	}
	if !placeholder.SetValue(s.Placeholders, key, value) {
		return apperr.Validation("Unknown placeholder %q", key)
	}
	s.edited()
	return nil
}

func (s *Session) SetRecipient(recipient string) error {
	if err := s.guardSending(); err != nil {
		return err
	}
	s.Recipient = strings.TrimSpace(recipient)
	s.edited()
	return nil
}

// SetAttachment replaces the attachment and returns the one it replaced.
func (s *Session) SetAttachment(a *models.Attachment) (*models.Attachment, error) {
	if err := s.guardSending(); err != nil {
		return nil, err
	}
	prev := s.Attachment
	s.Attachment = a
	s.edited()
	return prev, nil
}

// ClearAttachment removes the attachment and returns it.
func (s *Session) ClearAttachment() (*models.Attachment, error) {
	return s.SetAttachment(nil)
}

func (s *Session) render() Rendered {
	values := placeholder.Values(s.Placeholders)
	return Rendered{
		Subject: placeholder.Render(s.Subject, values),
		Body:    placeholder.Render(s.Body, values),
	}
}

// Preview renders the working copies without changing them.
func (s *Session) Preview() (Rendered, error) {
	if err := s.guardSending(); err != nil {
		return Rendered{}, err
	}
	if err := s.requireTemplate(); err != nil {
		return Rendered{}, err
	}
	s.State = StatePreviewing
	return s.render(), nil
}

// Back leaves the preview.
func (s *Session) Back() error {
	if err := s.guardSending(); err != nil {
		return err
	}
	if s.State == StatePreviewing {
		s.State = StateTemplateSelected
	}
	return nil
}

// ValidateSend checks the send preconditions. Only placeholders whose token
// appears in the unrendered body are required; a key used only in the
// subject may stay empty.
func (s *Session) ValidateSend() error {
	if err := s.requireTemplate(); err != nil {
		return err
	}
	if s.Recipient == "" {
		return apperr.Validation("Recipient is required")
	}
	if err := validate.Var(s.Recipient, "email"); err != nil {
		return apperr.Validation("Recipient %q is not a valid email address", s.Recipient)
	}
	if missing := placeholder.MissingIn(s.Body, s.Placeholders); len(missing) > 0 {
		return apperr.Validation("Please fill in all placeholders: %s", strings.Join(missing, ", "))
	}
	return nil
}

// BeginSend validates and moves to sending. It returns the final subject and
// body. A failed send may be retried directly.
func (s *Session) BeginSend() (Rendered, error) {
	if err := s.guardSending(); err != nil {
		return Rendered{}, err
	}
	if err := s.ValidateSend(); err != nil {
		return Rendered{}, err
	}
	s.State = StateSending
	return s.render(), nil
}

// CompleteSend records the outcome of a send. Success resets the whole
// composition; failure keeps every working value.
func (s *Session) CompleteSend(sendErr error) {
	if sendErr == nil {
		*s = *NewSession()
		return
	}
	s.State = StateSendFailed
}

// Acknowledge dismisses a send failure.
func (s *Session) Acknowledge() {
	if s.State == StateSendFailed {
		s.State = StateTemplateSelected
	}
}

// Promote applies a freshly saved version of the selected template. Values
// of keys that are still declared are kept. It reports whether t was the
// selected template.
func (s *Session) Promote(t *models.Template) (bool, error) {
	if s.Template == nil || s.Template.ID != t.ID {
		return false, nil
	}
	if err := s.guardSending(); err != nil {
		return false, err
	}
	s.Template = t
	s.Subject = t.Subject
	s.Body = t.Body
	s.Placeholders = placeholder.Reseed(t.Placeholders, s.Placeholders)
	s.edited()
	return true, nil
}

// Discard resets the composition and returns the attachment it held.
func (s *Session) Discard() (*models.Attachment, error) {
	if err := s.guardSending(); err != nil {
		return nil, err
	}
	prev := s.Attachment
	*s = *NewSession()
	return prev, nil
}
