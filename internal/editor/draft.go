// Package editor builds templates before they are persisted.
package editor

import (
	"context"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/models"
	"instasend/mailer/internal/placeholder"
	"instasend/mailer/internal/services"
)

// Repository is the part of the template store a draft saves through.
type Repository interface {
	Create(ctx context.Context, id auth.Identity, in services.TemplateInput) (*models.Template, error)
	Update(ctx context.Context, id auth.Identity, templateID string, in services.TemplateInput) (*models.Template, error)
}

// Draft is a template being written or edited. EditingID is empty for a new
// template. A nil Placeholders on an edit keeps the stored definitions.
type Draft struct {
	EditingID    string
	Name         string
	Subject      string
	Body         RichText
	Placeholders []models.PlaceholderDefinition
}

// NewDraft starts an empty template.
func NewDraft() *Draft {
	return &Draft{Body: NewHTMLBuffer(""), Placeholders: []models.PlaceholderDefinition{}}
}

// EditDraft opens t for editing.
func EditDraft(t *models.Template) *Draft {
	defs := make([]models.PlaceholderDefinition, len(t.Placeholders))
	copy(defs, t.Placeholders)
	return &Draft{
		EditingID:    t.ID.Hex(),
		Name:         t.Name,
		Subject:      t.Subject,
		Body:         NewHTMLBuffer(t.Body),
		Placeholders: defs,
	}
}

// DraftFromInput wraps fields received from a client. templateID is empty
// when creating.
func DraftFromInput(templateID string, in services.TemplateInput) *Draft {
	return &Draft{
		EditingID:    templateID,
		Name:         in.Name,
		Subject:      in.Subject,
		Body:         NewHTMLBuffer(in.Body),
		Placeholders: in.Placeholders,
	}
}

func (d *Draft) AddPlaceholder(def models.PlaceholderDefinition) error {
	defs, err := placeholder.AddDefinition(d.Placeholders, def)
	if err != nil {
		return err
	}
	d.Placeholders = defs
	return nil
}

func (d *Draft) RemovePlaceholder(index int) {
	d.Placeholders = placeholder.RemoveDefinition(d.Placeholders, index)
}

// InsertPlaceholder writes the {key} token of a declared placeholder into the
// body at the cursor.
func (d *Draft) InsertPlaceholder(key string) error {
	for _, def := range d.Placeholders {
		if def.Key == key {
			d.Body.InsertText(placeholder.Token(key))
			return nil
		}
	}
	return apperr.Validation("Placeholder %q is not declared", key)
}

var strictPolicy = bluemonday.StrictPolicy()

// IsTrivialBody reports whether body has no visible content: blank text once
// all markup is stripped, and no images.
func IsTrivialBody(body string) bool {
	body = strings.TrimSpace(body)
	if body == "" || body == "<p></p>" {
		return true
	}
	if strings.Contains(strings.ToLower(body), "<img") {
		return false
	}
	text := html.UnescapeString(strictPolicy.Sanitize(body))
	return strings.TrimSpace(text) == ""
}

// Validate checks the draft can be saved.
func (d *Draft) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return apperr.Validation("Template name is required")
	case strings.TrimSpace(d.Subject) == "":
		return apperr.Validation("Subject is required")
	case d.Body == nil || IsTrivialBody(d.Body.HTML()):
		return apperr.Validation("Body is required")
	}
	return nil
}

func (d *Draft) input() services.TemplateInput {
	return services.TemplateInput{
		Name:         d.Name,
		Subject:      d.Subject,
		Body:         d.Body.HTML(),
		Placeholders: d.Placeholders,
	}
}

// Save validates the draft and creates or updates the template. After a
// create the draft switches to editing the new template.
func (d *Draft) Save(ctx context.Context, repo Repository, id auth.Identity) (*models.Template, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var (
		saved *models.Template
		err   error
	)
	if d.EditingID == "" {
		saved, err = repo.Create(ctx, id, d.input())
	} else {
		saved, err = repo.Update(ctx, id, d.EditingID, d.input())
	}
	if err != nil {
		return nil, err
	}

	d.EditingID = saved.ID.Hex()
	d.Placeholders = saved.Placeholders
	return saved, nil
}
