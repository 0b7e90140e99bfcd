package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/db"
	"instasend/mailer/internal/models"
	"instasend/mailer/internal/placeholder"
)

// TemplateInput carries the fields a caller may set on a template. On update
// a nil Placeholders leaves the stored definitions untouched.
type TemplateInput struct {
	Name         string                         `json:"name"`
	Subject      string                         `json:"subject"`
	Body         string                         `json:"body"`
	Placeholders []models.PlaceholderDefinition `json:"placeholders"`
}

// ITemplateService defines the interface for template persistence. Every call
// is scoped to the templates owned by id.
type ITemplateService interface {
	List(ctx context.Context, id auth.Identity) ([]models.Template, error)
	Get(ctx context.Context, id auth.Identity, templateID string) (*models.Template, error)
	Create(ctx context.Context, id auth.Identity, in TemplateInput) (*models.Template, error)
	Update(ctx context.Context, id auth.Identity, templateID string, in TemplateInput) (*models.Template, error)
	Delete(ctx context.Context, id auth.Identity, templateID string) error
}

// templateService implements ITemplateService on MongoDB.
type templateService struct {
	db *mongo.Database
}

// NewTemplateService creates a new TemplateService.
func NewTemplateService(db *mongo.Database) ITemplateService {
	return &templateService{db: db}
}

func (s *templateService) collection() *mongo.Collection {
	return s.db.Collection(db.TemplatesCollection)
}

var errTemplateNotFound = apperr.NotFound("Template not found")

// normalizeInput trims the text fields and validates what is required.
// Placeholders are only checked when present.
func normalizeInput(in TemplateInput) (TemplateInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Body = strings.TrimSpace(in.Body)
	if in.Name == "" || in.Subject == "" || in.Body == "" {
		return in, apperr.Validation("Missing required fields")
	}
	if in.Placeholders != nil {
		defs, err := placeholder.Normalize(in.Placeholders)
		if err != nil {
			return in, err
		}
		in.Placeholders = defs
	}
	return in, nil
}

// parseTemplateID treats a malformed id as a missing template.
func parseTemplateID(templateID string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(templateID)
	if err != nil {
		return primitive.NilObjectID, errTemplateNotFound
	}
	return oid, nil
}

// List returns the owner's templates, most recently updated first.
func (s *templateService) List(ctx context.Context, id auth.Identity) ([]models.Template, error) {
	ownerID, err := id.ObjectID()
	if err != nil {
		return nil, err
	}

	templates := []models.Template{}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	err = db.Try(ctx, func() error {
		cursor, err := s.collection().Find(ctx, bson.M{"owner_id": ownerID}, opts)
		if err != nil {
			return err
		}
		found := []models.Template{}
		if err := cursor.All(ctx, &found); err != nil {
			return err
		}
		templates = found
		return nil
	})
	if err != nil {
		return nil, apperr.Network("Failed to load templates", err)
	}
	return templates, nil
}

func (s *templateService) Get(ctx context.Context, id auth.Identity, templateID string) (*models.Template, error) {
	ownerID, err := id.ObjectID()
	if err != nil {
		return nil, err
	}
	oid, err := parseTemplateID(templateID)
	if err != nil {
		return nil, err
	}

	var template models.Template
	err = db.Try(ctx, func() error {
		return s.collection().FindOne(ctx, bson.M{"_id": oid, "owner_id": ownerID}).Decode(&template)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errTemplateNotFound
		}
		return nil, apperr.Network("Failed to load template", err)
	}
	return &template, nil
}

func (s *templateService) Create(ctx context.Context, id auth.Identity, in TemplateInput) (*models.Template, error) {
	ownerID, err := id.ObjectID()
	if err != nil {
		return nil, err
	}
	in, err = normalizeInput(in)
	if err != nil {
		return nil, err
	}
	if in.Placeholders == nil {
		in.Placeholders = []models.PlaceholderDefinition{}
	}

	template := &models.Template{
		Base:         models.NewBase(),
		Name:         in.Name,
		Subject:      in.Subject,
		Body:         in.Body,
		Placeholders: in.Placeholders,
		OwnerID:      ownerID,
	}
	err = db.Try(ctx, func() error {
		_, err := s.collection().InsertOne(ctx, template)
		return err
	})
	if err != nil {
		return nil, apperr.Network("Failed to save template", err)
	}
	return template, nil
}

func (s *templateService) Update(ctx context.Context, id auth.Identity, templateID string, in TemplateInput) (*models.Template, error) {
	ownerID, err := id.ObjectID()
	if err != nil {
		return nil, err
	}
	oid, err := parseTemplateID(templateID)
	if err != nil {
		return nil, err
	}
	in, err = normalizeInput(in)
	if err != nil {
		return nil, err
	}

	set := bson.M{
		"name":       in.Name,
		"subject":    in.Subject,
		"body":       in.Body,
		"updated_at": time.Now().UTC(),
	}
	if in.Placeholders != nil {
		set["placeholders"] = in.Placeholders
	}

	var updated models.Template
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = db.Try(ctx, func() error {
		return s.collection().FindOneAndUpdate(ctx,
			bson.M{"_id": oid, "owner_id": ownerID},
			bson.M{"$set": set},
			opts,
		).Decode(&updated)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errTemplateNotFound
		}
		return nil, apperr.Network("Failed to update template", err)
	}
	return &updated, nil
}

func (s *templateService) Delete(ctx context.Context, id auth.Identity, templateID string) error {
	ownerID, err := id.ObjectID()
	if err != nil {
		return err
	}
	oid, err := parseTemplateID(templateID)
	if err != nil {
		return err
	}

	var res *mongo.DeleteResult
	err = db.Try(ctx, func() error {
		var err error
		res, err = s.collection().DeleteOne(ctx, bson.M{"_id": oid, "owner_id": ownerID})
		return err
	})
	if err != nil {
		return apperr.Network("Failed to delete template", err)
	}
	if res.DeletedCount == 0 {
		return errTemplateNotFound
	}
	return nil
}
