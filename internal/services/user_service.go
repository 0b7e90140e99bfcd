package services

import (
	"context"
	"errors"
	"fmt"
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
)

// IUserService defines the interface for user-related operations.
type IUserService interface {
	UpsertGoogleUser(ctx context.Context, g *auth.GoogleUser) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
}

// userService implements IUserService.
type userService struct {
	db *mongo.Database
}

// NewUserService creates a new UserService.
func NewUserService(db *mongo.Database) IUserService {
	return &userService{db: db}
}

func (s *userService) collection() *mongo.Collection {
	return s.db.Collection(db.UsersCollection)
}

// UpsertGoogleUser creates the user on first sign-in and refreshes the
// profile fields on later ones. Users are keyed by email.
func (s *userService) UpsertGoogleUser(ctx context.Context, g *auth.GoogleUser) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(g.Email))
	if email == "" {
		return nil, apperr.Auth("Google account has no email address")
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"name":       g.Name,
			"image":      g.Picture,
			"google_id":  g.Sub,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var user models.User
	operation := func() error {
		return s.collection().FindOneAndUpdate(ctx, bson.M{"email": email}, update, opts).Decode(&user)
	}
	// Two concurrent first sign-ins race on the unique email index; the loser
	// retries and finds the winner's document.
	retryable := func(err error) bool {
		return db.IsMongoDuplicateKeyError(err) || db.IsTransientMongoError(err)
	}
	if err := db.WithRetries(ctx, operation, db.DefaultMaxRetries, retryable); err != nil {
		return nil, fmt.Errorf("error upserting user %s: %w", email, err)
	}
	return &user, nil
}

// FindByEmail finds a user by their email address.
// Returns nil and mongo.ErrNoDocuments if not found.
func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	email = strings.ToLower(strings.TrimSpace(email))
	err := db.Try(ctx, func() error {
		return s.collection().FindOne(ctx, bson.M{"email": email}).Decode(&user)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by email %s: %w", email, err)
	}
	return &user, nil
}

// FindByID finds a user by ID.
// Returns nil and mongo.ErrNoDocuments if not found.
func (s *userService) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := db.Try(ctx, func() error {
		return s.collection().FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by ID %s: %w", userID.Hex(), err)
	}
	return &user, nil
}
