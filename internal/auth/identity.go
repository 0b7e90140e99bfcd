package auth

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"instasend/mailer/internal/apperr"
)

// Identity is the signed-in user on whose behalf a call is made. It is passed
// explicitly to repositories, sessions and senders.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

// ObjectID parses UserID. A malformed id means the token cannot be trusted.
func (i Identity) ObjectID() (primitive.ObjectID, error) {
	if i.UserID == "" {
		return primitive.NilObjectID, apperr.Auth("Unauthorized")
	}
	id, err := primitive.ObjectIDFromHex(i.UserID)
	if err != nil {
		return primitive.NilObjectID, apperr.Auth("Unauthorized")
	}
	return id, nil
}
