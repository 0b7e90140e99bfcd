package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlaceholderType is a UI hint for the input used to fill a placeholder.
type PlaceholderType string

const (
	PlaceholderText   PlaceholderType = "text"
	PlaceholderEmail  PlaceholderType = "email"
	PlaceholderNumber PlaceholderType = "number"
)

// Valid reports whether t is one of the known placeholder types.
func (t PlaceholderType) Valid() bool {
	switch t {
	case PlaceholderText, PlaceholderEmail, PlaceholderNumber:
		return true
	}
	return false
}

// PlaceholderDefinition declares a {key} token a template expects to be filled.
type PlaceholderDefinition struct {
	Key   string          `bson:"key" json:"key"`
	Label string          `bson:"label" json:"label"`
	Type  PlaceholderType `bson:"type" json:"type"`
}

// Template is a reusable subject+body pair owned by a user.
type Template struct {
	Base         `bson:",inline"`
	Name         string                  `bson:"name" json:"name"`
	Subject      string                  `bson:"subject" json:"subject"`           // may contain {key} tokens
	Body         string                  `bson:"body" json:"body"`                 // HTML, may contain {key} tokens
	Placeholders []PlaceholderDefinition `bson:"placeholders" json:"placeholders"` // ordered
	OwnerID      primitive.ObjectID      `bson:"owner_id" json:"owner_id"`
}

// Placeholder is the runtime value of one definition during a composition.
type Placeholder struct {
	Key   string          `json:"key"`
	Value string          `json:"value"`
	Type  PlaceholderType `json:"type,omitempty"`
}
