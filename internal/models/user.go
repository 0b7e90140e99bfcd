package models

// User is an account created on first Google sign-in.
type User struct {
	Base     `bson:",inline"`
	Email    string `bson:"email" json:"email"`
	Name     string `bson:"name" json:"name"`
	Image    string `bson:"image,omitempty" json:"image,omitempty"`
	GoogleID string `bson:"google_id,omitempty" json:"-"`
}
