package placeholder

import (
	"strings"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/models"
)

// SanitizeKey drops every character outside [A-Za-z0-9].
func SanitizeKey(key string) string {
	var sb strings.Builder
	for _, r := range key {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// AddDefinition appends candidate to defs with its key sanitized. On any
// validation failure defs is returned unchanged together with the message to
// show the author.
func AddDefinition(defs []models.PlaceholderDefinition, candidate models.PlaceholderDefinition) ([]models.PlaceholderDefinition, error) {
	if candidate.Key == "" || candidate.Label == "" {
		return defs, apperr.Validation("Placeholder key and label are required")
	}
	key := SanitizeKey(candidate.Key)
	if key == "" {
		return defs, apperr.Validation("Placeholder key %q has no letters or digits", candidate.Key)
	}
	for _, d := range defs {
		if d.Key == key {
			return defs, apperr.Validation("Placeholder key %q already exists", key)
		}
	}
	typ := candidate.Type
	if typ == "" {
		typ = models.PlaceholderText
	}
	if !typ.Valid() {
		return defs, apperr.Validation("Unknown placeholder type %q", candidate.Type)
	}

	out := make([]models.PlaceholderDefinition, len(defs), len(defs)+1)
	copy(out, defs)
	return append(out, models.PlaceholderDefinition{Key: key, Label: candidate.Label, Type: typ}), nil
}

// RemoveDefinition removes the definition at index. An out of range index is
// a no-op.
func RemoveDefinition(defs []models.PlaceholderDefinition, index int) []models.PlaceholderDefinition {
	if index < 0 || index >= len(defs) {
		return defs
	}
	out := make([]models.PlaceholderDefinition, 0, len(defs)-1)
	out = append(out, defs[:index]...)
	return append(out, defs[index+1:]...)
}

// Normalize rebuilds defs through AddDefinition so a list received from a
// client obeys the same rules as one built in the editor.
func Normalize(defs []models.PlaceholderDefinition) ([]models.PlaceholderDefinition, error) {
	out := make([]models.PlaceholderDefinition, 0, len(defs))
	for _, d := range defs {
		var err error
		if out, err = AddDefinition(out, d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Seed creates one empty value per definition.
func Seed(defs []models.PlaceholderDefinition) []models.Placeholder {
	out := make([]models.Placeholder, 0, len(defs))
	for _, d := range defs {
		out = append(out, models.Placeholder{Key: d.Key, Type: d.Type})
	}
	return out
}

// Reseed is Seed that keeps the current value of every key still declared.
func Reseed(defs []models.PlaceholderDefinition, current []models.Placeholder) []models.Placeholder {
	values := Values(current)
	out := Seed(defs)
	for i := range out {
		out[i].Value = values[out[i].Key]
	}
	return out
}

// SetValue updates the value for key. It reports false when no placeholder
// with that key exists.
func SetValue(placeholders []models.Placeholder, key, value string) bool {
	for i := range placeholders {
		if placeholders[i].Key == key {
			placeholders[i].Value = value
			return true
		}
	}
	return false
}
