// Package placeholder implements {key} token substitution and the placeholder
// definition/value model used by templates and compositions.
package placeholder

import (
	"strings"

	"instasend/mailer/internal/models"
)

// Token returns the literal token for key, e.g. "{name}".
func Token(key string) string {
	return "{" + key + "}"
}

// Render replaces every {key} token in text whose key has a non-empty value.
// Tokens with empty or missing values are left as they are. Substituted values
// are never scanned again, so a value containing {other} stays literal.
// No escaping is applied.
func Render(text string, values map[string]string) string {
	if len(values) == 0 || !strings.Contains(text, "{") {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); {
		if text[i] != '{' {
			next := strings.IndexByte(text[i:], '{')
			if next < 0 {
				sb.WriteString(text[i:])
				break
			}
			sb.WriteString(text[i : i+next])
			i += next
			continue
		}
		end := strings.IndexByte(text[i+1:], '}')
		if end < 0 {
			sb.WriteString(text[i:])
			break
		}
		key := text[i+1 : i+1+end]
		if v, ok := values[key]; ok && v != "" {
			sb.WriteString(v)
			i += end + 2
			continue
		}
		sb.WriteByte('{')
		i++
	}
	return sb.String()
}

// Values builds the key→value mapping Render expects.
func Values(placeholders []models.Placeholder) map[string]string {
	values := make(map[string]string, len(placeholders))
	for _, p := range placeholders {
		if _, seen := values[p.Key]; !seen {
			values[p.Key] = p.Value
		}
	}
	return values
}

// MissingIn returns the keys of unfilled placeholders whose token appears in
// text, in declaration order.
func MissingIn(text string, placeholders []models.Placeholder) []string {
	var missing []string
	for _, p := range placeholders {
		if p.Value == "" && strings.Contains(text, Token(p.Key)) {
			missing = append(missing, p.Key)
		}
	}
	return missing
}
