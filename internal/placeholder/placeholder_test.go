package placeholder_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/models"
	"instasend/mailer/internal/placeholder"
)

func TestRender_SingleToken(t *testing.T) {
	keys := []string{"name", "role", "HRname", "a1", "Company2025"}
	for _, k := range keys {
		token := fmt.Sprintf("{%s}", k)
		assert.Equal(t, "value-"+k, placeholder.Render(token, map[string]string{k: "value-" + k}))
		assert.Equal(t, token, placeholder.Render(token, map[string]string{k: ""}), "empty value keeps the token")
	}
}

func TestRender_GlobalCaseSensitiveLiteral(t *testing.T) {
	text := "<p>Dear {name}, {name}! {Name} {role}</p>"
	got := placeholder.Render(text, map[string]string{"name": "Ann"})
	assert.Equal(t, "<p>Dear Ann, Ann! {Name} {role}</p>", got)
}

func TestRender_NoRecursiveExpansion(t *testing.T) {
	values := map[string]string{"a": "{b}", "b": "B"}
	assert.Equal(t, "{b} B", placeholder.Render("{a} {b}", values))
	assert.Equal(t, "{b}", placeholder.Render("{a}", values))
}

func TestRender_NoEscaping(t *testing.T) {
	got := placeholder.Render("<p>{link}</p>", map[string]string{"link": `<a href="x">&</a>`})
	assert.Equal(t, `<p><a href="x">&</a></p>`, got)
}

func TestRender_MalformedBraces(t *testing.T) {
	values := map[string]string{"name": "Ann"}
	assert.Equal(t, "{ {Ann} {name", placeholder.Render("{ {{name}} {name", values))
	assert.Equal(t, "no tokens", placeholder.Render("no tokens", values))
	assert.Equal(t, "{name}", placeholder.Render("{name}", nil))
}

func TestRender_Idempotent(t *testing.T) {
	text := "Hi {name}, re {role} at {company}"
	values := map[string]string{"name": "Ann", "role": "", "company": "Acme"}
	once := placeholder.Render(text, values)
	assert.Equal(t, once, placeholder.Render(once, values))
	assert.Equal(t, "Hi Ann, re {role} at Acme", once)
}

func TestMissingIn_ScansOnlyGivenText(t *testing.T) {
	values := []models.Placeholder{{Key: "name", Value: "Ann"}, {Key: "role"}, {Key: "company"}}
	body := "<p>Dear {name}, re {role}</p>"
	assert.Equal(t, []string{"role"}, placeholder.MissingIn(body, values))
	assert.Empty(t, placeholder.MissingIn("no tokens", values))
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "FirstName", placeholder.SanitizeKey("First Name!"))
	assert.Equal(t, "FirstName", placeholder.SanitizeKey("First-Name"))
	assert.Equal(t, "abc123", placeholder.SanitizeKey("a_b.c 1{2}3"))
	assert.Equal(t, "", placeholder.SanitizeKey("é!"))
}

func TestAddDefinition_NormalizesAndRejectsCollision(t *testing.T) {
	defs, err := placeholder.AddDefinition(nil, models.PlaceholderDefinition{Key: "First Name!", Label: "First name"})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "FirstName", defs[0].Key)
	assert.Equal(t, models.PlaceholderText, defs[0].Type)

	after, err := placeholder.AddDefinition(defs, models.PlaceholderDefinition{Key: "First-Name", Label: "Other", Type: models.PlaceholderEmail})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, defs, after)
}

func TestAddDefinition_RequiresKeyAndLabel(t *testing.T) {
	existing := []models.PlaceholderDefinition{{Key: "name", Label: "Name", Type: models.PlaceholderText}}

	for _, c := range []models.PlaceholderDefinition{
		{Key: "", Label: "Role"},
		{Key: "role", Label: ""},
		{Key: "!!", Label: "Bangs"},
		{Key: "role", Label: "Role", Type: "date"},
	} {
		out, err := placeholder.AddDefinition(existing, c)
		assert.Error(t, err)
		assert.Equal(t, existing, out)
	}
}

func TestAddDefinition_DoesNotAliasInput(t *testing.T) {
	base := make([]models.PlaceholderDefinition, 1, 4)
	base[0] = models.PlaceholderDefinition{Key: "a", Label: "A", Type: models.PlaceholderText}

	one, err := placeholder.AddDefinition(base, models.PlaceholderDefinition{Key: "b", Label: "B"})
	require.NoError(t, err)
	two, err := placeholder.AddDefinition(base, models.PlaceholderDefinition{Key: "c", Label: "C"})
	require.NoError(t, err)

	assert.Equal(t, "b", one[1].Key)
	assert.Equal(t, "c", two[1].Key)
}

func TestRemoveDefinition(t *testing.T) {
	defs := []models.PlaceholderDefinition{{Key: "a"}, {Key: "b"}, {Key: "c"}}

	assert.Equal(t, []models.PlaceholderDefinition{{Key: "a"}, {Key: "c"}}, placeholder.RemoveDefinition(defs, 1))
	assert.Equal(t, defs, placeholder.RemoveDefinition(defs, 3))
	assert.Equal(t, defs, placeholder.RemoveDefinition(defs, -1))
	assert.Len(t, defs, 3)
}

func TestNormalize(t *testing.T) {
	out, err := placeholder.Normalize([]models.PlaceholderDefinition{
		{Key: "HR name", Label: "HR", Type: models.PlaceholderText},
		{Key: "role", Label: "Role", Type: models.PlaceholderText},
	})
	require.NoError(t, err)
	assert.Equal(t, "HRname", out[0].Key)

	_, err = placeholder.Normalize([]models.PlaceholderDefinition{
		{Key: "role", Label: "Role"},
		{Key: "ro-le", Label: "Role again"},
	})
	assert.Error(t, err)
}

func TestSeedAndReseed(t *testing.T) {
	defs := []models.PlaceholderDefinition{
		{Key: "name", Type: models.PlaceholderText},
		{Key: "email", Type: models.PlaceholderEmail},
	}
	seeded := placeholder.Seed(defs)
	assert.Equal(t, []models.Placeholder{
		{Key: "name", Type: models.PlaceholderText},
		{Key: "email", Type: models.PlaceholderEmail},
	}, seeded)

	require.True(t, placeholder.SetValue(seeded, "name", "Ann"))
	assert.False(t, placeholder.SetValue(seeded, "missing", "x"))

	newDefs := []models.PlaceholderDefinition{{Key: "name"}, {Key: "role"}}
	reseeded := placeholder.Reseed(newDefs, seeded)
	assert.Equal(t, []models.Placeholder{{Key: "name", Value: "Ann"}, {Key: "role"}}, reseeded)
}
