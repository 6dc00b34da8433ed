package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_Render(t *testing.T) {
	tmpl := Template{
		Subject: "Update for [client_name] ([recipient_name])",
		Body:    "Hi [recipient_name],\n[client_name] was mentioned. [client_name]!",
	}

	subject, body := tmpl.Render("IBM", "Alice")
	assert.Equal(t, "Update for IBM (Alice)", subject)
	assert.Equal(t, "Hi Alice,\nIBM was mentioned. IBM!", body)
}

func TestTemplate_RenderNoTokens(t *testing.T) {
	subject, body := Template{Subject: "Static", Body: "Plain"}.Render("IBM", "Alice")
	assert.Equal(t, "Static", subject)
	assert.Equal(t, "Plain", body)
}

func TestDefaultTemplate(t *testing.T) {
	subject, body := DefaultTemplate().Render("Neste", "Carol")
	assert.Contains(t, subject, "Neste")
	assert.Contains(t, body, "Dear Carol")
	assert.NotContains(t, body, TokenClientName)
	assert.NotContains(t, body, TokenRecipientName)
}

func TestLoadTemplate(t *testing.T) {
	path := writeFile(t, "template.yaml", "subject: Hello [client_name]\nbody: |\n  Dear [recipient_name],\n  see attached.\n")

	tmpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "Hello [client_name]", tmpl.Subject)
	assert.Equal(t, "Dear [recipient_name],\nsee attached.\n", tmpl.Body)
}

func TestLoadTemplate_JSON(t *testing.T) {
	path := writeFile(t, "template.json", `{"subject": "S [client_name]", "body": "B"}`)

	tmpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "S [client_name]", tmpl.Subject)
	assert.Equal(t, "B", tmpl.Body)
}

func TestLoadTemplate_Errors(t *testing.T) {
	_, err := LoadTemplate(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, "empty.yaml", "other: value\n")
	_, err = LoadTemplate(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no subject or body")
}
