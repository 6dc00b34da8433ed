package registry

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Placeholder tokens substituted by Render.
const (
	TokenClientName    = "[client_name]"
	TokenRecipientName = "[recipient_name]"
)

// Template is the subject/body pair sent to every contact.
type Template struct {
	Subject string `yaml:"subject" json:"subject"`
	Body    string `yaml:"body" json:"body"`
}

// DefaultTemplate is used when no template file is configured.
func DefaultTemplate() Template {
	return Template{
		Subject: "New document for [client_name]",
		Body: "Dear [recipient_name],\n\n" +
			"Please find attached a document that references [client_name].\n\n" +
			"Best regards",
	}
}

// LoadTemplate reads a {subject, body} template from a YAML or JSON file.
func LoadTemplate(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, eris.Wrap(err, "registry: read template")
	}

	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, eris.Wrap(err, "registry: parse template")
	}
	if t.Subject == "" && t.Body == "" {
		return Template{}, eris.New("registry: template has no subject or body")
	}
	return t, nil
}

// Render substitutes the client and recipient tokens in both the subject
// and the body.
func (t Template) Render(client, recipient string) (subject, body string) {
	r := strings.NewReplacer(TokenClientName, client, TokenRecipientName, recipient)
	return r.Replace(t.Subject), r.Replace(t.Body)
}
