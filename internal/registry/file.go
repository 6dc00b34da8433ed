package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/doc-intake/internal/model"
)

// clientFile is the on-disk shape of a registry file. Either contact key
// is accepted.
type clientFile struct {
	Clients []struct {
		Name       string          `yaml:"name"`
		Contacts   []model.Contact `yaml:"contacts"`
		Assistants []model.Contact `yaml:"contacts_or_assistants"`
	} `yaml:"clients"`
}

// LoadFile reads client records from a YAML or JSON file of the form
// {clients: [{name, contacts_or_assistants: [{name, email}]}]}.
func LoadFile(path string) ([]model.ClientRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read client file")
	}

	var f clientFile
	// JSON is valid YAML, so one decoder covers both formats.
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: parse client file")
	}

	records := make([]model.ClientRecord, 0, len(f.Clients))
	for _, c := range f.Clients {
		rec := model.ClientRecord{Name: c.Name}
		rec.Contacts = append(rec.Contacts, c.Assistants...)
		rec.Contacts = append(rec.Contacts, c.Contacts...)
		records = append(records, rec)
	}
	return records, nil
}
